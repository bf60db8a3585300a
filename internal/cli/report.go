package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/report"
)

var (
	reportOut      string
	reportMarkdown bool
	reportTemplate string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a run report of the project",
	Long: `Collect the status, iterations, targets and force field of the project
into a report. The report is HTML unless --markdown is given, and is
written to stdout unless --out names a file.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	name, err := requireProject(conn)
	if err != nil {
		return err
	}

	data := report.Data{Project: name, Generated: time.Now()}
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		projects, err := api.Await(ctx, api.Always(conn.ListProjects))
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		if i := slices.IndexFunc(projects, func(p api.ProjectInfo) bool { return p.ProjectName == name }); i >= 0 {
			data.Status = projects[i].Status
		}
		return nil
	})
	g.Go(func() error {
		state, err := api.Await(ctx, conn.GetOptimizerState)
		if err != nil {
			return fmt.Errorf("get optimizer state: %w", err)
		}
		data.State = state
		return nil
	})
	g.Go(func() error {
		targets, err := api.Await(ctx, conn.GetAllTargetsInfo)
		if err != nil {
			return fmt.Errorf("get targets: %w", err)
		}
		data.Targets = targets
		return nil
	})
	g.Go(func() error {
		ff, err := api.Await(ctx, conn.GetFinalForceFieldInfo)
		if err != nil {
			return fmt.Errorf("get force field: %w", err)
		}
		data.ForceField = ff
		return nil
	})
	g.Go(func() error {
		queue, err := api.Await(ctx, conn.GetWorkQueueStatus)
		if err != nil {
			return fmt.Errorf("get work queue status: %w", err)
		}
		data.Queue = queue
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	var out []byte
	if reportMarkdown {
		out = report.Markdown(data)
	} else {
		r, err := report.NewRenderer(reportTemplate)
		if err != nil {
			return err
		}
		if out, err = r.HTML(data); err != nil {
			return err
		}
	}

	if reportOut == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	if err := report.WriteFile(reportOut, out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🧪 Wrote report: %s\n", reportOut)
	return nil
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "O", "", "write the report to this file")
	reportCmd.Flags().BoolVar(&reportMarkdown, "markdown", false, "emit Markdown instead of HTML")
	reportCmd.Flags().StringVar(&reportTemplate, "template", "", "HTML page template (html/template syntax)")
	rootCmd.AddCommand(reportCmd)
}
