package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/fbmon/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show optimizer and work queue status",
	Long:  "Ask the server for the optimizer status of the project and print it with the work queue counters.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	name, err := requireProject(conn)
	if err != nil {
		return err
	}

	// The status arrives as a push, so listen before asking for it.
	updates := make(chan api.StatusUpdate, 1)
	tok := conn.OnStatus(func(u api.StatusUpdate) {
		select {
		case updates <- u:
		default:
		}
	})
	defer conn.Unregister(tok)
	conn.PullStatus()

	var status api.StatusUpdate
	var queue *api.WorkQueueStatus
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		select {
		case status = <-updates:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for status: %w", ctx.Err())
		}
	})
	g.Go(func() error {
		q, err := api.Await(ctx, conn.GetWorkQueueStatus)
		if err != nil {
			return fmt.Errorf("get work queue status: %w", err)
		}
		queue = q
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printStatus(cmd.OutOrStdout(), name, status, queue)
	return nil
}

func printStatus(out io.Writer, project string, status api.StatusUpdate, queue *api.WorkQueueStatus) {
	fmt.Fprintf(out, "🧪 %s: %s\n", project, orDash(string(status.Status)))
	if queue == nil {
		return
	}
	fmt.Fprintf(out, "   Workers: %d running / %d total\n", queue.WorkerRunning, queue.WorkerTotal)
	fmt.Fprintf(out, "   Jobs: %d finished / %d total\n", queue.JobFinished, queue.JobTotal)
	if queue.Description != "" {
		fmt.Fprintf(out, "   %s\n", queue.Description)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
