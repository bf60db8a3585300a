package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/config"
)

var projectsOutput string

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects",
	Long:  "List the projects known to the optimizer server. The active project is marked with *.",
	Args:  cobra.NoArgs,
	RunE:  runProjects,
}

var createVerify bool

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Long: `Ask the server to create a project and select it.

With --verify the project listing is checked afterwards and the command
fails if the server did not create the project.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func runProjects(cmd *cobra.Command, args []string) error {
	if err := checkFormat(projectsOutput, formatTable, formatYAML, formatJSON); err != nil {
		return err
	}
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	projects, err := api.Await(cmd.Context(), api.Always(conn.ListProjects))
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	if projectsOutput != formatTable {
		return writeStructured(cmd.OutOrStdout(), projectsOutput, projects)
	}
	active, _ := conn.ActiveProject()
	printProjects(cmd.OutOrStdout(), projects, active)
	return nil
}

func printProjects(out io.Writer, projects []api.ProjectInfo, active string) {
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects.")
		fmt.Fprintln(out, "Create one with: fbmon create <name>")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "\tNAME\tSTATUS")
	for _, p := range projects {
		marker := ""
		if p.ProjectName == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", marker, p.ProjectName, orDash(string(p.Status)))
	}
	w.Flush()
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := config.ValidateProjectName(name); err != nil {
		return err
	}
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	if createVerify {
		done := make(chan error, 1)
		conn.CreateProjectVerified(ctx, name, func(err error) { done <- err })
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("create project %s: %w", name, err)
		}
	} else {
		conn.CreateProject(name)
		if err := flush(ctx, conn); err != nil {
			return fmt.Errorf("create project %s: %w", name, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "🧪 Created project: %s\n", name)
	return nil
}

func init() {
	projectsCmd.Flags().StringVarP(&projectsOutput, "output", "o", formatTable, "output format (table, yaml, json)")
	createCmd.Flags().BoolVar(&createVerify, "verify", false, "fail unless the server lists the new project")

	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(createCmd)
}
