package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/config"
)

// ErrServerUnreachable indicates the optimizer server did not accept a
// connection within the timeout.
var ErrServerUnreachable = errors.New("optimizer server is unreachable")

// ErrNoProject indicates no project could be selected.
var ErrNoProject = errors.New("no project selected")

// dial opens a Connection. Tests replace it to use a fake transport.
var dial = func(ctx context.Context, cfg *config.Config) (*api.Connection, error) {
	conn, err := api.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := conn.WaitConnected(waitCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w at %s: %v", ErrServerUnreachable, cfg.Address(), err)
	}
	return conn, nil
}

// connect loads the configuration, connects and selects a project: the
// --project flag when given, otherwise the server's first project.
func connect(cmd *cobra.Command) (*api.Connection, error) {
	cfg, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	conn, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if projectFlag != "" {
		conn.SelectProject(projectFlag)
		return conn, nil
	}
	if _, err := api.Await(ctx, api.Always(conn.Bootstrap)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return conn, nil
}

// requireProject returns the active project or ErrNoProject.
func requireProject(conn *api.Connection) (string, error) {
	name, ok := conn.ActiveProject()
	if !ok {
		return "", fmt.Errorf("%w: pass --project or create one with: fbmon create <name>", ErrNoProject)
	}
	return name, nil
}

// flush waits for one request round trip. Frames are written in order, so
// every command sent earlier has reached the server when it returns.
func flush(ctx context.Context, conn *api.Connection) error {
	_, err := api.Await(ctx, api.Always(conn.ListProjects))
	return err
}
