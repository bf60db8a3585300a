package api_test

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/config"
	"github.com/tessro/fbmon/internal/transport"
	"github.com/tessro/fbmon/internal/transport/transporttest"
)

func dialServer(t *testing.T, srv *transporttest.Server) *api.Connection {
	t.Helper()
	u, err := url.Parse(srv.URL())
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Server.Host = u.Hostname()
	cfg.Server.Port = port
	cfg.Client.ReconnectDelay = 10 * time.Millisecond
	cfg.Client.RequestTimeout = 5 * time.Second

	c, err := api.Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDial_BootstrapAndCommands(t *testing.T) {
	srv := transporttest.NewServer(t, transporttest.ServerOptions{Namespace: "/api"})
	srv.Handle(api.MsgListProjects, func([]json.RawMessage) []any {
		return []any{[]map[string]string{{"projectName": "p1"}, {"projectName": "p2"}}}
	})
	srv.Handle(api.MsgGetWorkQueueStatus, func(args []json.RawMessage) []any {
		var project string
		_ = json.Unmarshal(args[0], &project)
		return []any{map[string]any{"projectName": project, "worker_running": 1, "worker_total": 2, "job_finished": 5, "job_total": 9}}
	})
	c := dialServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.WaitConnected(ctx))
	assert.Equal(t, transport.StateConnected, c.State())

	projects, err := api.Await(ctx, api.Always(c.Bootstrap))
	require.NoError(t, err)
	assert.Len(t, projects, 2)
	active, ok := c.ActiveProject()
	require.True(t, ok)
	assert.Equal(t, "p1", active)

	status, err := api.Await(ctx, c.GetWorkQueueStatus)
	require.NoError(t, err)
	assert.Equal(t, "p1", status.ProjectName)
	assert.Equal(t, 9, status.JobTotal)

	require.True(t, c.LaunchOptimizer())
	for {
		r, err := srv.Next(ctx)
		require.NoError(t, err)
		if r.Name == api.MsgLaunchOptimizer {
			require.Len(t, r.Args, 1)
			assert.JSONEq(t, `"p1"`, string(r.Args[0]))
			break
		}
	}
}

func TestDial_PushFilteredByProject(t *testing.T) {
	srv := transporttest.NewServer(t, transporttest.ServerOptions{Namespace: "/api"})
	c := dialServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.WaitConnected(ctx))
	c.SelectProject("p1")

	updates := make(chan api.StatusUpdate, 4)
	c.OnStatus(func(u api.StatusUpdate) { updates <- u })

	srv.Emit(api.EventStatus, map[string]string{"projectName": "p2", "status": "ERROR"})
	srv.Emit(api.EventStatus, map[string]string{"projectName": "p1", "status": "RUNNING"})

	select {
	case u := <-updates:
		assert.Equal(t, api.StatusRunning, u.Status)
	case <-ctx.Done():
		t.Fatal("no status update delivered")
	}
	assert.Empty(t, updates)
}

func TestDial_InvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = 0

	_, err := api.Dial(context.Background(), cfg)
	require.ErrorIs(t, err, config.ErrInvalidPort)
}

func TestWaitConnected_Closed(t *testing.T) {
	srv := transporttest.NewServer(t, transporttest.ServerOptions{Namespace: "/api"})
	c := dialServer(t, srv)
	require.NoError(t, c.Close())

	err := c.WaitConnected(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
}
