package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/config"
	"github.com/tessro/fbmon/internal/paths"
	"github.com/tessro/fbmon/internal/transport/transporttest"
)

// resetFlags restores flag variables, which persist across Execute calls.
func resetFlags() {
	configPath = ""
	hostFlag = config.DefaultHost
	portFlag = config.DefaultPort
	logLevelFlag = config.DefaultLogLevel
	logStderr = false
	projectFlag = ""
	connectTimeout = 10 * time.Second
	projectsOutput = formatTable
	createVerify = false
	paramsOutput = formatYAML
	targetsOutput = formatTable
	stateOutput = formatTable
	forcefieldOutput = formatTable
	objectiveOutput = formatTable
	reportOut = ""
	reportMarkdown = false
	reportTemplate = ""
}

// newFakeServer returns a fake transport that lists the given projects.
func newFakeServer(projects ...string) *transporttest.Fake {
	fake := transporttest.NewFake()
	fake.HandleFunc(api.MsgListProjects, func(any) (any, error) {
		list := []api.ProjectInfo{}
		for _, p := range projects {
			list = append(list, api.ProjectInfo{ProjectName: p, Status: api.StatusIdle})
		}
		return list, nil
	})
	return fake
}

func runCLI(t *testing.T, fake *transporttest.Fake, args ...string) (string, error) {
	t.Helper()
	t.Setenv(paths.EnvDir, t.TempDir())
	t.Setenv(paths.EnvConfigPath, "")
	t.Setenv(paths.EnvLogPath, "")
	resetFlags()

	orig := dial
	dial = func(ctx context.Context, cfg *config.Config) (*api.Connection, error) {
		return api.New(fake, api.Options{
			SelectFirstProject: cfg.Client.SelectFirstProject,
			Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		}), nil
	}
	t.Cleanup(func() { dial = orig })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProjects_MarksActive(t *testing.T) {
	out, err := runCLI(t, newFakeServer("alpha", "beta"), "projects")
	require.NoError(t, err)
	assert.Regexp(t, `\*\s+alpha\s+IDLE`, out)
	assert.Contains(t, out, "beta")
}

func TestProjects_JSON(t *testing.T) {
	out, err := runCLI(t, newFakeServer("alpha"), "projects", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"projectName":"alpha","status":"IDLE"}]`, out)
}

func TestProjects_RejectsUnknownFormat(t *testing.T) {
	_, err := runCLI(t, newFakeServer("alpha"), "projects", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestLaunch_SendsProjectName(t *testing.T) {
	fake := newFakeServer("alpha")
	out, err := runCLI(t, fake, "launch")
	require.NoError(t, err)
	assert.Contains(t, out, "Launched optimizer for alpha")

	names := fake.SentNames()
	i := slices.Index(names, api.MsgLaunchOptimizer)
	require.GreaterOrEqual(t, i, 0, "launch_optimizer not sent: %v", names)
	assert.Equal(t, "alpha", fake.Sent()[i].Arg)
	// The flush round trip follows the command.
	assert.Equal(t, api.MsgListProjects, names[len(names)-1])
}

func TestLaunch_ProjectFlag(t *testing.T) {
	fake := newFakeServer("alpha")
	_, err := runCLI(t, fake, "reset", "-p", "beta")
	require.NoError(t, err)

	for _, m := range fake.Sent() {
		if m.Name == api.MsgResetOptimizer {
			assert.Equal(t, "beta", m.Arg)
			return
		}
	}
	t.Fatalf("reset_optimizer not sent: %v", fake.SentNames())
}

func TestLaunch_NoProjects(t *testing.T) {
	_, err := runCLI(t, newFakeServer(), "launch")
	require.ErrorIs(t, err, ErrNoProject)
}

func TestCreate_ValidatesName(t *testing.T) {
	fake := newFakeServer()
	_, err := runCLI(t, fake, "create", "bad name!")
	require.ErrorIs(t, err, config.ErrInvalidProjectName)
	assert.Empty(t, fake.Sent())
}

func TestCreate_Verified(t *testing.T) {
	fake := transporttest.NewFake()
	fake.HandleFunc(api.MsgListProjects, func(any) (any, error) {
		list := []api.ProjectInfo{}
		for _, m := range fake.Sent() {
			if m.Name == api.MsgCreateProject {
				list = append(list, api.ProjectInfo{ProjectName: m.Arg.(string)})
			}
		}
		return list, nil
	})

	out, err := runCLI(t, fake, "create", "--verify", "water")
	require.NoError(t, err)
	assert.Contains(t, out, "Created project: water")
}

func TestCreate_VerifiedFailsWhenMissing(t *testing.T) {
	_, err := runCLI(t, newFakeServer("other"), "create", "--verify", "water")
	require.ErrorIs(t, err, api.ErrProjectNotCreated)
}

func TestState_Table(t *testing.T) {
	fake := newFakeServer("alpha")
	fake.HandleFunc(api.MsgGetOptimizerState, func(any) (any, error) {
		return api.OptimizerState{
			"0": {ObjTotal: 3, ObjDict: map[string]api.ObjectiveTerm{"density": {X: 1.5, W: 2}}},
			"1": {ObjTotal: 2, ObjDict: map[string]api.ObjectiveTerm{"density": {X: 1, W: 2}}},
		}, nil
	})

	out, err := runCLI(t, fake, "state")
	require.NoError(t, err)
	assert.Contains(t, out, "Iteration 1 by target")
	assert.Regexp(t, `density\s+1\s+2\s+2`, out)
}

func TestTargets_ServerError(t *testing.T) {
	fake := newFakeServer("alpha")
	fake.HandleFunc(api.MsgGetAllTargetsInfo, func(any) (any, error) {
		return map[string]string{"error": "project not loaded"}, nil
	})

	_, err := runCLI(t, fake, "targets")
	var serr *api.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "project not loaded", serr.Message)
}

func TestObjective_InvalidIteration(t *testing.T) {
	_, err := runCLI(t, newFakeServer("alpha"), "objective", "density", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid iteration")
}

func TestObjective_SendsRequest(t *testing.T) {
	fake := newFakeServer("alpha")
	var got any
	fake.HandleFunc(api.MsgGetTargetObjectiveData, func(arg any) (any, error) {
		got = arg
		return api.ObjectiveData{QMEnergies: []float64{1}, MMEnergies: []float64{1.5}, Diff: []float64{0.5}, Weights: []float64{1}}, nil
	})

	out, err := runCLI(t, fake, "objective", "density", "3")
	require.NoError(t, err)
	assert.Equal(t, api.ObjectiveDataRequest{ProjectName: "alpha", TargetName: "density", Iteration: 3}, got)
	assert.Contains(t, out, "1.5")
}

func TestStatus_WaitsForPush(t *testing.T) {
	fake := newFakeServer("alpha")
	fake.HandleFunc(api.MsgGetWorkQueueStatus, func(any) (any, error) {
		return api.WorkQueueStatus{WorkerRunning: 1, WorkerTotal: 2, JobFinished: 3, JobTotal: 4}, nil
	})

	go func() {
		for range 2000 {
			if slices.Contains(fake.SentNames(), api.MsgPullStatus) {
				fake.Push(api.EventStatus, api.StatusUpdate{ProjectName: "alpha", Status: api.StatusRunning})
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	out, err := runCLI(t, fake, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha: RUNNING")
	assert.Contains(t, out, "Jobs: 3 finished / 4 total")
}

func TestReport_Markdown(t *testing.T) {
	fake := newFakeServer("alpha")
	fake.HandleFunc(api.MsgGetOptimizerState, func(any) (any, error) {
		return api.OptimizerState{"0": {ObjTotal: 1}}, nil
	})
	fake.HandleFunc(api.MsgGetAllTargetsInfo, func(any) (any, error) {
		return map[string]api.TargetInfo{"density": {Type: "Liquid"}}, nil
	})
	fake.HandleFunc(api.MsgGetFinalForceFieldInfo, func(any) (any, error) {
		return api.ForceFieldInfo{}, nil
	})
	fake.HandleFunc(api.MsgGetWorkQueueStatus, func(any) (any, error) {
		return api.WorkQueueStatus{JobTotal: 2}, nil
	})

	out, err := runCLI(t, fake, "report", "--markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# ForceBalance report: alpha")
	assert.Contains(t, out, "Status: **IDLE**")
	assert.Contains(t, out, "| density | Liquid |")
}

func TestConfigShow_AppliesFlags(t *testing.T) {
	out, err := runCLI(t, newFakeServer(), "config", "show", "--host", "10.0.0.2")
	require.NoError(t, err)
	assert.Contains(t, out, `host = "10.0.0.2"`)
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, newFakeServer(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fbmon")
}
