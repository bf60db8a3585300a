package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/fbmon/internal/config"
	"github.com/tessro/fbmon/internal/logging"
	"github.com/tessro/fbmon/internal/paths"
)

// Global flag values.
var (
	configPath     string
	hostFlag       string
	portFlag       int
	logLevelFlag   string
	logStderr      bool
	projectFlag    string
	connectTimeout time.Duration
)

// logCleanup closes the log file opened by setup.
var logCleanup func()

var rootCmd = &cobra.Command{
	Use:   "fbmon",
	Short: "ForceBalance optimizer monitor",
	Long:  "fbmon connects to a ForceBalance dashboard server to inspect projects, drive the optimizer and watch its progress.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set FBMON_CONFIG so every path helper sees the override.
		if configPath != "" {
			if err := os.Setenv(paths.EnvConfigPath, configPath); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = hostFlag
	}
	if flags.Changed("port") {
		cfg.Server.Port = portFlag
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the configuration and starts logging.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level := logging.ParseLevel(cfg.Log.Level)
	if logStderr {
		logCleanup, err = logging.SetupMulti(cfg.Log.File, cmd.ErrOrStderr(), level)
	} else {
		logCleanup, err = logging.Setup(cfg.Log.File, level)
	}
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	slog.Debug("config loaded", "server", cfg.Address(), "namespace", cfg.Server.Namespace)
	return cfg, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.config/fbmon/config.toml)")
	flags.StringVar(&hostFlag, "host", config.DefaultHost, "optimizer server host")
	flags.IntVar(&portFlag, "port", config.DefaultPort, "optimizer server port")
	flags.StringVar(&logLevelFlag, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&logStderr, "log-stderr", false, "copy log output to stderr")
	flags.StringVarP(&projectFlag, "project", "p", "", "project to operate on (default: first listed project)")
	flags.DurationVar(&connectTimeout, "timeout", 10*time.Second, "time to wait for the server")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
