package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/dukerupert/accountable/internal/config"
	"github.com/dukerupert/accountable/internal/database"
	"github.com/dukerupert/accountable/internal/discord"
	"github.com/dukerupert/accountable/internal/engine"
	"github.com/dukerupert/accountable/internal/logging"
	"github.com/dukerupert/accountable/internal/metrics"
	"github.com/dukerupert/accountable/internal/store"
	ws "github.com/dukerupert/accountable/internal/websocket"
)

const programName = "accountable"

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

var (
	configFile string
	logLevel   string
	state      = &app{}
)

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Daily accountability tracker for community members",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveRunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "hash-token" {
			return nil
		}
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		state.cfg = cfg
		state.logger, state.logCloser = logging.Setup(logging.Options{
			Level: cfg.LogLevel,
			File:  cfg.LogFile,
		})

		slogPrintf := func(format string, v ...any) {
			state.logger.Info(fmt.Sprintf(format, v...))
		}
		if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
			return fmt.Errorf("set maxprocs: %w", err)
		}
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if state.logCloser != nil {
			state.logCloser.Close()
		}
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(settleCommand())
	rootCmd.AddCommand(sweepCommand())
	rootCmd.AddCommand(resetPointsCommand())
	rootCmd.AddCommand(hashTokenCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

// runtime holds everything built from the configuration.
type runtime struct {
	db       *sql.DB
	engine   *engine.Engine
	hub      *ws.Hub
	registry *prometheus.Registry
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	engineCfg, err := cfg.Engine()
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, programName),
	)

	hub := ws.NewHub(logger.With("component", "websocket"))
	opts := []engine.Option{
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithMetrics(metrics.New(reg)),
		engine.WithBroadcaster(hub),
	}

	dc := discord.NewClient(cfg.Discord.Token, cfg.LeaderboardChannels(),
		discord.WithBaseURL(cfg.Discord.APIBase),
		discord.WithRateLimit(cfg.Discord.RequestsPerSecond),
	)
	if dc.Configured() {
		opts = append(opts, engine.WithGateway(dc), engine.WithDisplay(dc))
	} else {
		logger.Warn("discord token not set, notifications and leaderboard posts are disabled")
	}

	eng := engine.New(engineCfg, store.NewMemberStore(db), store.NewStateStore(db), opts...)
	return &runtime{db: db, engine: eng, hub: hub, registry: reg}, nil
}
