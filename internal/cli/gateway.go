package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hookbench/hookbench/internal/ai"
	"github.com/hookbench/hookbench/internal/broadcast"
	"github.com/hookbench/hookbench/internal/classifier"
	"github.com/hookbench/hookbench/internal/config"
	"github.com/hookbench/hookbench/internal/engine"
	"github.com/hookbench/hookbench/internal/executor"
	"github.com/hookbench/hookbench/internal/gateway"
	"github.com/hookbench/hookbench/internal/ingress"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/metrics"
	"github.com/hookbench/hookbench/internal/planner"
	"github.com/hookbench/hookbench/internal/store"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the Hookbench gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			// Rebuild the logger with the configured level unless the
			// flag took precedence.
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			log = logging.New(nil, level, cfg.Logging.ConsoleStyle)

			// Stores
			var (
				events     store.EventStore
				sessStore  store.SessionStore
				runStore   store.RunStore
				retryQueue store.RetryQueue
			)
			if cfg.Session.Store == "sqlite" {
				dbPath := filepath.Join(paths.Data, "hookbench.db")
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				events = store.NewSQLiteEventStore(db)
				sessStore = store.NewSQLiteSessionStore(db)
				runStore = store.NewSQLiteRunStore(db)
				retryQueue = store.NewSQLiteRetryQueue(db)
				log.Info().Str("path", dbPath).Msg("using SQLite store")
			} else {
				events = store.NewMemoryEventStore()
				sessStore = store.NewMemorySessionStore()
				runStore = store.NewMemoryRunStore()
				log.Info().Msg("using in-memory store; events will not survive restarts")
			}

			sessions := store.NewSessionManager(sessStore, events, runStore,
				time.Duration(cfg.Session.TTLHours)*time.Hour, log)

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.New()
			}

			hub := broadcast.NewHub(events, m, log)

			// AI capability is optional; without it the planner rejects
			// unknown API sets and the classifier serves static entries
			// and raw passthrough only.
			var aiClient ai.Client
			if cfg.AI.Provider == "http" && cfg.AI.Endpoint != "" {
				aiClient = ai.NewHTTPClient(cfg.AI.Endpoint, cfg.AI.APIKey, cfg.AI.Model,
					time.Duration(cfg.AI.TimeoutSeconds)*time.Second, log)
				log.Info().Str("endpoint", cfg.AI.Endpoint).Msg("AI capability available")
			} else {
				log.Warn().Msg("no AI provider configured — plan synthesis and AI classification are unavailable")
			}
			aiTimeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second

			cls := classifier.New(aiClient, aiTimeout, log)
			plans := planner.New(aiClient, aiTimeout, log)
			exec := executor.NewHTTPExecutor(cfg.Executor.AllowedHosts,
				cfg.Executor.MaxRetries, cfg.Run.MaxResponseBytes, log)

			runner := engine.NewRunner(engine.Config{
				Events:      events,
				Runs:        runStore,
				Retries:     retryQueue,
				Executor:    exec,
				Classifier:  cls,
				Notify:      hub,
				Metrics:     m,
				Log:         log,
				StepTimeout: time.Duration(cfg.Run.StepTimeoutSeconds) * time.Second,
				RunTimeout:  time.Duration(cfg.Run.RunTimeoutSeconds) * time.Second,
				RetryDelay:  time.Duration(cfg.Retry.IntervalSeconds) * time.Second,
			})

			ingestor := ingress.New(sessions, events, hub, m, log)

			srv := gateway.New(cfg, gateway.Deps{
				Sessions:   sessions,
				Events:     events,
				Runs:       runStore,
				Ingestor:   ingestor,
				Hub:        hub,
				Runner:     runner,
				Planner:    plans,
				Classifier: cls,
				Metrics:    m,
			}, log)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Start(gctx)
			})
			g.Go(func() error {
				return sessions.RunSweeper(gctx, time.Duration(cfg.Session.SweepMinutes)*time.Minute)
			})
			if retryQueue != nil {
				worker := engine.NewRetryWorker(retryQueue, exec, events, hub, m, log,
					time.Duration(cfg.Retry.IntervalSeconds)*time.Second,
					time.Duration(cfg.Run.StepTimeoutSeconds)*time.Second,
					cfg.Retry.MaxAttempts)
				g.Go(func() error {
					return worker.Run(gctx)
				})
			}

			err = g.Wait()
			runner.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
