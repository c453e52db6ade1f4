package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/narrator/internal/archiver"
	"github.com/dwsmith1983/narrator/internal/condition"
	"github.com/dwsmith1983/narrator/internal/config"
	"github.com/dwsmith1983/narrator/internal/llm"
	"github.com/dwsmith1983/narrator/internal/notify"
	pgstore "github.com/dwsmith1983/narrator/internal/provider/postgres"
	"github.com/dwsmith1983/narrator/internal/resilience"
	"github.com/dwsmith1983/narrator/internal/staging"
	"github.com/dwsmith1983/narrator/internal/telemetry"
	"github.com/dwsmith1983/narrator/internal/worker"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var directors []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline workers until interrupted",
		Long: `Serve runs one worker pool over every pipeline stage. Director and
player messages go to the configured notify sinks. Worlds passed with
--director are treated as having a director attached to those sinks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), directors)
		},
	}
	cmd.Flags().StringSliceVar(&directors, "director", nil, "world id with a connected director (repeatable)")
	return cmd
}

func runServe(ctx context.Context, directors []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := slog.Default()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}

	prov, err := startProvider(ctx, cfg)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	qopts, err := queueOptions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	qs := worker.NewQueues(prov, qopts...)

	registry := notify.NewRegistry()
	for _, worldID := range directors {
		registry.Connect(worldID, notify.RoleDirector)
	}
	sink, err := notify.FromConfig(ctx, registry, cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("creating notify sinks: %w", err)
	}

	ai := newLLM(cfg, logger)
	engineOpts := []staging.Option{staging.WithLogger(logger)}
	var conditions *condition.Evaluator
	if ai != nil {
		engineOpts = append(engineOpts, staging.WithLLM(ai))
		conditions = newConditionEvaluator(cfg, ai, logger)
	} else {
		logger.Warn("llm disabled; LLM_REQUEST items wait until it is enabled")
	}
	stagingCfg := staging.Config{}
	if cfg.Staging != nil {
		stagingCfg.DefaultTTLHours = cfg.Staging.DefaultTTLHours
		stagingCfg.UseLLM = cfg.Staging.UseLLM
	}
	engine := staging.NewEngine(prov, cat, cat, stagingCfg, engineOpts...)

	stagingHandler := &worker.StagingRequestHandler{Staging: engine, Sink: sink, Queues: qs, Logger: logger}
	if cfg.Staging != nil {
		stagingHandler.AutoApprove = cfg.Staging.AutoApprove
		stagingHandler.AutoApproveAfter = config.Duration(cfg.Staging.AutoApproveTimeout, 0)
	}
	handlers := worker.Handlers{
		PlayerAction: &worker.PlayerActionHandler{
			Worlds: cat, Regions: cat, Characters: cat, Events: cat,
			Staging:    engine,
			Conditions: conditions,
			Queues:     qs,
			Logger:     logger,
		},
		Approval:       &worker.ApprovalHandler{Sink: sink},
		DirectorAction: &worker.DirectorActionHandler{Queues: qs, Staging: engine, Worlds: cat, Events: cat},
		StagingRequest: stagingHandler,
		Broadcast:      &worker.BroadcastHandler{Sink: sink},
	}
	if ai != nil {
		handlers.LlmRequest = &worker.LlmRequestHandler{LLM: ai, Queues: qs}
	}

	recovery := recoveryInterval(cfg)
	var counts map[types.QueueType]int
	if cfg.Queue != nil {
		counts = cfg.Queue.Workers
	}
	pool := worker.NewPool(logger)
	pool.Add(worker.StageWorkers(qs, handlers, counts, worker.WithRecoveryInterval(recovery), worker.WithLogger(logger))...)
	if stagingHandler.AutoApprove && stagingHandler.AutoApproveAfter > 0 {
		pool.Add(stagingHandler.Sweeper(min(stagingHandler.AutoApproveAfter, recovery)))
	}
	if r := cfg.Reporter; r != nil && r.Enabled {
		pool.Add(worker.NewStatusReporter(prov, sink, config.Duration(r.Interval, worker.DefaultReportInterval), logger))
	}

	// Archiver
	var arc *archiver.Archiver
	var pg *pgstore.Archive
	if a := cfg.Archive; a != nil && a.Enabled {
		pg, err = pgstore.Open(ctx, a.DSN)
		if err != nil {
			return fmt.Errorf("connecting to Postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("migrating Postgres: %w", err)
		}
		arc = archiver.New(prov, pg, cat.ListRegionIDs, config.Duration(a.Interval, 5*time.Minute), logger)
		arc.Start(ctx)
	}

	pool.Start(ctx)
	color.Green("narrator serving %d workers on %s storage", pool.Size(), cfg.Provider)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	color.Yellow("\nReceived %s, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var stopErr error
	if err := pool.Stop(shutdownCtx); err != nil {
		stopErr = fmt.Errorf("stopping workers: %w", err)
	}
	if arc != nil {
		arc.Stop(shutdownCtx)
		pg.Close()
	}
	_ = prov.Stop(shutdownCtx)
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
	if stopErr != nil {
		return stopErr
	}
	color.Green("Workers stopped gracefully")
	return nil
}

// newLLM builds the OpenAI-compatible backend behind one shared breaker.
// It returns nil when the AI is disabled.
func newLLM(cfg *types.ProjectConfig, logger *slog.Logger) llm.Provider {
	if cfg.LLM == nil || !cfg.LLM.Enabled {
		return nil
	}
	backend := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		Timeout:   config.Duration(cfg.LLM.Timeout, 0),
		MaxTokens: cfg.LLM.MaxTokens,
	})

	bc := resilience.DefaultBreakerConfig()
	rc := resilience.DefaultRetryConfig()
	if r := cfg.Resilience; r != nil {
		if r.FailureThreshold > 0 {
			bc.FailureThreshold = r.FailureThreshold
		}
		bc.OpenDuration = config.Duration(r.OpenDuration, bc.OpenDuration)
		if r.HalfOpenMaxRequests > 0 {
			bc.HalfOpenMaxRequests = r.HalfOpenMaxRequests
		}
		if r.MaxRetries != nil {
			rc.MaxRetries = *r.MaxRetries
		}
		if r.BaseDelayMs > 0 {
			rc.BaseDelay = time.Duration(r.BaseDelayMs) * time.Millisecond
		}
		if r.MaxDelayMs > 0 {
			rc.MaxDelay = time.Duration(r.MaxDelayMs) * time.Millisecond
		}
		if r.JitterFactor != nil {
			rc.JitterFactor = *r.JitterFactor
		}
	}
	breaker := resilience.NewBreaker("llm", bc, resilience.WithBreakerLogger(logger))
	return llm.NewResilient(backend, resilience.NewCaller(breaker, rc, resilience.WithLogger(logger)))
}

func newConditionEvaluator(cfg *types.ProjectConfig, ai llm.Provider, logger *slog.Logger) *condition.Evaluator {
	opts := []condition.Option{condition.WithLogger(logger)}
	if c := cfg.Conditions; c != nil {
		if c.Threshold != nil {
			opts = append(opts, condition.WithThreshold(*c.Threshold))
		}
		if ttl := config.Duration(c.CacheTTL, 0); ttl > 0 {
			opts = append(opts, condition.WithCache(ttl))
		}
	}
	return condition.NewEvaluator(ai, opts...)
}
