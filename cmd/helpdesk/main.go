package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/helpdesk/cmd/helpdesk/cli"
	"github.com/noah-isme/helpdesk/internal/actors"
	actorshttp "github.com/noah-isme/helpdesk/internal/actors/http"
	"github.com/noah-isme/helpdesk/internal/app"
	"github.com/noah-isme/helpdesk/internal/audit"
	audithttp "github.com/noah-isme/helpdesk/internal/audit/http"
	"github.com/noah-isme/helpdesk/internal/authz"
	authzhttp "github.com/noah-isme/helpdesk/internal/authz/http"
	"github.com/noah-isme/helpdesk/internal/isolation"
	isolationhttp "github.com/noah-isme/helpdesk/internal/isolation/http"
	"github.com/noah-isme/helpdesk/internal/observability"
	"github.com/noah-isme/helpdesk/internal/platform/cache"
	"github.com/noah-isme/helpdesk/internal/platform/db"
	"github.com/noah-isme/helpdesk/internal/session"
	"github.com/noah-isme/helpdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "helpdesk",
		Short:         "Helpdesk authorization and tenant isolation API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(cli.NewIsolationCommand(openIsolationCLI))

	if err := root.ExecuteContext(ctx); err != nil {
		var exit *cli.ExitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		slog.Default().Error("helpdesk", slog.Any("error", err))
		os.Exit(1)
	}
}

func openIsolationCLI(ctx context.Context) (*cli.IsolationCLI, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	c, err := cli.NewIsolationCLI(pool, isolation.NewPGInspector(pool), isolation.TenantTables)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return c, pool.Close, nil
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	inspector := isolation.NewPGInspector(pool)
	if cfg.IsolationVerifyOnStart {
		report, err := isolation.Verify(ctx, inspector, isolation.TenantTables)
		if err != nil {
			if errors.Is(err, isolation.ErrPolicyDisabled) {
				metrics.IsolationVerified(len(report.Failing), time.Now().UTC())
				logger.Error("tenant isolation policy disabled", slog.Any("tables", report.Failing))
			}
			return fmt.Errorf("verify isolation: %w", err)
		}
		metrics.IsolationVerified(0, time.Now().UTC())
		logger.Info("tenant isolation verified", slog.Int("tables", len(report.Tables)))
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessions := session.NewStore(redisClient, cfg.SessionPrefix, cfg.SessionTTL)
	actorRepo := actors.NewRepository(pool)
	claimsLoader := actors.NewClaimsLoader(actorRepo)
	engine := authz.NewEngine(logger, metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	sink, sinkName := audit.Sink(audit.NewPGSink(pool)), "postgres"
	if cfg.AuditAsync {
		jobsClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			return err
		}
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		sink, sinkName = jobsClient.AuditSink(), "queue"
	}
	emitter := audit.NewEmitter(audit.EmitterConfig{
		Sink:     sink,
		SinkName: sinkName,
		Logger:   logger,
		Observer: metrics,
		Timeout:  cfg.AuditTimeout,
	})

	actorService := actors.NewService(actorRepo, engine, emitter)
	auditService := audit.NewService(audit.NewPGRepository(pool), engine)

	jobInspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := jobInspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Sessions:         sessions,
		Claims:           claimsLoader,
		AuthzHandler:     authzhttp.NewHandler(logger, engine),
		ActorsHandler:    actorshttp.NewHandler(logger, actorService),
		AuditHandler:     audithttp.NewHandler(logger, auditService),
		IsolationHandler: isolationhttp.NewHandler(logger, engine, inspector, isolation.TenantTables),
		JobHandler:       jobs.NewHandler(jobInspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
