package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"clinsight/config"
	"clinsight/internal/audit"
	"clinsight/internal/guardrail"
	"clinsight/internal/index"
	"clinsight/internal/pipeline"
	"clinsight/internal/retrieval"
	"clinsight/internal/runtime"
	srv "clinsight/internal/server"
	"clinsight/provider"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the summarization HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return serve
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)

	ix, err := index.Load(cfg.Corpus.Path, cfg.Corpus.Dimensions, 3)
	if err != nil {
		return err
	}
	logger.Printf("corpus loaded: %d documents, %d dimensions", ix.Len(), ix.Dimensions())

	backend, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	metrics := runtime.NewMetrics()

	var (
		auditStore  audit.Store
		auditLookup srv.AuditLookup
		accounts    *srv.AccountStore
	)
	switch cfg.Audit.Backend {
	case "postgres":
		if err := srv.Migrate("file://migrations", cfg.Postgres.DSN(), "up", 0); err != nil {
			return err
		}
		pg, err := audit.NewPostgresStore(ctx, cfg.Postgres.DSN())
		if err != nil {
			return err
		}
		defer pg.Close()
		auditStore = pg
		auditLookup = pg
		accounts = &srv.AccountStore{DB: pg.DB}
	default:
		fs, err := audit.NewFileStore(cfg.Audit.Dir)
		if err != nil {
			return err
		}
		auditStore = fs
		logger.Printf("file audit backend in use; accounts and audit lookup disabled")
	}

	auditor := audit.NewWriter(auditStore, []byte(cfg.Audit.SigningKey), nil, func(error) {
		metrics.AuditWriteFailures.Inc()
	})

	pipe := pipeline.New(
		retrieval.NewEngine(ix, backend),
		backend,
		guardrail.NewEvaluator(cfg.Guardrail.ReviewThreshold),
		guardrail.NewDetector(cfg.Guardrail.GroundingThreshold, cfg.Guardrail.HallucinationThreshold),
		auditor,
		pipeline.Options{MaxNoteLength: cfg.Server.MaxNoteLength, Languages: cfg.LLM.Languages},
		nil,
		metrics,
	)

	var limiter *srv.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Printf("redis unreachable at %s, rate limiting disabled: %v", cfg.Redis.Addr, err)
		} else {
			limiter = srv.NewRateLimiter(rdb, cfg.Server.RateLimit, cfg.Server.RateWindow, nil)
		}
	}

	var auth *srv.AuthHandler
	if cfg.Server.JWTSecret != "" && accounts != nil {
		auth = &srv.AuthHandler{Store: accounts, Secret: []byte(cfg.Server.JWTSecret), TokenTTL: cfg.Server.TokenTTL}
	}

	server := srv.New(cfg.Server, pipe, ix, metrics, limiter, auth, auditLookup, nil)
	return server.Run(ctx)
}
