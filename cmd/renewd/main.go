// Command renewd serves credential issuance and transparent access token renewal
// over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/internal/config"
	"github.com/MrEthical07/goRenew/internal/obs"
	"github.com/MrEthical07/goRenew/internal/rate"
	"github.com/MrEthical07/goRenew/internal/server"
	"github.com/MrEthical07/goRenew/internal/users"
	"github.com/MrEthical07/goRenew/metrics/export/prometheus"
	"github.com/MrEthical07/goRenew/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to a YAML config file")
		embeddedRedis = flag.Bool("embedded-redis", false, "run against an in-process miniredis instead of redis.addr")
	)
	flag.Parse()

	if err := run(*configPath, *embeddedRedis); err != nil {
		fmt.Fprintf(os.Stderr, "renewd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, embeddedRedis bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if embeddedRedis {
		cfg.Redis.Embedded = true
	}

	logger, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	rdb, closeRedis, err := openRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	builder := goRenew.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(goRenew.NewJSONWriterSink(os.Stdout))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}
	db, err := users.Open(cfg.Users.DSN)
	if err != nil {
		return err
	}
	userStore, err := users.NewStore(db, hasher, cfg.Users.DefaultRole)
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if cfg.Login.Enable {
		limiter = rate.New(rdb, rate.Config{
			EnableIPThrottle:      cfg.Login.PerIP,
			MaxLoginAttempts:      cfg.Login.MaxAttempts,
			LoginCooldownDuration: cfg.Login.Cooldown,
		})
	}

	srv, err := server.New(server.Deps{
		Engine:       engine,
		Users:        userStore,
		LoginLimiter: limiter,
		Metrics:      prometheus.NewPrometheusExporter(engine).Handler(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	httpSrv := srv.HTTPServer(cfg.Server.HTTPAddr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("graceful_timeout", cfg.Server.GracefulTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func openRedis(cfg config.Redis, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Embedded {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("using embedded miniredis; credential records are lost on exit", zap.String("addr", mr.Addr()))
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return client, func() { _ = client.Close() }, nil
}
