package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"timeline/internal/config"
	"timeline/internal/database"
	"timeline/internal/modules/auth"
	"timeline/internal/pkg/jwt"
	"timeline/internal/pkg/logger"
	"timeline/internal/pkg/ratelimit"
	"timeline/internal/repository"
	"timeline/internal/server"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("timeline: %v", err)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		App:     cfg.App.Name,
		Env:     cfg.App.Env,
		Version: cfg.App.Version,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	displayAppName(cfg.App.Name)

	db, err := database.Connect(cfg.DB.DSN, lg)
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, limiter, closeBackend, err := newBackends(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeBackend()

	tokens, err := jwt.NewService(jwt.Config{
		Secret:     cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, store, lg)
	if err != nil {
		return err
	}
	tokens.StartJanitor(ctx, cfg.Auth.CleanupInterval)

	var google auth.GoogleVerifier
	if cfg.Google.ClientID != "" {
		google = auth.NewGoogleVerifier(ctx, cfg.Google.ClientID)
	} else {
		lg.Info("google sign-in disabled")
	}

	srv := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Config:  cfg,
			Users:   repository.NewUserRepository(db),
			Tokens:  tokens,
			Limiter: limiter,
			Google:  google,
			Logger:  lg,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	lg.Info("server stopped")
	return nil
}

// newBackends picks the revocation store and rate limiter. Both share one
// redis client when the redis backend is configured.
func newBackends(ctx context.Context, cfg *config.Config, lg *zap.Logger) (jwt.Store, ratelimit.Limiter, func(), error) {
	if cfg.Store.Backend != config.StoreRedis {
		lg.Info("using in-memory token store and rate limiter")
		return jwt.NewMemoryStore(), ratelimit.NewMemoryLimiter(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	lg.Info("using redis token store and rate limiter", zap.String("addr", cfg.Redis.Addr))

	closeFn := func() { _ = rdb.Close() }
	return jwt.NewRedisStore(rdb, cfg.Redis.Prefix),
		ratelimit.NewRedisLimiter(rdb, cfg.Redis.Prefix+"rl:"),
		closeFn, nil
}

func displayAppName(name string) {
	figure.NewFigure(name, "cybermedium", true).Print()
	fmt.Println()
}
