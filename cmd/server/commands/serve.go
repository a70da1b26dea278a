package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"discuss/internal/auth"
	"discuss/internal/config"
	"discuss/internal/db"
	"discuss/internal/handlers"
	"discuss/internal/media"
	"discuss/internal/metrics"
	"discuss/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the schema and start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func sessionStore(ctx context.Context, e *env) (auth.Store, func(), error) {
	if e.cfg.Session.Store != config.SessionStoreRedis {
		return auth.NewSQLStore(e.sqlDB, e.cfg.Database.Driver), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     e.cfg.Redis.Addr,
		Password: e.cfg.Redis.Password,
		DB:       e.cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", e.cfg.Redis.Addr, err)
	}
	return auth.NewRedisStore(rdb), func() { rdb.Close() }, nil
}

func runServe(parent context.Context) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()
	cfg, logger := e.cfg, e.log

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx, e.gdb); err != nil {
		return err
	}

	sessStore, closeSessions, err := sessionStore(ctx, e)
	if err != nil {
		return err
	}
	defer closeSessions()
	sessions := auth.NewManager(sessStore, cfg.Session.MaxAge, cfg.Session.SecureCookie)

	files := media.New(cfg.Media.Root)
	if err := files.EnsureDefaults(); err != nil {
		return fmt.Errorf("media: %w", err)
	}

	if cfg.UsesDevFlashKey() {
		logger.Warn("session.flash_key is the built-in development key; set FORUM_SESSION_FLASH_KEY in production")
	}

	h, err := handlers.New(handlers.Config{
		Store:     store.New(e.gdb),
		Sessions:  sessions,
		Flashes:   handlers.NewFlashStore([]byte(cfg.Session.FlashKey), cfg.Session.SecureCookie),
		Media:     files,
		Metrics:   metrics.New(),
		Logger:    logger,
		MaxUpload: cfg.Media.MaxUpload,
		StaticDir: cfg.Web.StaticDir,
	})
	if err != nil {
		return err
	}

	go sessions.RunSweeper(ctx, time.Hour, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Routes(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infow("starting server",
			"addr", cfg.HTTP.Addr,
			"database", cfg.Database.Driver,
			"sessions", cfg.Session.Store,
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
