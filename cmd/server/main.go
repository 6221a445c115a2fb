// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jason-s-yu/velada/internal/auth"
	"github.com/jason-s-yu/velada/internal/cache"
	"github.com/jason-s-yu/velada/internal/config"
	"github.com/jason-s-yu/velada/internal/database"
	"github.com/jason-s-yu/velada/internal/handlers"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *logrus.Logger) error {
	keys, err := loadKeys(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	api := &handlers.APIServer{
		Store:          store,
		Events:         cache.NewPublisher(rdb),
		Keys:           keys,
		Logger:         logger,
		OriginPatterns: originPatterns(cfg),
		PingInterval:   cfg.PingInterval,
	}

	srv := &http.Server{
		Addr:              addr(cfg),
		Handler:           handlers.NewRouter(api, allowedOrigins(cfg)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadKeys(cfg config.ServerConfig) (*auth.Keys, error) {
	ttl, err := auth.ParseExpireTime(cfg.TokenExpireTime)
	if err != nil {
		return nil, err
	}
	if cfg.JWTPublicKeyPath == "" {
		return auth.NewKeys(ttl)
	}
	return auth.LoadKeys(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, ttl)
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *logrus.Logger) (handlers.Store, func(), error) {
	if cfg.DatabaseURL == database.MemoryURL {
		logger.Warn("using in-memory store; data is lost on exit")
		return database.NewMemoryStore(), func() {}, nil
	}
	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return database.NewStore(pool), pool.Close, nil
}

func addr(cfg config.ServerConfig) string {
	if cfg.Env == "production" {
		// bind to all hosts in production mode
		return ":" + cfg.Port
	}
	return "localhost:" + cfg.Port
}

// allowedOrigins restricts CORS to the configured origins in production only.
func allowedOrigins(cfg config.ServerConfig) []string {
	if cfg.Env == "production" {
		return cfg.AllowedOrigins
	}
	return []string{"https://*", "http://*"}
}

func originPatterns(cfg config.ServerConfig) []string {
	if cfg.Env == "production" {
		// websocket.Accept matches host patterns, without scheme
		patterns := make([]string, 0, len(cfg.AllowedOrigins))
		for _, o := range cfg.AllowedOrigins {
			patterns = append(patterns, stripScheme(o))
		}
		return patterns
	}
	return []string{"*"}
}

func stripScheme(origin string) string {
	if i := strings.Index(origin, "://"); i >= 0 {
		return origin[i+3:]
	}
	return origin
}
