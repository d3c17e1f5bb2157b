package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Easy-Rad/wally/internal/app"
	"github.com/Easy-Rad/wally/internal/bot"
	"github.com/Easy-Rad/wally/internal/broadcast"
	"github.com/Easy-Rad/wally/internal/config"
	"github.com/Easy-Rad/wally/internal/logging"
	"github.com/Easy-Rad/wally/internal/physch"
	"github.com/Easy-Rad/wally/internal/postgres"
	"github.com/Easy-Rad/wally/internal/ps360"
	wredis "github.com/Easy-Rad/wally/internal/redis"
	"github.com/Easy-Rad/wally/internal/server"
	"github.com/Easy-Rad/wally/internal/xmpp"
)

// ssoDomain prefixes the PhySch SQL Server login.
const ssoDomain = "cdhb"

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := wredis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "wally"
	}
	return hostname + "-" + uuid.NewString()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "mode", cfg.Mode, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	userRepo := postgres.NewUserRepo(pool)

	hub := broadcast.NewHub()
	defer hub.Stop()

	var poller *ps360.Poller
	if cfg.RunPS360() {
		rasClient := ps360.NewClient(cfg.PS360Host, ps360.Credentials{
			Username: cfg.PS360User,
			Password: cfg.PS360Password,
		}, nil)
		poller = ps360.NewPoller(rasClient, userRepo, clock)
	}

	var xmppClient *xmpp.Client
	var physchClient *physch.Client
	if cfg.RunXMPP() {
		var err error
		physchClient, err = physch.NewClient(physch.Config{
			Host:     cfg.PhySchHost,
			Database: cfg.PhySchDB,
			Domain:   ssoDomain,
			User:     cfg.SSOUser,
			Password: cfg.SSOPassword,
		}, clock)
		if err != nil {
			slog.Error("Failed to create PhySch client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = physchClient.Close() }()

		responder := bot.NewResponder(userRepo, physchClient, wredis.NewDebouncer(redisClient))
		xmppClient = xmpp.NewClient(xmpp.Config{
			JID:      cfg.XMPPJID,
			Password: cfg.XMPPPassword,
			Server:   cfg.XMPPServer,
			Port:     cfg.XMPPPort,
		}, userRepo, responder, hub, clock)
	}

	elector := wredis.NewLeaderElector(redisClient, instanceID())

	srv := server.NewServer(userRepo, hub, pool, server.PingFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))
	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	var pollerRunner, xmppRunner app.Runner
	if poller != nil {
		pollerRunner = poller
	}
	if xmppClient != nil {
		xmppRunner = xmppClient
	}
	svc := app.NewService(pollerRunner, xmppRunner, elector, clock)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Service error", "error", err)
	}

	slog.Info("Shutdown signal received, cleaning up...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
}
