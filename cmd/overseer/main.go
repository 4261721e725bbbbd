// Overseer gateway server — supervises host-agent pipelines through the Eye
// validators, enforcing ordering, policy, and budgets per session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/third-eye/overseer/pkg/api"
	"github.com/third-eye/overseer/pkg/config"
	"github.com/third-eye/overseer/pkg/database"
	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/events"
	"github.com/third-eye/overseer/pkg/pipeline"
	"github.com/third-eye/overseer/pkg/policy"
	"github.com/third-eye/overseer/pkg/settings"
	"github.com/third-eye/overseer/pkg/store"
	"github.com/third-eye/overseer/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("OVERSEER_CONFIG", "./overseer.yaml"),
		"Path to the overseer.yaml configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, continuing with existing environment", "error", err)
	}

	slog.Info("Starting Overseer", "version", version.Full(), "config", *configPath)

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Storage backend: PostgreSQL in production, in-memory for local runs.
	backend := getEnv("STORE_BACKEND", "postgres")

	var (
		st       store.Store
		dbClient *database.Client
		dsn      string
	)

	switch backend {
	case "postgres":
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		slog.Info("Connected to PostgreSQL database")

		st = store.NewPGStore(dbClient.DB())
		dsn = dbConfig.DSN()

	case "memory":
		slog.Warn("Using in-memory store; state is lost on restart")
		st = store.NewMemoryStore()

	default:
		slog.Error("Unknown STORE_BACKEND", "backend", backend)
		os.Exit(1)
	}

	connManager := events.NewConnectionManager(st, cfg.Events.ReplayLimit, cfg.Events.WriteTimeoutDuration())

	var (
		publisher events.Publisher
		listener  *events.NotifyListener
	)
	if dbClient != nil {
		publisher = events.NewPGPublisher(dbClient.DB())
		listener = events.NewNotifyListener(dsn, connManager)
	} else {
		publisher = events.NewLocalPublisher(st, connManager)
	}

	// Counters back rate limits and budgets. Redis keeps them consistent
	// across replicas; the in-process fallback serves single-pod runs.
	var counters policy.CounterStore
	var redisStore *policy.RedisCounterStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStore = policy.NewRedisCounterStore(client)
		counters = redisStore
		slog.Info("Using Redis counters", "addr", cfg.Redis.Addr)
	} else {
		counters = policy.NewMemoryCounterStore()
		slog.Info("Using in-process counters")
	}

	enforcer := policy.NewEnforcer(st, counters, policy.Limits{
		PerMinute:     cfg.RateLimits.PerMinute,
		WindowSeconds: cfg.RateLimits.WindowSeconds,
		MaxPerRequest: cfg.Budgets.MaxPerRequest,
		DailyBudget:   cfg.Budgets.Daily,
	})
	machine := pipeline.NewMachine(st)
	resolver := settings.NewResolver(&store.ProfileResolverAdapter{Profiles: st})

	if err := bootstrapKeys(ctx, st, cfg.APIKeys); err != nil {
		slog.Error("Failed to bootstrap API keys", "error", err)
		os.Exit(1)
	}

	if listener != nil {
		connManager.SetListener(listener)
		if err := listener.Start(ctx); err != nil {
			slog.Error("Failed to start NOTIFY listener", "error", err)
			os.Exit(1)
		}
		defer listener.Stop(ctx)
		slog.Info("NOTIFY listener started")
	}

	httpServer := api.NewServer(cfg, st, enforcer, machine, resolver, publisher, connManager)
	if dbClient != nil {
		httpServer.AddReadinessCheck("database", func(ctx context.Context) error {
			_, err := database.Health(ctx, dbClient.DB())
			return err
		})
	}
	if redisStore != nil {
		httpServer.AddReadinessCheck("redis", redisStore.Ping)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Shutting down due to server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// bootstrapKeys seeds the configured API keys so a fresh deployment is
// usable immediately. Only the hash of each secret is stored; entries may
// carry the hash directly instead of the raw secret.
func bootstrapKeys(ctx context.Context, st store.APIKeyStore, keys []config.BootstrapKey) error {
	now := time.Now().UTC()
	for _, k := range keys {
		hash := k.SHA256
		if hash == "" {
			hash = policy.HashKey(k.Secret)
		}
		limits, err := bootstrapLimits(k.Limits)
		if err != nil {
			return fmt.Errorf("seed key %s: %w", k.ID, err)
		}
		if err := st.PutKey(ctx, &store.APIKey{
			ID:         k.ID,
			SecretHash: hash,
			Role:       store.Role(k.Role),
			Tenant:     k.Tenant,
			Limits:     limits,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("seed key %s: %w", k.ID, err)
		}
		slog.Info("Bootstrapped API key", "key_id", k.ID, "role", k.Role)
	}
	return nil
}

// bootstrapLimits converts the YAML limits block into the store form,
// rejecting unknown tool and branch names before they can silently lock a
// key out of everything.
func bootstrapLimits(l config.BootstrapKeyLimits) (store.KeyLimits, error) {
	out := store.KeyLimits{
		PerMinute:     l.PerMinute,
		WindowSeconds: l.WindowSeconds,
		Budget: store.BudgetLimits{
			MaxPerRequest: l.MaxPerRequest,
			Daily:         l.Daily,
		},
		Tenants: l.Tenants,
	}
	for _, name := range l.Tools {
		tool := envelope.Tool(name)
		if !tool.IsValid() {
			return store.KeyLimits{}, fmt.Errorf("unknown tool %q in limits", name)
		}
		out.Tools = append(out.Tools, tool)
	}
	for _, name := range l.Branches {
		branch := envelope.Branch(name)
		switch branch {
		case envelope.BranchShared, envelope.BranchCode, envelope.BranchText:
		default:
			return store.KeyLimits{}, fmt.Errorf("unknown branch %q in limits", name)
		}
		out.Branches = append(out.Branches, branch)
	}
	return out, nil
}
