package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/flowforge/orchestrator/internal/config"
	"github.com/flowforge/orchestrator/internal/engine"
	engineinmem "github.com/flowforge/orchestrator/internal/engine/inmem"
	"github.com/flowforge/orchestrator/internal/engine/temporal"
	"github.com/flowforge/orchestrator/internal/httpapi"
	"github.com/flowforge/orchestrator/internal/runstore"
	runstoreinmem "github.com/flowforge/orchestrator/internal/runstore/inmem"
	"github.com/flowforge/orchestrator/internal/runstore/mongostore"
	"github.com/flowforge/orchestrator/internal/sessiontoken"
	sessiontokeninmem "github.com/flowforge/orchestrator/internal/sessiontoken/inmem"
	sessiontokenredis "github.com/flowforge/orchestrator/internal/sessiontoken/redisstore"
	"github.com/flowforge/orchestrator/internal/telemetry"
	"github.com/flowforge/orchestrator/internal/toolregistry"
	toolregistryinmem "github.com/flowforge/orchestrator/internal/toolregistry/inmem"
	toolregistryredis "github.com/flowforge/orchestrator/internal/toolregistry/redisstore"
)

// buildEngine constructs the workflow engine for cfg.EngineBackend. The
// in-memory backend needs no teardown; the Temporal backend's client is
// closed through closers on shutdown.
func buildEngine(_ context.Context, cfg *config.Config, logger telemetry.Logger, closers *closerList) (engine.Engine, error) {
	if cfg.EngineBackend == "inmem" {
		return engineinmem.New(), nil
	}

	eng, err := temporal.New(temporal.Options{
		ClientOptions: &temporalclient.Options{
			HostPort:  cfg.Temporal.Address,
			Namespace: cfg.Temporal.Namespace,
		},
		WorkerOptions: temporal.WorkerOptions{TaskQueue: cfg.Temporal.TaskQueue},
		Logger:        logger,
		Metrics:       telemetry.NewClueMetrics("engine.temporal"),
		Tracer:        telemetry.NewClueTracer("engine.temporal"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect temporal: %w", err)
	}
	closers.add(eng.Close)
	return eng, nil
}

// buildRunStore selects the Mongo-backed Run Registry store when
// DATABASE_URL is configured, falling back to the in-memory store
// otherwise (local development, or a deployment that accepts losing run
// history across restarts).
func buildRunStore(ctx context.Context, cfg *config.Config, closers *closerList) (*runstore.Registry, error) {
	if cfg.DatabaseURL == "" {
		return runstore.New(runstoreinmem.New()), nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	closers.add(client.Disconnect)

	store, err := mongostore.New(ctx, mongostore.Options{
		Client:   client,
		Database: "orchestrator",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("init mongo run store: %w", err)
	}
	return runstore.New(store), nil
}

// buildToolRegistry selects the Redis-backed Tool Registry store when
// TOOL_REGISTRY_REDIS_URL is configured, and an AES-GCM Sealer when
// SECRET_STORE_MASTER_KEY is set (credentials are stored unsealed
// otherwise, matching the Registry's own nil-Sealer allowance).
func buildToolRegistry(ctx context.Context, cfg *config.Config, closers *closerList) (*toolregistry.Registry, error) {
	var sealer toolregistry.Sealer
	if cfg.SecretStoreMasterKey != "" {
		s, err := toolregistry.NewAESGCMSealer([]byte(cfg.SecretStoreMasterKey))
		if err != nil {
			return nil, fmt.Errorf("init credential sealer: %w", err)
		}
		sealer = s
	}

	if cfg.ToolRegistryRedisURL == "" {
		return toolregistry.New(toolregistryinmem.New(), sealer), nil
	}

	client, err := newRedisClient(ctx, cfg.ToolRegistryRedisURL, closers)
	if err != nil {
		return nil, err
	}
	return toolregistry.New(toolregistryredis.New(client, "toolregistry:"), sealer), nil
}

// buildSessionMinter selects the Redis-backed session token store when
// TOOL_REGISTRY_REDIS_URL is configured, pointing at the same Redis server
// the Tool Registry uses through a client of its own.
func buildSessionMinter(ctx context.Context, cfg *config.Config, closers *closerList) (*sessiontoken.Minter, error) {
	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		return nil, fmt.Errorf("generate session token signing key: %w", err)
	}

	if cfg.ToolRegistryRedisURL == "" {
		return sessiontoken.New(sessiontokeninmem.New(), signingKey), nil
	}

	client, err := newRedisClient(ctx, cfg.ToolRegistryRedisURL, closers)
	if err != nil {
		return nil, err
	}
	return sessiontoken.New(sessiontokenredis.New(client, "sessiontoken:"), signingKey), nil
}

// buildSessionProvider selects the operator-session auth provider for
// AUTH_PROVIDER (§6's third auth path).
func buildSessionProvider(cfg *config.Config) (httpapi.SessionProvider, error) {
	switch cfg.Auth.Provider {
	case "clerk":
		return httpapi.ClerkSessionProvider{SecretKey: cfg.Auth.ClerkSecretKey}, nil
	default:
		return httpapi.BasicSessionProvider{Username: cfg.Auth.AdminUsername, Password: cfg.Auth.AdminPassword}, nil
	}
}

func newRedisClient(ctx context.Context, url string, closers *closerList) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	closers.add(client.Close)
	return client, nil
}
