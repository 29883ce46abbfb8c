package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/paywall-webhook/internal/config"
	"github.com/noah-isme/paywall-webhook/internal/entitlement"
	"github.com/noah-isme/paywall-webhook/internal/obs"
	"github.com/noah-isme/paywall-webhook/internal/resilience"
)

// dependencies holds the process-wide clients built once at startup.
type dependencies struct {
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	Granter entitlement.Granter
}

func (d *dependencies) Close(logger zerolog.Logger) {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

func openDependencies(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*dependencies, error) {
	d := &dependencies{}
	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if cfg.RedisEnabled() {
		client, err := openRedis(startCtx, cfg, logger)
		if err != nil {
			return nil, err
		}
		d.Redis = client
	} else {
		logger.Warn().Msg("REDIS_URL not set; capture ledger and /verify rate limiting disabled")
	}

	if cfg.EntitlementBackend == config.BackendPostgres {
		pool, err := openPostgres(startCtx, cfg)
		if err != nil {
			d.Close(logger)
			return nil, err
		}
		d.Pool = pool
	}

	granter, err := buildGranter(cfg, d.Pool, logger)
	if err != nil {
		d.Close(logger)
		return nil, err
	}
	d.Granter = granter
	return d, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if cfg.Obs.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "paywall-webhook"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func buildGranter(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (entitlement.Granter, error) {
	switch cfg.EntitlementBackend {
	case config.BackendPostgres:
		rpc, err := entitlement.NewPostgresRPC(pool, cfg.EntitlementRPC)
		if err != nil {
			return nil, err
		}
		return entitlement.Instrumented{Backend: config.BackendPostgres, Next: rpc}, nil
	default:
		if role, err := entitlement.ServiceKeyRole(cfg.SupabaseServiceKey); err != nil {
			logger.Info().Msg("supabase service key is not a JWT; skipping role check")
		} else if role != "service_role" {
			logger.Warn().Str("role", role).Msg("supabase key is not a service_role key; RPC may be rejected by row level security")
		}
		breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).WithTarget("supabase")
		rpc, err := entitlement.NewSupabaseRPC(entitlement.SupabaseConfig{
			URL:         cfg.SupabaseURL,
			ServiceKey:  cfg.SupabaseServiceKey,
			Function:    cfg.EntitlementRPC,
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			MaxAttempts: cfg.DownstreamMaxAttempts,
			Backoff:     cfg.DownstreamBackoff,
			Timeout:     cfg.DownstreamTimeout,
		})
		if err != nil {
			return nil, err
		}
		return entitlement.Instrumented{Backend: config.BackendSupabase, Next: rpc}, nil
	}
}
