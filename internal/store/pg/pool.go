package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"campaigns/internal/config"
)

func NewPool(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.PoolMaxConns > 0 {
		poolCfg.MaxConns = cfg.PoolMaxConns
	}
	if cfg.PoolMinConns >= 0 {
		poolCfg.MinConns = cfg.PoolMinConns
	}

	if cfg.PoolMaxConnLifetime != "" {
		d, err := time.ParseDuration(cfg.PoolMaxConnLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_POOL_MAX_CONN_LIFETIME: %w", err)
		}
		poolCfg.MaxConnLifetime = d
	}
	if cfg.PoolMaxConnIdleTime != "" {
		d, err := time.ParseDuration(cfg.PoolMaxConnIdleTime)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_POOL_MAX_CONN_IDLE_TIME: %w", err)
		}
		poolCfg.MaxConnIdleTime = d
	}
	if cfg.PoolHealthCheckPeriod != "" {
		d, err := time.ParseDuration(cfg.PoolHealthCheckPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_POOL_HEALTH_CHECK_PERIOD: %w", err)
		}
		poolCfg.HealthCheckPeriod = d
	}

	return pgxpool.NewWithConfig(ctx, poolCfg)
}
