// Package database manages the PostgreSQL connection pool shared by the
// engine's repositories.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/config"
)

// ConnectionPool wraps a pgx pool and exposes a database/sql view of it for
// the repositories.
type ConnectionPool struct {
	pool   *pgxpool.Pool
	db     *sql.DB
	logger *zap.Logger
}

// NewConnectionPool connects to PostgreSQL and verifies the connection.
func NewConnectionPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("database pool initialized",
		zap.Int("max_open", cfg.MaxOpenConns),
		zap.Int("max_idle", cfg.MaxIdleConns))

	return &ConnectionPool{pool: pool, db: db, logger: logger}, nil
}

// DB returns the database/sql view of the pool.
func (p *ConnectionPool) DB() *sql.DB {
	return p.db
}

// HealthCheck pings the pool.
func (p *ConnectionPool) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool and its database/sql view.
func (p *ConnectionPool) Close() error {
	err := p.db.Close()
	p.pool.Close()
	return err
}
