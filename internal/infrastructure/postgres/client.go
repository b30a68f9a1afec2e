// Package postgres persists the render job ledger in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const applicationName = "typereel-ledger"

// ClientConfig configures the ledger connection. Zero values keep the pgx
// defaults or whatever the DSN says.
type ClientConfig struct {
	DSN string

	// MaxConns bounds concurrent ledger statements. Writes happen once per
	// finished job, so a handful is plenty.
	MaxConns        int32
	MaxConnIdleTime time.Duration

	// StatementTimeout is enforced by the server so a stuck ledger write
	// never holds a connection longer than the caller's own timeout.
	StatementTimeout time.Duration

	// EnsureSchema creates the render_jobs table and index when missing.
	EnsureSchema bool
}

// DefaultClientConfig returns a ClientConfig sized for the job ledger.
func DefaultClientConfig(dsn string) ClientConfig {
	return ClientConfig{
		DSN:              dsn,
		MaxConns:         4,
		MaxConnIdleTime:  10 * time.Minute,
		StatementTimeout: 5 * time.Second,
		EnsureSchema:     true,
	}
}

// Client owns the ledger's connection pool and the repository on top of it.
type Client struct {
	pool *pgxpool.Pool
	jobs *JobRepository
}

// NewClient connects, verifies the connection and optionally applies the schema.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if cfg.EnsureSchema {
		if err := ensureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Client{pool: pool, jobs: NewJobRepository(pool)}, nil
}

func poolConfig(cfg ClientConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	params := pc.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = applicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return pc, nil
}

func ensureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}

// Jobs returns the job ledger repository.
func (c *Client) Jobs() *JobRepository {
	return c.jobs
}

func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) Close() {
	c.pool.Close()
}
