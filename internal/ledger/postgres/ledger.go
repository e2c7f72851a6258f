// Package postgres persists credit charges to a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bizq-orchestrator/internal/ledger"
)

// DefaultTable receives charges when Config.Table is empty.
const DefaultTable = "credit_charges"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Ledger writes one row per charge. Expected schema:
//
//	CREATE TABLE credit_charges (
//		id BIGSERIAL PRIMARY KEY,
//		client_id TEXT NOT NULL,
//		operation TEXT NOT NULL,
//		source TEXT NOT NULL,
//		credits INTEGER NOT NULL,
//		cache_key TEXT NOT NULL,
//		charged_at TIMESTAMPTZ NOT NULL
//	);
type Ledger struct {
	pool  pool
	table string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ledger.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: p, table: table}, nil
}

// NewWithPool builds a Ledger on an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Ledger, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	t, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: p, table: t}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Record inserts charge.
func (l *Ledger) Record(ctx context.Context, charge ledger.Charge) error {
	if err := charge.Validate(); err != nil {
		return err
	}
	at := charge.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (client_id, operation, source, credits, cache_key, charged_at)
VALUES ($1, $2, $3, $4, $5, $6)`, l.table)
	if _, err := l.pool.Exec(ctx, query,
		charge.ClientID,
		string(charge.Operation),
		charge.Source,
		charge.Credits,
		charge.CacheKey,
		at,
	); err != nil {
		return fmt.Errorf("insert charge: %w", err)
	}
	return nil
}

// Total sums the credits charged to clientID.
func (l *Ledger) Total(ctx context.Context, clientID string) (int, error) {
	query := fmt.Sprintf(`SELECT COALESCE(SUM(credits), 0) FROM %s WHERE client_id = $1`, l.table)
	var total int64
	if err := l.pool.QueryRow(ctx, query, clientID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum charges: %w", err)
	}
	return int(total), nil
}

// Close releases the pool.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}
