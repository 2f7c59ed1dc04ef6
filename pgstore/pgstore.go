package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/programme-lv/streaks/challenge"
	"github.com/programme-lv/streaks/evalsrvc"
	"github.com/programme-lv/streaks/jobqueue"
	"github.com/programme-lv/streaks/problemcache"
	"github.com/programme-lv/streaks/sessvault"
)

var (
	_ evalsrvc.Store     = (*Store)(nil)
	_ challenge.Store    = (*Store)(nil)
	_ sessvault.Store    = (*Store)(nil)
	_ problemcache.Store = (*Store)(nil)
	_ jobqueue.Ledger    = (*Store)(nil)
)

// Store is the postgres implementation of every repository the services
// depend on.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and checks that the database answers.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
