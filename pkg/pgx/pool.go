package pgx

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolConfig configures Connect.
type PoolConfig struct {
	Config     *pgxpool.Config // takes precedence over ConnString
	ConnString string
	// MaxElapsed bounds the time spent retrying the initial ping. Defaults to 30s.
	MaxElapsed time.Duration
	Logger     *zap.Logger
}

// Connect opens a pool and pings it, retrying with exponential backoff until
// the database answers, MaxElapsed passes or ctx is done.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	logger := cmp.Or(cfg.Logger, zap.NewNop())

	var pool *pgxpool.Pool
	var err error
	switch {
	case cfg.Config != nil:
		pool, err = pgxpool.NewWithConfig(ctx, cfg.Config)
	case cfg.ConnString != "":
		pool, err = pgxpool.New(ctx, cfg.ConnString)
	default:
		return nil, errors.New("pgx: either Config or ConnString must be provided")
	}
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cmp.Or(cfg.MaxElapsed, 30*time.Second)

	ping := func() error {
		err := pool.Ping(ctx)
		if err != nil {
			logger.Warn("database not ready", zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping: %w", err)
	}
	return pool, nil
}
