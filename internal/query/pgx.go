package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// PgxExecutor runs queries over a pgx connection pool.
type PgxExecutor struct {
	pool *pgxpool.Pool
}

// NewPgxExecutor connects to a postgres:// URL. maxConns <= 0 keeps the
// pool default.
func NewPgxExecutor(ctx context.Context, url string, maxConns int32, log *zap.Logger) (*PgxExecutor, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if log != nil {
		log.Info("connected to postgres", zap.String("host", config.ConnConfig.Host), zap.Int32("maxConns", config.MaxConns))
	}
	return &PgxExecutor{pool: pool}, nil
}

// Query implements Executor.
func (e *PgxExecutor) Query(ctx context.Context, query string) ([]domain.Row, error) {
	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []domain.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(domain.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = pgValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Row{}
	}
	return out, nil
}

// pgValue converts pgx wrapper types into values the normalizer understands.
func pgValue(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(n.Int, n.Exp)
	case pgtype.Date:
		if !n.Valid || n.InfinityModifier != pgtype.Finite {
			return nil
		}
		return n.Time
	case pgtype.Text:
		if !n.Valid {
			return nil
		}
		return n.String
	default:
		return v
	}
}

func (e *PgxExecutor) Close() error {
	e.pool.Close()
	return nil
}
