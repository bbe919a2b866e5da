// Package query implements the query executors used by the primary ingestion
// strategy: a JSON-over-HTTP query service and direct SQL connections.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

var (
	// ErrMissingRows means the service answered without a row collection.
	ErrMissingRows = errors.New("response has no rows")

	// ErrUnsupportedDSN means no SQL driver matches the DSN.
	ErrUnsupportedDSN = errors.New("unsupported database DSN")
)

// Executor runs one query and returns its rows as string-keyed mappings.
type Executor interface {
	Query(ctx context.Context, query string) ([]domain.Row, error)
}

// Executor kinds.
const (
	KindHTTP = "http"
	KindSQL  = "sql"
)

// Options selects and configures an executor.
type Options struct {
	Kind     string
	URL      string
	APIKey   string
	DSN      string
	Timeout  time.Duration
	MaxConns int32
}

// Closer is implemented by executors holding connections.
type Closer interface {
	Close() error
}

// NewExecutor builds the executor described by opts. For the sql kind,
// postgres:// URLs use a pgx pool and every other DSN goes through gorm.
func NewExecutor(ctx context.Context, opts Options, logger *zap.Logger) (Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("query")

	switch strings.ToLower(opts.Kind) {
	case "", KindHTTP:
		if opts.URL == "" {
			return nil, errors.New("query service URL is empty")
		}
		logger.Info("using query service", zap.String("url", opts.URL))
		return NewHTTPExecutor(opts.URL, opts.APIKey, opts.Timeout), nil
	case KindSQL:
		if isPostgresURL(opts.DSN) {
			return NewPgxExecutor(ctx, opts.DSN, opts.MaxConns, logger)
		}
		exec, err := NewGormExecutor(opts.DSN, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using sql source", zap.String("dialector", exec.Dialector()))
		return exec, nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", opts.Kind)
	}
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
