// Package ingest produces the canonical dataset from a primary remote source,
// falling back to local snapshots when the primary is unavailable.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

var (
	// ErrSourceUnavailable marks a failed strategy. It is recovered by the
	// orchestrator and never returned on its own.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrTotalIngestionFailure is returned when every strategy failed.
	ErrTotalIngestionFailure = errors.New("total ingestion failure")
)

// QueryExecutor runs one query against the remote data service.
type QueryExecutor interface {
	Query(ctx context.Context, query string) ([]domain.Row, error)
}

// TableReader reads one tabular snapshot into header-keyed rows.
type TableReader interface {
	Read(ctx context.Context, path string) ([]domain.Row, error)
}

// Source is one data-acquisition strategy.
type Source interface {
	Name() string
	Load(ctx context.Context) Outcome
}

// Outcome is the result of one strategy: either a dataset or the reason it failed.
type Outcome struct {
	Dataset *domain.Dataset
	Err     error
}

// Ingested wraps a successfully built dataset.
func Ingested(ds *domain.Dataset) Outcome {
	return Outcome{Dataset: ds}
}

// Failed wraps a strategy failure.
func Failed(err error) Outcome {
	if !errors.Is(err, ErrSourceUnavailable) {
		err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return Outcome{Err: err}
}

// OK reports whether the outcome carries a dataset.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Dataset != nil
}

// Orchestrator tries the primary source and, only on failure, the fallback.
type Orchestrator struct {
	primary  Source
	fallback Source
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. primary may be nil, in which case
// the fallback is used directly.
func NewOrchestrator(primary, fallback Source, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		primary:  primary,
		fallback: fallback,
		logger:   logger.Named("ingest"),
		now:      time.Now,
	}
}

// LoadCanonicalDataset runs one ingestion cycle. It returns an error wrapping
// ErrTotalIngestionFailure only when both strategies failed.
func (o *Orchestrator) LoadCanonicalDataset(ctx context.Context) (*domain.Dataset, error) {
	cycleID := uuid.NewString()
	log := o.logger.With(zap.String("cycle", cycleID))

	var causes []error
	for i, src := range []Source{o.primary, o.fallback} {
		if src == nil {
			continue
		}
		start := o.now()
		out := run(ctx, src)
		if out.OK() {
			ds := out.Dataset
			ds.CycleID = cycleID
			ds.Source = src.Name()
			ds.LoadedAt = o.now()
			log.Info("dataset loaded",
				zap.String("source", src.Name()),
				zap.Int("revenue", len(ds.Revenue)),
				zap.Int("expenses", len(ds.Expenses)),
				zap.Duration("took", o.now().Sub(start)))
			return ds, nil
		}
		causes = append(causes, fmt.Errorf("%s: %w", src.Name(), out.Err))
		if i == 0 {
			log.Warn("primary source unavailable, running in degraded mode",
				zap.String("source", src.Name()), zap.Error(out.Err))
		}
	}

	if len(causes) == 0 {
		causes = append(causes, errors.New("no source configured"))
	}
	err := fmt.Errorf("%w: %w", ErrTotalIngestionFailure, errors.Join(causes...))
	log.Error("ingestion failed", zap.Error(err))
	return nil, err
}

// run shields the orchestrator from a panicking source.
func run(ctx context.Context, src Source) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Errorf("panic: %v", r))
		}
	}()
	out = src.Load(ctx)
	if out.Err == nil && out.Dataset == nil {
		out = Failed(errors.New("empty outcome"))
	}
	return out
}
