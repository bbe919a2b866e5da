package ingest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/awsl-project/clinicpulse/internal/domain"
	"github.com/awsl-project/clinicpulse/internal/normalize"
)

// SnapshotSource is the fallback strategy. It reads one row per claim and
// one row per ledger entry and groups them locally.
type SnapshotSource struct {
	reader     TableReader
	claimsPath string
	ledgerPath string
	topN       int
	logger     *zap.Logger
}

// NewSnapshotSource creates the fallback strategy over two snapshot files.
func NewSnapshotSource(reader TableReader, claimsPath, ledgerPath string, topN int, logger *zap.Logger) *SnapshotSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topN <= 0 {
		topN = DefaultTopProcedures
	}
	return &SnapshotSource{
		reader:     reader,
		claimsPath: claimsPath,
		ledgerPath: ledgerPath,
		topN:       topN,
		logger:     logger.Named("snapshot"),
	}
}

// Name implements Source.
func (s *SnapshotSource) Name() string {
	return "snapshot"
}

// Load implements Source.
func (s *SnapshotSource) Load(ctx context.Context) Outcome {
	var claims, ledger []domain.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.reader.Read(gctx, s.claimsPath)
		if err != nil {
			return fmt.Errorf("claims snapshot: %w", err)
		}
		claims = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.reader.Read(gctx, s.ledgerPath)
		if err != nil {
			return fmt.Errorf("ledger snapshot: %w", err)
		}
		ledger = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return Failed(err)
	}

	b := newBuilder(s.topN)
	one := decimal.NewFromInt(1)
	for _, row := range claims {
		e, err := normalize.ClaimEntities.Apply(row)
		if err != nil {
			b.malformed++
			s.logger.Debug("skip claim", zap.Error(err))
			continue
		}
		amount := e.Amount(normalize.FieldAmount)
		b.addProcedure(e.Label(normalize.FieldProcedure), amount, 1)
		b.addPhysician(e.Label(normalize.FieldPhysician), amount, 1)

		v, err := normalize.ClaimsSnapshot.Apply(row)
		if err != nil {
			b.malformed++
			s.logger.Debug("claim left out of time series", zap.Error(err))
			continue
		}
		d := v.Date(normalize.FieldDate)
		b.addRevenue(d, v.Label(normalize.FieldType), amount)
		paid := decimal.Zero
		if amount.IsPositive() {
			paid = one
		}
		b.addUtilization(d, one, paid)
	}
	for _, row := range ledger {
		e, err := normalize.LedgerEntities.Apply(row)
		if err != nil {
			b.malformed++
			s.logger.Debug("skip ledger entry", zap.Error(err))
			continue
		}
		amount := e.Amount(normalize.FieldAmount)
		if physician := e.Label(normalize.FieldPhysician); physician != "" {
			b.addPhysicianExpense(physician, amount)
		}

		v, err := normalize.LedgerSnapshot.Apply(row)
		if err != nil {
			b.malformed++
			s.logger.Debug("ledger entry left out of time series", zap.Error(err))
			continue
		}
		b.addExpense(v.Date(normalize.FieldDate), v.Label(normalize.FieldCategory), amount)
	}

	if b.malformed > 0 {
		s.logger.Warn("dropped malformed rows", zap.Int("count", b.malformed))
	}
	return Ingested(b.dataset())
}
