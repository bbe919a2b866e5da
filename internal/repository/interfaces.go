package repository

import (
	"context"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// DatasetLoader runs one ingestion cycle.
type DatasetLoader interface {
	LoadCanonicalDataset(ctx context.Context) (*domain.Dataset, error)
}

// DatasetRepository holds the current canonical dataset.
type DatasetRepository interface {
	// Get never returns nil; before the first successful load it returns an empty dataset.
	Get() *domain.Dataset
	// Reload replaces the dataset on success and keeps the previous one on failure.
	Reload(ctx context.Context) (*domain.Dataset, error)
}
