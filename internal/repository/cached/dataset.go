package cached

import (
	"context"
	"sync"

	"github.com/awsl-project/clinicpulse/internal/domain"
	"github.com/awsl-project/clinicpulse/internal/repository"
)

// DatasetRepository keeps the current dataset in memory. Readers get an
// immutable snapshot pointer; reloads are serialized and swap the pointer
// wholesale.
type DatasetRepository struct {
	loader repository.DatasetLoader

	mu      sync.RWMutex
	current *domain.Dataset

	reloadMu sync.Mutex
}

func NewDatasetRepository(loader repository.DatasetLoader) *DatasetRepository {
	return &DatasetRepository{
		loader:  loader,
		current: domain.EmptyDataset(),
	}
}

// Load runs the first ingestion at startup.
func (r *DatasetRepository) Load(ctx context.Context) error {
	_, err := r.Reload(ctx)
	return err
}

func (r *DatasetRepository) Get() *domain.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload runs one ingestion cycle. A failed cycle leaves the current dataset
// untouched and returns it alongside the error.
func (r *DatasetRepository) Reload(ctx context.Context) (*domain.Dataset, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	ds, err := r.loader.LoadCanonicalDataset(ctx)
	if err != nil {
		return r.Get(), err
	}

	r.mu.Lock()
	r.current = ds
	r.mu.Unlock()
	return ds, nil
}

var _ repository.DatasetRepository = (*DatasetRepository)(nil)
