package cached

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

type stubLoader struct {
	mu      sync.Mutex
	results []error
	calls   int
	active  atomic.Int32
	overlap atomic.Bool
}

func (s *stubLoader) LoadCanonicalDataset(ctx context.Context) (*domain.Dataset, error) {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var err error
	if len(s.results) > 0 {
		err, s.results = s.results[0], s.results[1:]
	}
	if err != nil {
		return nil, err
	}
	ds := domain.EmptyDataset()
	ds.CycleID = time.Now().String()
	ds.Revenue = append(ds.Revenue, domain.RevenueRecord{Type: "Claims", Amount: float64(s.calls)})
	return ds, nil
}

func TestDatasetRepository_EmptyBeforeLoad(t *testing.T) {
	repo := NewDatasetRepository(&stubLoader{})
	ds := repo.Get()
	if ds == nil {
		t.Fatal("Get returned nil")
	}
	if len(ds.Revenue) != 0 || ds.Profitability.Procedure == nil {
		t.Errorf("initial dataset = %+v", ds)
	}
}

func TestDatasetRepository_KeepsPreviousOnFailure(t *testing.T) {
	loader := &stubLoader{results: []error{nil, errors.New("both sources down")}}
	repo := NewDatasetRepository(loader)

	if err := repo.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	first := repo.Get()

	ds, err := repo.Reload(context.Background())
	if err == nil {
		t.Fatal("expected reload error")
	}
	if ds != first || repo.Get() != first {
		t.Error("failed reload replaced the dataset")
	}
}

func TestDatasetRepository_FailureBeforeFirstLoad(t *testing.T) {
	repo := NewDatasetRepository(&stubLoader{results: []error{errors.New("down")}})
	if err := repo.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if ds := repo.Get(); ds == nil || len(ds.Revenue) != 0 {
		t.Errorf("Get = %+v, want empty dataset", ds)
	}
}

func TestDatasetRepository_SerializesReloads(t *testing.T) {
	loader := &stubLoader{}
	repo := NewDatasetRepository(loader)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			repo.Reload(context.Background())
			_ = repo.Get()
		}()
	}
	wg.Wait()

	if loader.overlap.Load() {
		t.Error("reloads overlapped")
	}
	if loader.calls != 8 {
		t.Errorf("calls = %d, want 8", loader.calls)
	}
	if got := repo.Get().Revenue[0].Amount; got < 1 {
		t.Errorf("current dataset not replaced: %v", got)
	}
}
