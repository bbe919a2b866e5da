package metrics

import (
	"fmt"
	"sync"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// ProfitabilitySelector exposes one side of the profitability view at a time.
// It is safe for concurrent use.
type ProfitabilitySelector struct {
	mu   sync.RWMutex
	mode domain.ProfitabilityMode
}

// NewProfitabilitySelector starts in procedure mode.
func NewProfitabilitySelector() *ProfitabilitySelector {
	return &ProfitabilitySelector{mode: domain.ProfitabilityByProcedure}
}

func (s *ProfitabilitySelector) Mode() domain.ProfitabilityMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode selects a mode explicitly.
func (s *ProfitabilitySelector) SetMode(mode domain.ProfitabilityMode) error {
	if mode != domain.ProfitabilityByProcedure && mode != domain.ProfitabilityByPhysician {
		return fmt.Errorf("unknown profitability mode %q", mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

// Toggle flips between procedure and physician and returns the new mode.
func (s *ProfitabilitySelector) Toggle() domain.ProfitabilityMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == domain.ProfitabilityByPhysician {
		s.mode = domain.ProfitabilityByProcedure
	} else {
		s.mode = domain.ProfitabilityByPhysician
	}
	return s.mode
}

// Rows returns the rows of the selected side.
func (s *ProfitabilitySelector) Rows(view domain.ProfitabilityView) []domain.ProfitabilityRow {
	return view.Rows(s.Mode())
}

// Title is the heading of the selected breakdown.
func (s *ProfitabilitySelector) Title() string {
	if s.Mode() == domain.ProfitabilityByPhysician {
		return "Profitability by Physician"
	}
	return "Profitability by Procedure"
}

// ToggleLabel names the breakdown a toggle would switch to.
func (s *ProfitabilitySelector) ToggleLabel() string {
	if s.Mode() == domain.ProfitabilityByPhysician {
		return "View by Procedure"
	}
	return "View by Physician"
}
