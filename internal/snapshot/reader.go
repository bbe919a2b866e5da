// Package snapshot reads the local claims and ledger snapshots used by the
// fallback ingestion strategy. CSV and Parquet files are supported.
package snapshot

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

// Reader reads snapshot files into header-keyed rows, choosing the format by
// file extension.
type Reader struct{}

// NewReader creates a snapshot reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read returns every row of the file at path.
func (r *Reader) Read(ctx context.Context, path string) ([]domain.Row, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return ReadParquet(ctx, path)
	}
	return ReadCSV(ctx, path)
}
