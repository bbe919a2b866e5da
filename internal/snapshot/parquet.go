package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/awsl-project/clinicpulse/internal/domain"
)

const parquetReadBatch = 1024

type parquetColumn struct {
	name   string
	isDate bool
}

// ReadParquet reads a flat Parquet file. Leaf columns are keyed by their
// dotted path; null values are omitted and DATE columns become time.Time.
func ReadParquet(ctx context.Context, path string) ([]domain.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	reader := parquet.NewReader(f)
	defer reader.Close()

	schema := reader.Schema()
	paths := schema.Columns()
	columns := make([]parquetColumn, len(paths))
	for i, p := range paths {
		columns[i].name = strings.Join(p, ".")
		if leaf, ok := schema.Lookup(p...); ok {
			if lt := leaf.Node.Type().LogicalType(); lt != nil && lt.Date != nil {
				columns[i].isDate = true
			}
		}
	}

	out := make([]domain.Row, 0, reader.NumRows())
	buf := make([]parquet.Row, parquetReadBatch)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			out = append(out, convertRow(row, columns))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

func convertRow(row parquet.Row, columns []parquetColumn) domain.Row {
	out := make(domain.Row, len(columns))
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		idx := v.Column()
		if idx < 0 || idx >= len(columns) {
			continue
		}
		col := columns[idx]
		out[col.name] = parquetValue(v, col.isDate)
	}
	return out
}

func parquetValue(v parquet.Value, isDate bool) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		if isDate {
			return time.Unix(int64(v.Int32())*86400, 0).UTC()
		}
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return strings.TrimSpace(string(v.ByteArray()))
	default:
		return v.String()
	}
}
