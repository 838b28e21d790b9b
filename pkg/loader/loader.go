package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/plmforge/copilot/pkg/common"
)

// Source produces PLM records for graph ingestion. Implementations load from
// local CSV exports, document directories or object storage; none of them
// touch the graph.
//
// Load must return records in a deterministic order (row index, sorted path)
// so repeated runs over the same data produce identical record ids. A source
// whose backing data cannot be read reports common.ErrSourceUnavailable.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]common.Record, error)
}

// LoadAll loads every source in order and concatenates the results. The
// first source failure aborts the load; partial reads never reach ingestion.
func LoadAll(ctx context.Context, sources ...Source) ([]common.Record, error) {
	out := []common.Record{}
	for _, s := range sources {
		records, err := s.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Name(), err)
		}
		out = append(out, records...)
	}
	return out, nil
}

// KindForFile maps a CSV export file name to its record kind. The names
// follow the standard PLM export layout (parts.csv, suppliers.csv,
// supply_chain.csv, compliance.csv, change_orders.csv).
func KindForFile(path string) (common.RecordKind, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch base {
	case "parts":
		return common.RecordKindPart, true
	case "suppliers":
		return common.RecordKindSupplier, true
	case "supply_chain":
		return common.RecordKindSupplyChain, true
	case "compliance":
		return common.RecordKindCompliance, true
	case "change_orders":
		return common.RecordKindChangeOrder, true
	}
	return "", false
}

// recordID builds the deterministic record id for a CSV row. Row indexes are
// 1-based and refer to data rows, not the header.
func recordID(fileBase string, row int) string {
	return fmt.Sprintf("rec-%s-%04d", fileBase, row)
}
