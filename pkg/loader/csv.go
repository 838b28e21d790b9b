package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// requiredColumns per record kind. Rows missing a required value are skipped
// with a warning; a header missing a required column fails the whole file.
var requiredColumns = map[common.RecordKind][]string{
	common.RecordKindPart:        {"part_id", "part_name", "product_line"},
	common.RecordKindSupplier:    {"supplier_id", "supplier_name", "region"},
	common.RecordKindSupplyChain: {"part_id", "supplier_id"},
	common.RecordKindCompliance:  {"part_id", "doc_id", "status", "standard"},
	common.RecordKindChangeOrder: {"change_order_id", "title", "status"},
}

// CSVSource loads one PLM CSV export file into records. Parsed results are
// cached per path so repeated loads of the same export do not re-read the
// file; concurrent first loads collapse into one parse via singleflight.
type CSVSource struct {
	path string
	kind common.RecordKind

	cache   map[string][]common.Record
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewCSVSource creates a source for the given CSV export file. The record
// kind is inferred from the file name (parts.csv, suppliers.csv,
// supply_chain.csv, compliance.csv, change_orders.csv).
func NewCSVSource(path string) (*CSVSource, error) {
	kind, ok := KindForFile(path)
	if !ok {
		return nil, fmt.Errorf("unknown CSV export file: %s", filepath.Base(path))
	}
	return &CSVSource{
		path:  path,
		kind:  kind,
		cache: make(map[string][]common.Record),
	}, nil
}

func (s *CSVSource) Name() string {
	return "csv:" + s.path
}

// Load reads and parses the CSV file into records, one per data row, in row
// order.
func (s *CSVSource) Load(ctx context.Context) ([]common.Record, error) {
	s.cacheMu.RLock()
	if cached, ok := s.cache[s.path]; ok {
		s.cacheMu.RUnlock()
		return cached, nil
	}
	s.cacheMu.RUnlock()

	result, err, _ := s.group.Do(s.path, func() (any, error) {
		s.cacheMu.RLock()
		if cached, ok := s.cache[s.path]; ok {
			s.cacheMu.RUnlock()
			return cached, nil
		}
		s.cacheMu.RUnlock()

		content, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnavailable, s.path, err)
		}

		fileBase := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
		records, err := ParseCSVRecords(content, fileBase, s.kind, s.path)
		if err != nil {
			return nil, err
		}

		s.cacheMu.Lock()
		s.cache[s.path] = records
		s.cacheMu.Unlock()

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]common.Record), nil
}

// ParseCSVRecords parses CSV content into records of the given kind. The
// fileBase becomes part of each record id ("rec-parts-0001"), source is the
// provenance string stored on the record.
func ParseCSVRecords(
	content []byte,
	fileBase string,
	kind common.RecordKind,
	source string,
) ([]common.Record, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return parseRows(reader, fileBase, kind, source)
}

// parseRows consumes the reader row by row. The row counter advances for
// every data row read, including skipped and malformed ones, so the ids of
// the remaining rows stay stable across re-ingestion.
func parseRows(
	reader *csv.Reader,
	fileBase string,
	kind common.RecordKind,
	source string,
) ([]common.Record, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.ToLower(header[i]))
	}

	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[col] = i
	}
	for _, col := range requiredColumns[kind] {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("CSV %s: missing required column %q", source, col)
		}
	}

	records := []common.Record{}
	row := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			logger.Warn("[Loader] skipping malformed CSV row", "source", source, "row", row, "err", err)
			continue
		}

		values := make(map[string]string, len(header))
		empty := true
		for col, idx := range colIdx {
			if idx < len(fields) {
				v := strings.TrimSpace(fields[idx])
				values[col] = v
				if v != "" {
					empty = false
				}
			}
		}
		if empty {
			continue
		}

		missing := false
		for _, col := range requiredColumns[kind] {
			if values[col] == "" {
				logger.Warn("[Loader] skipping row with missing value",
					"source", source, "row", row, "column", col)
				missing = true
				break
			}
		}
		if missing {
			continue
		}

		records = append(records, common.Record{
			ID:     recordID(fileBase, row),
			Kind:   kind,
			Source: source,
			Text:   renderRowText(kind, values),
			Fields: values,
		})
	}

	return records, nil
}

// renderRowText builds the embedding/prompt surface for a structured row. The
// sentences carry the natural keys so vector search can find rows by part
// number or supplier id.
func renderRowText(kind common.RecordKind, v map[string]string) string {
	switch kind {
	case common.RecordKindPart:
		return fmt.Sprintf("Part %s (%s) belongs to product line %s.",
			v["part_id"], v["part_name"], v["product_line"])
	case common.RecordKindSupplier:
		return fmt.Sprintf("Supplier %s (%s) operates in region %s.",
			v["supplier_id"], v["supplier_name"], v["region"])
	case common.RecordKindSupplyChain:
		return fmt.Sprintf("Part %s is supplied by supplier %s.",
			v["part_id"], v["supplier_id"])
	case common.RecordKindCompliance:
		return fmt.Sprintf("Part %s has compliance document %s (standard %s, status %s).",
			v["part_id"], v["doc_id"], v["standard"], v["status"])
	case common.RecordKindChangeOrder:
		var b strings.Builder
		fmt.Fprintf(&b, "Change order %s (%s) has status %s.",
			v["change_order_id"], v["title"], v["status"])
		if v["supersedes"] != "" {
			fmt.Fprintf(&b, " It supersedes change order %s.", v["supersedes"])
		}
		if v["affected_parts"] != "" {
			fmt.Fprintf(&b, " Affected parts: %s.", v["affected_parts"])
		}
		if v["description"] != "" {
			b.WriteString(" " + v["description"])
		}
		return b.String()
	}
	return ""
}
