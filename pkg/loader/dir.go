package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plmforge/copilot/pkg/common"
)

// DirSource loads free-text part specifications and engineering notes from a
// local directory. Only .txt and .md files are considered; CSV exports in the
// same tree are left to CSVSource.
type DirSource struct {
	root string
}

// NewDirSource creates a source over the given document directory.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (s *DirSource) Name() string {
	return "dir:" + s.root
}

// Load walks the directory and returns one document record per file, sorted
// by relative path. Record ids are derived from the relative path so they
// stay stable across runs and machines.
func (s *DirSource) Load(ctx context.Context) ([]common.Record, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnavailable, s.root, err)
	}

	paths := []string{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnavailable, s.root, err)
	}
	sort.Strings(paths)

	records := make([]common.Record, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnavailable, path, err)
		}
		text := strings.TrimSpace(string(content))
		if text == "" {
			continue
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = filepath.Base(path)
		}

		records = append(records, docRecords("rec-doc-"+slugify(rel), path, text)...)
	}

	return records, nil
}

// docRecords materializes the chunked document texts as records. Single-chunk
// documents keep the bare id; chunks of a long document get a 1-based suffix.
func docRecords(baseID, source, text string) []common.Record {
	chunks := documentRecords(text)
	records := make([]common.Record, 0, len(chunks))
	for i, chunk := range chunks {
		id := baseID
		if len(chunks) > 1 {
			id = fmt.Sprintf("%s-%d", baseID, i+1)
		}
		records = append(records, common.Record{
			ID:     id,
			Kind:   common.RecordKindDocument,
			Source: source,
			Text:   chunk,
		})
	}
	return records
}

// slugify turns a relative path into a stable id fragment: lowercase
// alphanumerics with runs of anything else collapsed to a single dash.
func slugify(s string) string {
	s = strings.TrimSuffix(s, filepath.Ext(s))
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
