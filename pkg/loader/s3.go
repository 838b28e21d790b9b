package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plmforge/copilot/pkg/common"
)

// ObjectStore is the slice of object storage the S3 source needs. Satisfied
// by internal/storage.Client; tests substitute an in-memory map.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3Source loads PLM exports from an object storage prefix. Recognized CSV
// export names parse as structured rows; .txt/.md objects become free-text
// document records. Everything else under the prefix is ignored.
type S3Source struct {
	store  ObjectStore
	prefix string
}

// NewS3Source creates a source over the given object storage prefix.
func NewS3Source(store ObjectStore, prefix string) *S3Source {
	return &S3Source{store: store, prefix: prefix}
}

func (s *S3Source) Name() string {
	return "s3:" + s.prefix
}

// Load lists the prefix, sorts the keys and loads each object. A failed list
// or download reports common.ErrSourceUnavailable so ingestion refuses to run
// on a partially readable export.
func (s *S3Source) Load(ctx context.Context) ([]common.Record, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", common.ErrSourceUnavailable, s.prefix, err)
	}
	sort.Strings(keys)

	records := []common.Record{}
	for _, key := range keys {
		ext := strings.ToLower(filepath.Ext(key))
		kind, isCSV := common.RecordKind(""), false
		switch ext {
		case ".csv":
			kind, isCSV = KindForFile(key)
			if !isCSV {
				continue
			}
		case ".txt", ".md":
		default:
			continue
		}

		content, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: downloading %s: %v", common.ErrSourceUnavailable, key, err)
		}

		if isCSV {
			fileBase := strings.TrimSuffix(filepath.Base(key), filepath.Ext(key))
			parsed, err := ParseCSVRecords(content, fileBase, kind, "s3://"+key)
			if err != nil {
				return nil, err
			}
			records = append(records, parsed...)
			continue
		}

		text := strings.TrimSpace(string(content))
		if text == "" {
			continue
		}
		records = append(records, docRecords("rec-doc-"+slugify(strings.TrimPrefix(key, s.prefix)), "s3://"+key, text)...)
	}

	return records, nil
}
