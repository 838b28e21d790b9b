package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/plmforge/copilot/pkg/common"
)

func TestKindForFile(t *testing.T) {
	tests := []struct {
		path     string
		wantKind common.RecordKind
		wantOK   bool
	}{
		{"mock_data/parts.csv", common.RecordKindPart, true},
		{"suppliers.csv", common.RecordKindSupplier, true},
		{"/exports/supply_chain.csv", common.RecordKindSupplyChain, true},
		{"compliance.csv", common.RecordKindCompliance, true},
		{"change_orders.csv", common.RecordKindChangeOrder, true},
		{"notes.csv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			kind, ok := KindForFile(tt.path)
			if ok != tt.wantOK || kind != tt.wantKind {
				t.Errorf("KindForFile(%q) = (%q, %v), want (%q, %v)",
					tt.path, kind, ok, tt.wantKind, tt.wantOK)
			}
		})
	}
}

func TestParseCSVRecords(t *testing.T) {
	content := []byte("part_id,part_name,product_line\n" +
		"P-100,Hex Bolt,Drivetrain\n" +
		",,\n" +
		"P-200,Washer,Drivetrain\n")

	records, err := ParseCSVRecords(content, "parts", common.RecordKindPart, "parts.csv")
	if err != nil {
		t.Fatalf("ParseCSVRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	want := common.Record{
		ID:     "rec-parts-0001",
		Kind:   common.RecordKindPart,
		Source: "parts.csv",
		Text:   "Part P-100 (Hex Bolt) belongs to product line Drivetrain.",
		Fields: map[string]string{
			"part_id":      "P-100",
			"part_name":    "Hex Bolt",
			"product_line": "Drivetrain",
		},
	}
	if !reflect.DeepEqual(records[0], want) {
		t.Errorf("first record = %+v, want %+v", records[0], want)
	}

	// Row ids count data rows, so the blank row still advances the counter.
	if records[1].ID != "rec-parts-0003" {
		t.Errorf("second record id = %s, want rec-parts-0003", records[1].ID)
	}
}

func TestParseCSVRecordsMissingColumn(t *testing.T) {
	content := []byte("part_id,part_name\nP-100,Hex Bolt\n")
	_, err := ParseCSVRecords(content, "parts", common.RecordKindPart, "parts.csv")
	if err == nil {
		t.Fatal("expected error for missing product_line column")
	}
}

func TestParseCSVRecordsSkipsIncompleteRows(t *testing.T) {
	content := []byte("part_id,supplier_id\nP-100,S-017\nP-200,\n")
	records, err := ParseCSVRecords(content, "supply_chain", common.RecordKindSupplyChain, "supply_chain.csv")
	if err != nil {
		t.Fatalf("ParseCSVRecords() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Fields["part_id"] != "P-100" {
		t.Errorf("kept the wrong row: %+v", records[0])
	}
}

func TestParseRowsMalformedRowKeepsIDsStable(t *testing.T) {
	// A strict reader surfaces the quote error LazyQuotes would swallow;
	// the malformed row must still advance the row counter.
	content := "part_id,part_name,product_line\n" +
		"P-100,Hex Bolt,Drivetrain\n" +
		"P-150,\"Bad\"x,Drivetrain\n" +
		"P-200,Washer,Drivetrain\n"
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1

	records, err := parseRows(reader, "parts", common.RecordKindPart, "parts.csv")
	if err != nil {
		t.Fatalf("parseRows() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "rec-parts-0001" || records[1].ID != "rec-parts-0003" {
		t.Errorf("ids = %s, %s, want rec-parts-0001 and rec-parts-0003",
			records[0].ID, records[1].ID)
	}
}

func TestCSVSourceLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suppliers.csv")
	content := "supplier_id,supplier_name,region\nS-017,Acme Fasteners,EMEA\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewCSVSource(path)
	if err != nil {
		t.Fatalf("NewCSVSource() error = %v", err)
	}

	records, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Text != "Supplier S-017 (Acme Fasteners) operates in region EMEA." {
		t.Errorf("unexpected text: %s", records[0].Text)
	}

	// Second load serves from cache and stays identical.
	again, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if !reflect.DeepEqual(records, again) {
		t.Error("cached load differs from first load")
	}
}

func TestCSVSourceUnavailable(t *testing.T) {
	src, err := NewCSVSource(filepath.Join(t.TempDir(), "parts.csv"))
	if err != nil {
		t.Fatalf("NewCSVSource() error = %v", err)
	}
	_, err = src.Load(context.Background())
	if !errors.Is(err, common.ErrSourceUnavailable) {
		t.Errorf("Load() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestDirSourceLoad(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"specs/p-100 spec.md": "P-100 depends on P-200 for torque retention.",
		"notes.txt":           "Supplier S-017 audit passed.",
		"ignore.csv":          "a,b\n1,2\n",
		"empty.txt":           "   \n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	records, err := NewDirSource(dir).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Sorted by relative path: notes.txt before specs/.
	if records[0].ID != "rec-doc-notes" {
		t.Errorf("first id = %s, want rec-doc-notes", records[0].ID)
	}
	if records[1].ID != "rec-doc-specs-p-100-spec" {
		t.Errorf("second id = %s, want rec-doc-specs-p-100-spec", records[1].ID)
	}
	if records[1].Kind != common.RecordKindDocument {
		t.Errorf("kind = %s, want document", records[1].Kind)
	}
}

func TestDirSourceUnavailable(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "missing")).Load(context.Background())
	if !errors.Is(err, common.ErrSourceUnavailable) {
		t.Errorf("Load() error = %v, want ErrSourceUnavailable", err)
	}
}

type fakeStore struct {
	objects map[string][]byte
	listErr error
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	keys := []string{}
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	content, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return content, nil
}

func TestS3SourceLoad(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"exports/parts.csv": []byte("part_id,part_name,product_line\nP-100,Hex Bolt,Drivetrain\n"),
		"exports/spec.txt":  []byte("P-100 requires RoHS compliance."),
		"exports/image.png": []byte{0x89},
	}}

	records, err := NewS3Source(store, "exports/").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Kind != common.RecordKindPart {
		t.Errorf("first record kind = %s, want part", records[0].Kind)
	}
	if records[1].Source != "s3://exports/spec.txt" {
		t.Errorf("document source = %s", records[1].Source)
	}
}

func TestS3SourceUnavailable(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused")}
	_, err := NewS3Source(store, "exports/").Load(context.Background())
	if !errors.Is(err, common.ErrSourceUnavailable) {
		t.Errorf("Load() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parts.csv")
	if err := os.WriteFile(path, []byte("part_id,part_name,product_line\nP-100,Hex Bolt,Drivetrain\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	csvSrc, err := NewCSVSource(path)
	if err != nil {
		t.Fatal(err)
	}

	records, err := LoadAll(context.Background(), csvSrc, NewDirSource(dir))
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}
