package loader

import (
	"reflect"
	"strings"
	"testing"
)

func TestDocumentRecordsShortTextStaysWhole(t *testing.T) {
	text := "Part P-100 requires a torque check after assembly.\n\nSupplier S-017 ships weekly."
	chunks := documentRecords(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("documentRecords() = %v, want the text unchanged", chunks)
	}
}

func TestDocumentRecordsSplitsLongText(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("Part P-100 requires a torque check after assembly. ", 40))
	text := strings.Repeat(para+"\n\n", 8)

	chunks := documentRecords(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want a split for a long document", len(chunks))
	}
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}

	if again := documentRecords(text); !reflect.DeepEqual(again, chunks) {
		t.Error("chunking is not deterministic")
	}
}

func TestDocRecordsIDSuffixes(t *testing.T) {
	short := docRecords("rec-doc-notes", "notes.txt", "One short note.")
	if len(short) != 1 || short[0].ID != "rec-doc-notes" {
		t.Errorf("short document records = %+v, want bare id", short)
	}

	long := strings.Repeat("Part P-100 requires a torque check after assembly. ", 400)
	records := docRecords("rec-doc-spec", "spec.txt", long)
	if len(records) < 2 {
		t.Fatalf("got %d records, want chunked document", len(records))
	}
	if records[0].ID != "rec-doc-spec-1" || records[1].ID != "rec-doc-spec-2" {
		t.Errorf("chunk ids = %s, %s", records[0].ID, records[1].ID)
	}
}
