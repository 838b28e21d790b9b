package query

import (
	"reflect"
	"testing"
)

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single",
			text: "P-100 is supplied by S-017 [[rec-supply_chain-0001]].",
			want: []string{"rec-supply_chain-0001"},
		},
		{
			name: "order preserved and deduped",
			text: "First [[rec-b]] then [[rec-a]] and again [[rec-b]].",
			want: []string{"rec-b", "rec-a"},
		},
		{
			name: "invalid charset ignored",
			text: "Not a citation [[rec a]] but this is [[rec-doc-spec]].",
			want: []string{"rec-doc-spec"},
		},
		{
			name: "empty brackets ignored",
			text: "Nothing here [[]] at all.",
			want: nil,
		},
		{
			name: "unterminated tag ignored",
			text: "Dangling [[rec-parts-0001",
			want: nil,
		},
		{
			name: "no citations",
			text: "Plain prose without any tags.",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCitations(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
