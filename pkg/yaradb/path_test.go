package yaradb

import (
	"testing"
)

func TestFieldValue(t *testing.T) {
	t.Parallel()

	body := map[string]any{
		"name": "alice",
		"age":  30.0,
		"address": map[string]any{
			"city": "London",
		},
		"nullField": nil,
	}

	tests := []struct {
		name    string
		path    string
		want    any
		wantOK  bool
	}{
		{"top level", "name", "alice", true},
		{"nested", "address.city", "London", true},
		{"missing top level", "missing", nil, false},
		{"missing nested", "address.zip", nil, false},
		{"non-map mid-path", "name.first", nil, false},
		{"null value", "nullField", nil, false},
		{"empty path", "", nil, false},
		{"missing intermediate", "does.not.exist", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := fieldValue(body, tc.path)
			if ok != tc.wantOK {
				t.Fatalf("fieldValue(%q) ok = %v, want %v", tc.path, ok, tc.wantOK)
			}

			if ok && got != tc.want {
				t.Fatalf("fieldValue(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestIndexValues_ScalarVsList(t *testing.T) {
	t.Parallel()

	scalar := map[string]any{"tag": "red"}
	if got := indexValues(scalar, "tag"); len(got) != 1 || got[0] != "red" {
		t.Fatalf("indexValues(scalar) = %v", got)
	}

	list := map[string]any{"tags": []any{"red", "blue", nil}}
	got := indexValues(list, "tags")
	if len(got) != 2 || got[0] != "red" || got[1] != "blue" {
		t.Fatalf("indexValues(list) = %v, want [red blue] (nil elements dropped)", got)
	}

	missing := map[string]any{}
	if got := indexValues(missing, "tags"); got != nil {
		t.Fatalf("indexValues(missing) = %v, want nil", got)
	}
}
