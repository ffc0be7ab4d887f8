package api

import (
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "", 50, 0, false},
		{"explicit", "limit=10&offset=20", 10, 20, false},
		{"zero limit", "limit=0", 0, 0, true},
		{"negative offset", "offset=-1", 0, 0, true},
		{"garbage limit", "limit=abc", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/x?"+tt.query, nil)
			p, err := ParsePagination(r)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePagination = %+v, want error", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePagination: %v", err)
			}
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got %+v, want limit=%d offset=%d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?elder_id=42&force=true&date=2024-03-10&bad=xyz", nil)

	if v, ok := QueryInt64(r, "elder_id"); !ok || v != 42 {
		t.Errorf("QueryInt64 = %d, %v", v, ok)
	}
	if _, ok := QueryInt64(r, "bad"); ok {
		t.Error("QueryInt64(bad) should not parse")
	}
	if v, ok := QueryBool(r, "force"); !ok || !v {
		t.Errorf("QueryBool = %v, %v", v, ok)
	}
	if v, ok := QueryString(r, "date"); !ok || v != "2024-03-10" {
		t.Errorf("QueryString = %q, %v", v, ok)
	}
	if _, ok := QueryString(r, "missing"); ok {
		t.Error("QueryString(missing) should report absent")
	}
}
