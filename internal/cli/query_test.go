package cli

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitKinds(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"table,column,key,info", []string{"table", "column", "key", "info"}},
		{" table , info ", []string{"table", "info"}},
		{"table,,info", []string{"table", "info"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		got := splitKinds(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitKinds(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTrim(t *testing.T) {
	if got := trim("short", 60); got != "short" {
		t.Errorf("expected unchanged string, got %q", got)
	}
	if got := trim("line one\nline two", 60); got != "line one line two" {
		t.Errorf("expected flattened newlines, got %q", got)
	}

	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	got := trim(string(long), 10)
	if len(got) != 12 { // 9 chars + 3-char ellipsis replacement
		t.Errorf("expected trimmed length 12, got %d (%q)", len(got), got)
	}
}

func TestTrim_MultiByte(t *testing.T) {
	// Truncation must land on a rune boundary, not mid-character.
	s := strings.Repeat("é", 20)
	got := trim(s, 10)

	if !utf8.ValidString(got) {
		t.Errorf("trim produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("é", 9) + "..."; got != want {
		t.Errorf("trim = %q, want %q", got, want)
	}

	// Rune count at the limit stays untouched.
	exact := strings.Repeat("é", 10)
	if got := trim(exact, 10); got != exact {
		t.Errorf("expected unchanged string at the limit, got %q", got)
	}
}

func resetQueryFlags() {
	queryText = ""
	queryDataset = ""
	queryKinds = ""
	queryCandidates = 0
	queryTopK = 0
	queryPerGroupCap = -1
	queryLambda = -1
	queryMinSim = -1
	queryNoCite = false
}

func TestBuildRetrieveRequest_Defaults(t *testing.T) {
	resetQueryFlags()
	queryText = "what is a granule?"

	req := buildRetrieveRequest()

	if req.Query != "what is a granule?" {
		t.Errorf("query = %q", req.Query)
	}
	if req.Kinds != nil {
		t.Errorf("expected nil kinds when flag unset, got %v", req.Kinds)
	}
	if req.PerGroupCap != nil || req.Lambda != nil || req.MinSimilarity != nil || req.Cite != nil {
		t.Error("untouched knobs must stay nil so config defaults apply")
	}
}

func TestBuildRetrieveRequest_ZeroOverrides(t *testing.T) {
	// 0 is a meaningful setting for these knobs; it must survive the mapping
	// instead of being mistaken for "unset".
	resetQueryFlags()
	queryText = "q"
	queryPerGroupCap = 0
	queryLambda = 0
	queryMinSim = 0

	req := buildRetrieveRequest()

	if req.PerGroupCap == nil || *req.PerGroupCap != 0 {
		t.Errorf("per-group-cap 0 not forwarded: %v", req.PerGroupCap)
	}
	if req.Lambda == nil || *req.Lambda != 0 {
		t.Errorf("mmr 0 not forwarded: %v", req.Lambda)
	}
	if req.MinSimilarity == nil || *req.MinSimilarity != 0 {
		t.Errorf("min-sim 0 not forwarded: %v", req.MinSimilarity)
	}
}

func TestBuildRetrieveRequest_KindsAndCite(t *testing.T) {
	resetQueryFlags()
	queryText = "q"
	queryKinds = "info, table"
	queryNoCite = true

	req := buildRetrieveRequest()

	if !reflect.DeepEqual(req.Kinds, []string{"info", "table"}) {
		t.Errorf("kinds = %v", req.Kinds)
	}
	if req.Cite == nil || *req.Cite {
		t.Errorf("no-cite not forwarded: %v", req.Cite)
	}
}
