package parser

import "testing"

func TestExportSetUnionAndContains(t *testing.T) {
	a := NewExportSet("x", "y")
	b := NewExportSet("y", "z")

	u := a.Union(b)
	if u.Key() != "x,y,z" {
		t.Fatalf("expected x,y,z, got %s", u.Key())
	}
	if !u.Contains(a) || !u.Contains(b) {
		t.Fatalf("union must contain both operands")
	}
	if a.Contains(b) {
		t.Fatalf("did not expect %s to contain %s", a, b)
	}
	// operands are not mutated
	if a.Key() != "x,y" {
		t.Fatalf("expected a to stay x,y, got %s", a.Key())
	}
}

func TestExportSetAllSentinel(t *testing.T) {
	all := NewExportSet("a", AllExports)
	if !all.IsAll() || all.Len() != -1 || all.Names() != nil {
		t.Fatalf("expected all-set, got %s", all)
	}
	if !all.Has("anything") || !all.Contains(NewExportSet("q")) {
		t.Fatalf("all-set must contain every name")
	}
	if NewExportSet("q").Contains(All()) {
		t.Fatalf("finite set must not contain the all-set")
	}
	if all.Key() != "*" {
		t.Fatalf("expected key *, got %s", all.Key())
	}
}

func TestExportSetEmpty(t *testing.T) {
	var empty ExportSet
	if !empty.IsEmpty() || empty.Len() != 0 || empty.Key() != "" {
		t.Fatalf("zero value must be empty")
	}
	if !NewExportSet("a").Contains(empty) {
		t.Fatalf("every set contains the empty set")
	}
	if !NewExportSet(" ", "").IsEmpty() {
		t.Fatalf("blank names are ignored")
	}
}
