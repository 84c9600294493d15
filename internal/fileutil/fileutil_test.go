package fileutil

import (
	"reflect"
	"testing"

	"github.com/morozRed/husk/internal/languages"
	"github.com/morozRed/husk/internal/state"
	"github.com/spf13/afero"
)

func TestScanFileHashesSkipsIgnoredAndUnparsable(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/project/src/button.ts":           "export const a = 1;",
		"/project/src/readme.md":           "# docs",
		"/project/node_modules/x/index.js": "module.exports = 1;",
		"/project/src/types.d.ts":          "export type A = string;",
		"/project/src/legacy/old.ts":       "export const b = 2;",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	hashes, err := ScanFileHashes(fs, "/project", languages.NewDefaultRegistry(), []string{"src/legacy/"})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	got := MapKeysSorted(hashes)
	if !reflect.DeepEqual(got, []string{"src/button.ts"}) {
		t.Fatalf("unexpected scanned files %v", got)
	}
}

func TestWriteIfChangedTracked(t *testing.T) {
	fs := afero.NewMemMapFs()
	wrote, err := WriteIfChangedTracked(fs, "/out/a/b.css", []byte(".a {}"))
	if err != nil || !wrote {
		t.Fatalf("expected first write, got wrote=%v err=%v", wrote, err)
	}
	wrote, err = WriteIfChangedTracked(fs, "/out/a/b.css", []byte(".a {}"))
	if err != nil || wrote {
		t.Fatalf("expected no write for identical content, got wrote=%v err=%v", wrote, err)
	}
}

func TestImpactedWithReasons(t *testing.T) {
	st := state.NewState()
	st.Files["button.ts"] = state.FileState{Dependencies: []string{"theme.ts"}}
	st.Files["theme.ts"] = state.FileState{}

	impacted, reasons := ImpactedWithReasons(st, []string{"theme.ts"}, nil)
	if !reflect.DeepEqual(impacted, []string{"button.ts", "theme.ts"}) {
		t.Fatalf("unexpected impacted %v", impacted)
	}
	if !reflect.DeepEqual(reasons["button.ts"], []string{"depends on theme.ts"}) {
		t.Fatalf("unexpected reasons %v", reasons["button.ts"])
	}
}

func TestRelativeDependencies(t *testing.T) {
	got := RelativeDependencies("/project", []string{"/project/src/b.ts", "/project/src/a.ts", "/project/src/a.ts"})
	if !reflect.DeepEqual(got, []string{"src/a.ts", "src/b.ts"}) {
		t.Fatalf("unexpected relative deps %v", got)
	}
}
