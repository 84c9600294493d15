package ignore

import "testing"

func TestMatcher_DefaultAndUserOverrides(t *testing.T) {
	m := NewMatcher([]string{
		"vendor/**",
		"!vendor/keep/file.ts",
		"*.tmp",
	})

	cases := []struct {
		path    string
		isDir   bool
		ignored bool
	}{
		{path: ".git/config", isDir: false, ignored: true},
		{path: ".husk/state.json", isDir: false, ignored: true},
		{path: "node_modules/pkg/index.js", isDir: false, ignored: true},
		{path: "src/types/global.d.ts", isDir: false, ignored: true},
		{path: "vendor/lib/a.ts", isDir: false, ignored: true},
		{path: "vendor/keep/file.ts", isDir: false, ignored: false},
		{path: "nested/cache.tmp", isDir: false, ignored: true},
		{path: "src/main.ts", isDir: false, ignored: false},
	}

	for _, tc := range cases {
		got := m.ShouldIgnore(tc.path, tc.isDir)
		if got != tc.ignored {
			t.Fatalf("path %s: expected ignored=%v, got %v", tc.path, tc.ignored, got)
		}
	}
}

func TestMatcher_NegatedDirectoryRule(t *testing.T) {
	m := NewMatcher([]string{
		"build/",
		"!build/include/",
	})

	if !m.ShouldIgnore("build/out/file.ts", false) {
		t.Fatalf("expected build/out/file.ts to be ignored")
	}
	if m.ShouldIgnore("build/include/file.ts", false) {
		t.Fatalf("expected build/include/file.ts to be included")
	}
}

func TestMatcher_AnchoredRule(t *testing.T) {
	m := NewMatcher([]string{"/generated"})

	if !m.ShouldIgnore("generated", true) {
		t.Fatalf("expected root generated to be ignored")
	}
	if m.ShouldIgnore("src/generated", true) {
		t.Fatalf("anchored rule must not match nested paths")
	}
}

func TestSpecifiers(t *testing.T) {
	s := NewSpecifiers([]string{"@icons/**", "!./keep.svg", "polyfill"})

	cases := []struct {
		specifier string
		ignored   bool
	}{
		{specifier: "./button.css", ignored: true},
		{specifier: "../assets/logo.svg?url", ignored: true},
		{specifier: "./keep.svg", ignored: false},
		{specifier: "@icons/arrow/left", ignored: true},
		{specifier: "polyfill", ignored: true},
		{specifier: "./theme", ignored: false},
		{specifier: "react", ignored: false},
		{specifier: "", ignored: false},
	}

	for _, tc := range cases {
		if got := s.ShouldIgnore(tc.specifier); got != tc.ignored {
			t.Fatalf("specifier %q: expected ignored=%v, got %v", tc.specifier, tc.ignored, got)
		}
	}
}
