package canon

import (
	"errors"
	"testing"

	"github.com/user/crosscheck/pkg/model"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		kind    model.EntityKind
		raw     string
		root    string
		want    string
		display string
	}{
		{"absolute under root", model.KindFile, "/repo/a.js", "/repo", "a.js", "a.js"},
		{"relative", model.KindFile, "a.js", "/repo", "a.js", "a.js"},
		{"dot segments", model.KindFile, "./src/../src/app.ts", "/repo", "src/app.ts", "app.ts"},
		{"redundant slashes", model.KindFile, "src//lib///x.go", "/repo", "src/lib/x.go", "x.go"},
		{"root with trailing slash", model.KindFile, "/repo/src/a.py", "/repo/", "src/a.py", "a.py"},
		{"sibling root not stripped", model.KindFile, "/repo2/a.js", "/repo", "repo2/a.js", "a.js"},
		{"windows separators", model.KindFile, `C:\work\proj\src\Main.java`, `C:\work\proj`, "src/Main.java", "Main.java"},
		{"sarif file uri", model.KindFile, "file:///repo/src/a%20b.c", "/repo", "src/a b.c", "a b.c"},
		{"relative uri", model.KindFile, "src/x.c", "", "src/x.c", "x.c"},
		{"case preserved", model.KindFile, "/repo/Src/App.TS", "/repo", "Src/App.TS", "App.TS"},
		{"function identifier", model.KindFunction, "/repo/pkg/a.go:Handler.Serve", "/repo", "pkg/a.go:Handler.Serve", "a.go:Handler.Serve"},
		{"interface kept verbatim", model.KindInterface, "api/Store", "/repo", "api/Store", "Store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Canonicalize(tt.kind, tt.raw, tt.root)
			if err != nil {
				t.Fatalf("Canonicalize(%q): %v", tt.raw, err)
			}
			if e.CanonicalPath != tt.want {
				t.Errorf("CanonicalPath = %q, want %q", e.CanonicalPath, tt.want)
			}
			if e.DisplayName != tt.display {
				t.Errorf("DisplayName = %q, want %q", e.DisplayName, tt.display)
			}
			if e.OriginalIdentifier != tt.raw {
				t.Errorf("OriginalIdentifier = %q, want %q", e.OriginalIdentifier, tt.raw)
			}
			if e.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", e.Kind, tt.kind)
			}
			if !IsCanonical(e.CanonicalPath) {
				t.Errorf("%q is not canonical", e.CanonicalPath)
			}
		})
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		kind model.EntityKind
		raw  string
	}{
		{"empty", model.KindFile, "   "},
		{"escapes root", model.KindFile, "../outside.go"},
		{"escapes after collapse", model.KindFile, "src/../../x.go"},
		{"root itself", model.KindFile, "/repo"},
		{"dot", model.KindFile, "."},
		{"unknown kind", model.EntityKind("class"), "a.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.kind, tt.raw, "/repo")
			if !errors.Is(err, ErrInvalidEntity) {
				t.Errorf("expected ErrInvalidEntity, got %v", err)
			}
		})
	}
}

func TestCanonicalizeRoundTrip(t *testing.T) {
	roots := []string{"/repo", "/repo/", "/home/dev/project"}
	paths := []string{"a.js", "src/app.ts", "deep/nested/dir/file.py"}
	for _, root := range roots {
		for _, p := range paths {
			direct, err := Canonicalize(model.KindFile, p, root)
			if err != nil {
				t.Fatal(err)
			}
			joined, err := Canonicalize(model.KindFile, root+"/"+direct.CanonicalPath, root)
			if err != nil {
				t.Fatal(err)
			}
			if !direct.Same(joined) {
				t.Errorf("root %q path %q: %q != %q", root, p, direct.CanonicalPath, joined.CanonicalPath)
			}
		}
	}
}

func TestIsCanonical(t *testing.T) {
	good := []string{"a.go", "src/a.go"}
	bad := []string{"", "/a.go", `src\a.go`, "src//a.go", "../a.go", "src/./a.go"}
	for _, p := range good {
		if !IsCanonical(p) {
			t.Errorf("IsCanonical(%q) = false", p)
		}
	}
	for _, p := range bad {
		if IsCanonical(p) {
			t.Errorf("IsCanonical(%q) = true", p)
		}
	}
}
