package adapter

import (
	"io/fs"
	"path/filepath"
	"strings"
)

var extLanguages = map[string]string{
	".go":    "go",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".java":  "java",
	".kt":    "kotlin",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
}

// LanguageOf returns the language for a file name, or "".
func LanguageOf(name string) string {
	return extLanguages[strings.ToLower(filepath.Ext(name))]
}

// DetectLanguages walks targets and returns the set of languages present and
// the number of source files seen.
func DetectLanguages(targets []string) (map[string]bool, int) {
	langs := make(map[string]bool)
	files := 0
	for _, t := range targets {
		_ = filepath.WalkDir(t, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p != t && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if l := LanguageOf(d.Name()); l != "" {
				langs[l] = true
				files++
			}
			return nil
		})
	}
	return langs, files
}

// Applicable reports whether caps covers at least one of langs. An empty
// language set (nothing recognised) only matches language-agnostic adapters.
func Applicable(caps Capabilities, langs map[string]bool) bool {
	if caps.Any() {
		return true
	}
	for _, l := range caps.Languages {
		if langs[l] {
			return true
		}
	}
	return false
}
