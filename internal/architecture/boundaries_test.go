package architecture_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// forbidden lists, per package directory, import prefixes that package must
// not pull in. Domain packages stay free of transport and storage drivers.
var forbidden = map[string][]string{
	"internal/calc":      {"net/http", "database/sql", "fairrate/internal/store", "fairrate/internal/api"},
	"internal/model":     {"net/http", "database/sql", "fairrate/internal/"},
	"internal/ppp":       {"net/http", "database/sql", "fairrate/internal/api"},
	"internal/analytics": {"net/http", "database/sql", "fairrate/internal/api"},
	"internal/session":   {"net/http", "database/sql", "fairrate/internal/api"},
	"internal/throttle":  {"net/http", "database/sql", "fairrate/internal/"},
	"internal/store":     {"net/http", "fairrate/internal/api", "fairrate/internal/bootstrap"},
	"internal/api":       {"database/sql", "fairrate/internal/bootstrap", "github.com/redis/"},
}

func TestPackageImportBoundaries(t *testing.T) {
	root := filepath.Join("..", "..")
	var violations []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := filepath.Base(path)
			if path != root && (strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") || base == "vendor" || base == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		dir := filepath.ToSlash(filepath.Dir(rel))
		rules, ok := forbidden[dir]
		if !ok {
			return nil
		}

		fset := token.NewFileSet()
		f, parseErr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if parseErr != nil {
			return parseErr
		}
		for _, imp := range f.Imports {
			pkg := strings.Trim(imp.Path.Value, `"`)
			for _, prefix := range rules {
				if strings.HasPrefix(pkg, prefix) {
					violations = append(violations, filepath.ToSlash(rel)+" imports "+pkg)
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if len(violations) > 0 {
		t.Fatalf("package boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}
