package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

type Runner struct {
	FS fs.FS
}

// NewRunner reads migrations from migrations/<dialect>/*.sql inside files.
func NewRunner(files fs.FS) *Runner {
	return &Runner{FS: files}
}

func (r *Runner) Apply(ctx context.Context, db *sql.DB, dialect string) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	if dialect == "" {
		return fmt.Errorf("empty dialect")
	}
	base := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(r.FS, base)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, path.Join(base, e.Name()))
	}
	sort.Strings(files)
	for _, p := range files {
		sqlBytes, err := fs.ReadFile(r.FS, p)
		if err != nil {
			return err
		}
		// Executed one statement at a time; the mysql driver rejects
		// multi-statement strings unless multiStatements is set on the DSN.
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", p, err)
			}
		}
	}
	return nil
}

func splitStatements(in string) []string {
	parts := strings.Split(in, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
