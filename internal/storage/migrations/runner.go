package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// ExecFunc applies one SQL text to a backend.
type ExecFunc func(ctx context.Context, sql string) error

// Mode selects how a migration file is handed to ExecFunc.
type Mode int

const (
	// WholeFile passes each file in one call. For drivers that accept
	// multi-statement scripts (pgx simple protocol, mattn sqlite).
	WholeFile Mode = iota
	// PerStatement splits each file on semicolons and passes one statement
	// per call. ClickHouse rejects multi-statement Exec.
	PerStatement
)

var errSemicolonInString = errors.New("semicolon inside string literal")

// Apply runs every .sql file directly under dir of fsys in lexical order and
// returns the names of the files it applied. Blank files are skipped.
// Migrations must be idempotent; nothing records which files already ran.
func Apply(ctx context.Context, fsys fs.FS, dir string, mode Mode, exec ExecFunc) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations in %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var applied []string
	for _, file := range files {
		data, err := fs.ReadFile(fsys, path.Join(dir, file))
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", file, err)
		}
		script := string(data)
		if strings.TrimSpace(script) == "" {
			continue
		}

		stmts := []string{script}
		if mode == PerStatement {
			if err := validateNoSemicolonInStrings(script); err != nil {
				return applied, fmt.Errorf("validate migration %s: %w", file, err)
			}
			stmts = splitStatements(script)
		}
		for _, stmt := range stmts {
			if err := exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		applied = append(applied, file)
	}
	return applied, nil
}

// splitStatements drops blank and "--" comment lines and splits the rest on
// semicolons. Semicolons inside string literals or block comments are not
// understood; validateNoSemicolonInStrings rejects the former.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings reports a semicolon inside a single-quoted
// literal. Doubled quotes ('') are treated as escapes.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return fmt.Errorf("%w at byte %d", errSemicolonInString, i)
			}
		}
	}
	return nil
}
