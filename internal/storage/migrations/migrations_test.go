package migrations

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	in := `-- header
CREATE TABLE a (x Int64) ENGINE = Memory;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(in)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b';"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/trader")
	require.NoError(t, err)
	assert.Equal(t, "trader", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsAreSafeToSplit(t *testing.T) {
	for _, sub := range []struct {
		fsys fs.FS
		dir  string
	}{
		{PostgresFS, "postgres"},
		{ClickhouseFS, "clickhouse"},
		{SqliteFS, "sqlite"},
	} {
		entries, err := fs.ReadDir(sub.fsys, sub.dir)
		require.NoError(t, err)
		require.NotEmpty(t, entries, sub.dir)
		for _, e := range entries {
			data, err := fs.ReadFile(sub.fsys, sub.dir+"/"+e.Name())
			require.NoError(t, err)
			assert.NoError(t, validateNoSemicolonInStrings(string(data)), e.Name())
		}
	}
}

func TestApply_WholeFileInOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"db/002_b.sql":   {Data: []byte("CREATE TABLE b (y TEXT);")},
		"db/001_a.sql":   {Data: []byte("CREATE TABLE a (x INT);\nCREATE INDEX a_x ON a (x);")},
		"db/003_nop.sql": {Data: []byte("  \n")},
		"db/README.md":   {Data: []byte("not a migration")},
	}

	var got []string
	applied, err := Apply(context.Background(), fsys, "db", WholeFile, func(_ context.Context, sql string) error {
		got = append(got, sql)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, applied)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "CREATE INDEX", "whole file passed in one call")
}

func TestApply_PerStatement(t *testing.T) {
	fsys := fstest.MapFS{
		"ch/001.sql": {Data: []byte("-- tables\nCREATE TABLE a (x Int64) ENGINE = Memory;\nCREATE TABLE b (y String) ENGINE = Memory;\n")},
	}

	var got []string
	_, err := Apply(context.Background(), fsys, "ch", PerStatement, func(_ context.Context, sql string) error {
		got = append(got, sql)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[1], "CREATE TABLE b"))
}

func TestApply_Errors(t *testing.T) {
	ctx := context.Background()
	ok := func(context.Context, string) error { return nil }

	_, err := Apply(ctx, fstest.MapFS{}, "missing", WholeFile, ok)
	assert.Error(t, err)

	bad := fstest.MapFS{"ch/001.sql": {Data: []byte("INSERT INTO t VALUES ('a;b');")}}
	_, err = Apply(ctx, bad, "ch", PerStatement, ok)
	assert.ErrorIs(t, err, errSemicolonInString)

	// Whole-file mode leaves quoting to the driver.
	_, err = Apply(ctx, bad, "ch", WholeFile, ok)
	assert.NoError(t, err)

	boom := errors.New("syntax error")
	fsys := fstest.MapFS{
		"db/001.sql": {Data: []byte("SELECT 1;")},
		"db/002.sql": {Data: []byte("SELEC 2;")},
	}
	applied, err := Apply(ctx, fsys, "db", WholeFile, func(_ context.Context, sql string) error {
		if strings.HasPrefix(sql, "SELEC ") {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "002.sql")
	assert.Equal(t, []string{"001.sql"}, applied)
}
