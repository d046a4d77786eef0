package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh run log in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open #%d", i)
		assert.Equal(t, currentSchemaVersion, userVersion(t, s.db))
		require.NoError(t, s.Close())
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, columns(t, s.db, "events"))
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	_, err := Open("/nonexistent/dir/runs.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open run log")
}

func TestClose_Unopened(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestConnectionPragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, "PRAGMA %s", name)
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	want := map[string][]string{
		"runs":    {"id", "seq", "entry", "status", "error_code", "error_specifier", "error_message", "value", "started_at", "duration_ms"},
		"modules": {"run_id", "seq", "specifier", "state", "media_type", "hash", "referrer", "dynamic", "error"},
		"events":  {"id", "run_id", "seq", "kind", "name", "specifier", "detail"},
	}
	for table, cols := range want {
		assert.Subset(t, columns(t, s.db, table), cols, table)
	}
}

func TestSchema_EventNeedsRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO events (run_id, seq, kind, name) VALUES ('nope', 1, 'step', 'log')`)
	assert.Error(t, err, "foreign key should reject an event of an unknown run")
}

func TestMigrate_FromUnversioned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	// A log written before versioning: base schema only, user_version 0.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	require.NotContains(t, indexes(t, db, "events"), "idx_events_run_kind")
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, currentSchemaVersion, userVersion(t, s.db))
	assert.Contains(t, indexes(t, s.db, "events"), "idx_events_run_kind")
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func columns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	return names(t, db, "SELECT name FROM pragma_table_info(?)", table)
}

func indexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	return names(t, db, "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", table)
}

func names(t *testing.T, db *sql.DB, query string, arg any) []string {
	t.Helper()
	rows, err := db.Query(query, arg)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		out = append(out, name)
	}
	require.NoError(t, rows.Err())
	return out
}
