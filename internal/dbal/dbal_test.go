package dbal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) Adapter {
	t.Helper()
	file := filepath.Join(t.TempDir(), "test.db")
	a, err := Open(context.Background(), Settings{Type: "sqlite", File: file})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSettingsFromSection(t *testing.T) {
	s := SettingsFromSection(map[string]any{
		"type":     "postgresql",
		"host":     "db.internal",
		"port":     int64(5433),
		"database": "app",
		"user":     "svc",
		"password": "pw",
		"sslmode":  "require",
	})
	if s.Type != "postgresql" || s.Host != "db.internal" || s.Port != 5433 {
		t.Fatalf("settings = %+v", s)
	}
	if s.Database != "app" || s.User != "svc" || s.SSLMode != "require" {
		t.Fatalf("settings = %+v", s)
	}
}

func TestSettingsNameAlias(t *testing.T) {
	s := SettingsFromSection(map[string]any{"name": "appdb"})
	if s.Database != "appdb" {
		t.Fatalf("Database = %q", s.Database)
	}
}

func TestOpenUnknownType(t *testing.T) {
	_, err := Open(context.Background(), Settings{Type: "oracle"})
	if !errors.Is(err, ErrUnknownAdapter) {
		t.Fatalf("err = %v", err)
	}
}

func TestSQLiteQueryExec(t *testing.T) {
	a := openTestDB(t)
	ctx := context.Background()

	if _, err := a.Exec(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatal(err)
	}
	n, err := a.Exec(ctx, "INSERT INTO kv (k, v) VALUES (?, ?), (?, ?)", "a", "1", "b", "2")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("affected = %d", n)
	}

	rows, err := a.Query(ctx, "SELECT k, v FROM kv ORDER BY k")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0]["k"] != "a" || rows[0]["v"] != "1" {
		t.Fatalf("row 0 = %v", rows[0])
	}
}

func TestSQLiteQueryWithBind(t *testing.T) {
	a := openTestDB(t)
	ctx := context.Background()
	if _, err := a.Exec(ctx, "CREATE TABLE t (n INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Exec(ctx, "INSERT INTO t (n) VALUES (1), (2), (3)"); err != nil {
		t.Fatal(err)
	}
	rows, err := a.Query(ctx, "SELECT n FROM t WHERE n > ?", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
}

func TestSQLitePing(t *testing.T) {
	a := openTestDB(t)
	if err := a.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultTypeIsSQLite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "default.db")
	a, err := Open(context.Background(), Settings{File: file})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	rows, err := a.Query(context.Background(), "SELECT 1 AS one")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %v", rows)
	}
}
