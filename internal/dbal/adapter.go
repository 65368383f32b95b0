// Package dbal implements the database adapters behind @query: sqlite,
// postgresql and mysql, selected by the document's database.type setting.
package dbal

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAdapter reports an unsupported database.type value.
var ErrUnknownAdapter = errors.New("dbal: unknown adapter type")

// Adapter is the interface all database backends implement.
type Adapter interface {
	// Query runs a statement and returns its rows as maps keyed by
	// column name.
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)

	// Exec runs a statement without result rows and returns the number
	// of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the adapter's resources.
	Close() error
}

// Settings are the connection parameters read out of a document's
// [database] section.
type Settings struct {
	Type     string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	File     string // sqlite path
}

// SettingsFromSection builds Settings from a flattened database section
// (Section("database") on a document).
func SettingsFromSection(section map[string]any) Settings {
	s := Settings{
		Type:     str(section["type"]),
		Host:     str(section["host"]),
		Database: str(section["database"]),
		User:     str(section["user"]),
		Password: str(section["password"]),
		SSLMode:  str(section["sslmode"]),
		File:     str(section["file"]),
	}
	if p, ok := section["port"]; ok {
		if n, isInt := p.(int64); isInt {
			s.Port = int(n)
		}
	}
	if s.Database == "" {
		s.Database = str(section["name"])
	}
	return s
}

// Open resolves and connects the adapter named by settings.Type. An empty
// type defaults to sqlite with the conventional ./tusklang.db file.
func Open(ctx context.Context, s Settings) (Adapter, error) {
	switch strings.ToLower(s.Type) {
	case "", "sqlite", "sqlite3":
		file := s.File
		if file == "" {
			file = "./tusklang.db"
		}
		return openSQLite(ctx, file)
	case "postgres", "postgresql":
		return openPostgres(ctx, s)
	case "mysql":
		return openMySQL(ctx, s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, s.Type)
	}
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
