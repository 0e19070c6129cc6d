package dataset

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Store persists survey records. Row indexes are 1-based.
type Store interface {
	// Load reads the whole dataset fresh from storage.
	Load(ctx context.Context) (*Table, error)
	// CommitAnswer sets Answer and Status=Completed on one row. It returns
	// ErrRowOutOfRange without writing anything when the row does not exist.
	CommitAnswer(ctx context.Context, rowIndex int, answer string) error
	Close() error
}

// Importer is implemented by stores that can be seeded from a table.
type Importer interface {
	Import(ctx context.Context, t *Table) error
}

const (
	BackendAuto   = "auto"
	BackendCSV    = "csv"
	BackendXLSX   = "xlsx"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Settings struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	RedisAddr   string `mapstructure:"redis-addr"`
	RedisPrefix string `mapstructure:"redis-prefix"`
}

// ResolveBackend picks a backend from the explicit setting or the file extension.
func (s Settings) ResolveBackend() (string, error) {
	b := strings.ToLower(strings.TrimSpace(s.Backend))
	if b != "" && b != BackendAuto {
		switch b {
		case BackendCSV, BackendXLSX, BackendSQLite, BackendRedis:
			return b, nil
		}
		return "", errors.Errorf("unknown dataset backend %q", s.Backend)
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".csv", "":
		return BackendCSV, nil
	case ".xlsx":
		return BackendXLSX, nil
	case ".db", ".sqlite", ".sqlite3":
		return BackendSQLite, nil
	}
	return "", errors.Errorf("cannot infer dataset backend from %q", s.Path)
}

func Open(ctx context.Context, s Settings) (Store, error) {
	backend, err := s.ResolveBackend()
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendCSV:
		return NewCSVStore(s.Path)
	case BackendXLSX:
		return NewXLSXStore(s.Path, "")
	case BackendSQLite:
		dsn, err := SQLiteDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case BackendRedis:
		return NewRedisStore(ctx, s.RedisAddr, s.RedisPrefix)
	}
	return nil, errors.Errorf("unsupported dataset backend %q", backend)
}
