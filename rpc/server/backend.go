package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/marines/lib/db"
	"github.com/ValentinKolb/marines/lib/db/engines/memory"
	"github.com/ValentinKolb/marines/lib/db/engines/sqldb"
	"github.com/ValentinKolb/marines/lib/store"
	"github.com/ValentinKolb/marines/lib/store/mstore"
	"github.com/ValentinKolb/marines/rpc/common"
)

// NewBackend creates the backing store selected by the config
func NewBackend(config common.BackendConfig) (db.IBackend, error) {
	switch db.Implementation(strings.ToLower(config.Type)) {
	case "", db.ImplMemory:
		return memory.NewMemoryBackend(), nil
	case db.ImplSQLite:
		return sqldb.NewSQLBackend(sqldb.Config{Dialect: sqldb.DialectSQLite, DSN: config.Path})
	case db.ImplPostgres:
		return sqldb.NewSQLBackend(sqldb.Config{Dialect: sqldb.DialectPostgres, DSN: config.DSN})
	default:
		return nil, fmt.Errorf("unknown backend type %q (memory, sqlite or postgres)", config.Type)
	}
}

// OpenStore creates the backend and loads it into a mirror store
func OpenStore(ctx context.Context, config common.BackendConfig) (store.IStore, error) {
	backend, err := NewBackend(config)
	if err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = common.DefaultDBTimeout
	}

	st, err := mstore.NewMirrorStore(ctx, backend, mstore.Options{Timeout: timeout})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", config.Type, err)
	}
	return st, nil
}
