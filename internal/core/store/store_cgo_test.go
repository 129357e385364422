//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlasdao/painel-sub005/internal/config"
	"github.com/atlasdao/painel-sub005/internal/core"
)

func TestOpenMemoryStoreMigratesTwice(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Ping(ctx))

	var indexes int
	require.NoError(t, store.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_transactions_status_created'",
	).Scan(&indexes))
	require.Equal(t, 1, indexes)
}

func TestLocalStoreSettingsAndPersistence(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + filepath.Join(t.TempDir(), "nested", "painel.db"),
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.GreaterOrEqual(t, busyTimeout, 1000)

	require.NoError(t, store.Migrate(ctx))
	id := insertTx(t, store, core.StatusPending, now)
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	tx, err := reopened.GetTransaction(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, core.StatusPending, tx.Status)
}
