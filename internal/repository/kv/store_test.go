package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour shared by every Store implementation.
func storeContract(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()
	key := Key{Table: "versions", ID: "version-1.2.0"}

	all, err := store.GetAll(ctx, "versions")
	require.NoError(t, err)
	require.Empty(t, all)

	require.NoError(t, store.Set(ctx, key, []byte("attempts: 1\n")))
	require.NoError(t, store.Set(ctx, Key{Table: "other", ID: "x"}, []byte("y")))

	all, err = store.GetAll(ctx, "versions")
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"version-1.2.0": []byte("attempts: 1\n")}, all)

	// Wrong expectation leaves the value untouched.
	err = store.CompareAndReplace(ctx, key, []byte("attempts: 5\n"), []byte("attempts: 6\n"))
	require.ErrorIs(t, err, ErrConflict)

	err = store.CompareAndReplace(ctx, Key{Table: "versions", ID: "missing"}, nil, []byte("z"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.CompareAndReplace(ctx, key, []byte("attempts: 1\n"), []byte("attempts: 2\n")))

	all, err = store.GetAll(ctx, "versions")
	require.NoError(t, err)
	require.Equal(t, []byte("attempts: 2\n"), all["version-1.2.0"])

	require.NoError(t, store.Clear(ctx, "versions"))
	require.NoError(t, store.Clear(ctx, "versions"))

	all, err = store.GetAll(ctx, "versions")
	require.NoError(t, err)
	require.Empty(t, all)

	// Other tables survive a clear.
	all, err = store.GetAll(ctx, "other")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// TestMemoryStore_Contract exercises the in-memory implementation.
func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()

	storeContract(t, NewMemoryStore())
}

// TestFileStore_Contract exercises the on-disk implementation.
func TestFileStore_Contract(t *testing.T) {
	t.Parallel()

	storeContract(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "state.yaml")))
}

// TestFileStore_SurvivesReopen ensures values are read back by a fresh instance.
func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.yaml")
	key := Key{Table: "versions", ID: "version-2.0.0"}

	require.NoError(t, NewFileStore(path).Set(context.Background(), key, []byte("to: 2.0.0\n")))

	all, err := NewFileStore(path).GetAll(context.Background(), "versions")
	require.NoError(t, err)
	require.Equal(t, []byte("to: 2.0.0\n"), all[key.ID])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

// TestFileStore_CorruptFile reports a decode error instead of silently resetting.
func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("versions: [unterminated"), 0o600))

	_, err := NewFileStore(path).GetAll(context.Background(), "versions")
	require.Error(t, err)
}

// TestKeyString renders table and id.
func TestKeyString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "versions/version-1.0.0", Key{Table: "versions", ID: "version-1.0.0"}.String())
}
