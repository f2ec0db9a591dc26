package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Avi18971911/spanlife/pkg/quark"
	"github.com/Avi18971911/spanlife/pkg/state"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const schemaVersion = 3

func TestIntervalDB(t *testing.T) {
	ctx := context.Background()

	t.Run("Should load exactly what was saved", func(t *testing.T) {
		idb := getNewIntervalDB(t, filepath.Join(t.TempDir(), "spans.db"), schemaVersion)
		store := getPopulatedStore(t)
		runID := uuid.New()

		require.NoError(t, idb.Save(ctx, runID, store))
		snapshot, err := idb.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, runID, snapshot.RunID)
		assert.Equal(t, schemaVersion, snapshot.SchemaVersion)
		require.Equal(t, store.Tree().Len(), snapshot.Tree.Len())
		for i := 0; i < store.Tree().Len(); i++ {
			assert.Equal(t, store.Tree().Path(quark.Quark(i)), snapshot.Tree.Path(quark.Quark(i)))
		}
		expected := append(store.Intervals(), store.OngoingIntervals()...)
		assert.Equal(t, expected, snapshot.Intervals)
	})

	t.Run("Should replace the previous run on save", func(t *testing.T) {
		idb := getNewIntervalDB(t, filepath.Join(t.TempDir(), "spans.db"), schemaVersion)
		require.NoError(t, idb.Save(ctx, uuid.New(), getPopulatedStore(t)))
		secondRun := uuid.New()
		empty := state.NewMemoryStore(quark.NewAttributeTree())

		require.NoError(t, idb.Save(ctx, secondRun, empty))
		snapshot, err := idb.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, secondRun, snapshot.RunID)
		assert.Equal(t, 0, snapshot.Tree.Len())
		assert.Empty(t, snapshot.Intervals)
	})

	t.Run("Should report an empty store before the first save", func(t *testing.T) {
		idb := getNewIntervalDB(t, filepath.Join(t.TempDir(), "spans.db"), schemaVersion)

		_, err := idb.Load(ctx)

		assert.ErrorIs(t, err, ErrEmptyStore)
	})

	t.Run("Should refuse a store built under another schema version", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "spans.db")
		older := getNewIntervalDB(t, path, schemaVersion-1)
		require.NoError(t, older.Save(ctx, uuid.New(), getPopulatedStore(t)))
		require.NoError(t, older.Close())

		current := getNewIntervalDB(t, path, schemaVersion)
		_, err := current.Load(ctx)

		assert.ErrorIs(t, err, ErrSchemaVersionMismatch)
		assert.ErrorIs(t, current.CheckVersion(ctx), ErrSchemaVersionMismatch)
	})
}

func getPopulatedStore(t *testing.T) *state.MemoryStore {
	store := state.NewMemoryStore(quark.NewAttributeTree())
	trace := store.GetOrCreatePath(quark.Root, "5b8efff798038103d269b633813fc60c")
	spans := store.GetOrCreatePath(trace, state.SpansAttribute)
	root := store.GetOrCreatePath(spans, "a")
	child := store.GetOrCreatePath(root, "b")

	require.NoError(t, store.SetValue(root, state.Value{Text: "op-a", Attributes: map[string]string{"error": "true"}}, 0))
	require.NoError(t, store.SetValue(child, state.TextValue("op-b"), 10))
	require.NoError(t, store.Clear(child, 90))
	return store
}

func getNewIntervalDB(t *testing.T, path string, version int) *IntervalDBImpl {
	idb, err := NewIntervalDB(path, version, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idb.Close()
	})
	return idb
}
