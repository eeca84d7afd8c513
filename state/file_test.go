package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/shelfwise/core"
)

func TestOpenFileStoreMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := OpenFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.View(func(doc *Document) error {
		assert.Equal(t, SchemaVersion, doc.SchemaVersion)
		assert.Empty(t, doc.Holds)
		return nil
	}))

	// Opening never creates the file; only a commit does.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := OpenFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Transact(func(doc *Document) error {
		doc.UpsertProfile(core.OnboardingProfile{StudentID: "S0001", PreferredGenres: []string{"Fantasy"}, Source: "stated"})
		doc.PutHold(newHold(doc.NextHoldID(), "S0001", "B0002", core.HoldPending, baseTime))
		doc.AppendFeedback(core.FeedbackEntry{StudentID: "S0001", BookID: "B0001", Rating: 5, CreatedAt: baseTime})
		return nil
	}))

	// A fresh store over the same path sees the committed document.
	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, reopened.View(func(doc *Document) error {
		p, err := doc.Profile("S0001")
		require.NoError(t, err)
		assert.Equal(t, []string{"Fantasy"}, p.PreferredGenres)

		h, ok := doc.ActiveHold("S0001", "B0002")
		require.True(t, ok)
		assert.Equal(t, "H0001", h.ID)

		require.Len(t, doc.Feedback, 1)
		assert.Equal(t, "F0001", doc.Feedback[0].ID)
		return nil
	}))
}

func TestOpenFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFileStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestOpenFileStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.View(func(doc *Document) error {
		assert.Empty(t, doc.Holds)
		return nil
	}))
}

func TestOpenFileStoreNormalizesSparseDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":0}`), 0o644))

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Transact(func(doc *Document) error {
		assert.Equal(t, SchemaVersion, doc.SchemaVersion)
		doc.UpsertProfile(core.OnboardingProfile{StudentID: "S0001"})
		return nil
	}))
}

func TestFileStoreRollbackLeavesDiskUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := OpenFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Transact(func(doc *Document) error {
		doc.UpsertProfile(core.OnboardingProfile{StudentID: "S0001", Goals: "read more"})
		return nil
	}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = store.Transact(func(doc *Document) error {
		doc.UpsertProfile(core.OnboardingProfile{StudentID: "S0002"})
		return core.ErrConflict
	})
	assert.ErrorIs(t, err, core.ErrConflict)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenFileStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Transact(func(doc *Document) error {
			doc.AppendEvent(core.ObservabilityEvent{ID: core.NextSequentialID("E", nil), Timestamp: baseTime})
			return nil
		}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "stale temp file %s", e.Name())
	}
}
