package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/boat-builder/convo/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite", filepath.Join(t.TempDir(), "convo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func transcript() []llm.Message {
	return []llm.Message{
		llm.SystemMessage("Hello"),
		llm.UserMessage("Tell me a joke."),
		llm.AssistantMessage("Why did the chicken..."),
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", transcript()))

	got, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, transcript(), got)
}

func TestStore_SaveIsIncremental(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msgs := transcript()
	require.NoError(t, store.Save(ctx, "sess-1", msgs[:1]))
	require.NoError(t, store.Save(ctx, "sess-1", msgs))
	// Saving the same transcript again is a no-op.
	require.NoError(t, store.Save(ctx, "sess-1", msgs))

	var count int64
	require.NoError(t, store.db.Model(&TranscriptEntry{}).Where("session_id = ?", "sess-1").Count(&count).Error)
	assert.Equal(t, int64(len(msgs)), count)

	got, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
}

func TestStore_SaveRejectsDivergence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msgs := transcript()
	require.NoError(t, store.Save(ctx, "sess-1", msgs))

	t.Run("shorter", func(t *testing.T) {
		err := store.Save(ctx, "sess-1", msgs[:2])
		assert.ErrorIs(t, err, ErrTranscriptDiverged)
	})

	t.Run("rewritten", func(t *testing.T) {
		rewritten := append([]llm.Message{}, msgs...)
		rewritten[1] = llm.UserMessage("Tell me a story.")
		err := store.Save(ctx, "sess-1", append(rewritten, llm.UserMessage("more")))
		assert.ErrorIs(t, err, ErrTranscriptDiverged)
	})

	got, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
}

func TestStore_LoadUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_Sessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Save(ctx, "b", transcript()))
	require.NoError(t, store.Save(ctx, "a", transcript()[:1]))

	ids, err = store.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mongo", "whatever")
	assert.Error(t, err)
}
