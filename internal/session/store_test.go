package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, time.Hour, 10, logger.NewTestLogger(t)), mr
}

func TestGetOrCreate_NewSession(t *testing.T) {
	store, _ := newTestStore(t)

	sess, err := store.GetOrCreate(context.Background(), "")

	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Empty(t, sess.Messages)

	// The fresh session is already persisted.
	loaded, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
}

func TestGetOrCreate_UnknownIDCreatesFresh(t *testing.T) {
	store, _ := newTestStore(t)

	sess, err := store.GetOrCreate(context.Background(), "no-such-session")

	require.NoError(t, err)
	assert.NotEqual(t, "no-such-session", sess.ID)
}

func TestSaveAndGet_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	sess.Messages = append(sess.Messages,
		models.Message{Role: models.RoleUser, Content: "claims last month", Timestamp: time.Now()},
		models.Message{Role: models.RoleAssistant, Content: "12 claims", Timestamp: time.Now()},
	)
	sess.SQLHistory = append(sess.SQLHistory, models.SQLHistoryEntry{
		Question:  "claims last month",
		SQL:       "SELECT count(*) FROM claims_summary",
		Timestamp: time.Now(),
	})
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "claims last month", loaded.Messages[0].Content)
	require.Len(t, loaded.SQLHistory, 1)
	assert.Equal(t, "SELECT count(*) FROM claims_summary", loaded.SQLHistory[0].SQL)
}

func TestSave_TrimsHistory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		sess.Messages = append(sess.Messages, models.Message{Role: models.RoleUser, Content: "q"})
		sess.SQLHistory = append(sess.SQLHistory, models.SQLHistoryEntry{SQL: "SELECT 1"})
	}
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 20)
	assert.Len(t, loaded.SQLHistory, 10)
}

func TestSave_RefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.Save(ctx, sess))

	mr.FastForward(45 * time.Minute)
	_, err = store.Get(ctx, sess.ID)
	assert.NoError(t, err)

	mr.FastForward(time.Hour)
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, sess.ID))

	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, sess.ID), ErrNotFound)
}
