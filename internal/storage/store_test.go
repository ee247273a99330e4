package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndListEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AppendEvent(ctx, RoomEvent{Room: "general", Kind: KindParticipation, UserID: "alice", Status: "Joined"})
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = store.AppendEvent(ctx, RoomEvent{Room: "general", Kind: KindMessage, UserID: "alice", Content: "hi"})
	require.NoError(t, err)
	_, err = store.AppendEvent(ctx, RoomEvent{Room: "random", Kind: KindMessage, UserID: "bob", Content: "elsewhere"})
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, "general", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, KindParticipation, events[0].Kind)
	require.Equal(t, "Joined", events[0].Status)
	require.Equal(t, "hi", events[1].Content)
	require.False(t, events[1].CreatedAt.IsZero())
}

func TestListEventsKeepsMostRecentOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.AppendEvent(ctx, RoomEvent{Room: "general", Kind: KindMessage, UserID: "alice", Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	events, err := store.ListEvents(ctx, "general", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "m2", events[0].Content)
	require.Equal(t, "m4", events[2].Content)
}

func TestCountEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, RoomEvent{Room: "general", Kind: KindParticipation, UserID: "alice", Status: "Joined"})
	require.NoError(t, err)
	_, err = store.AppendEvent(ctx, RoomEvent{Room: "general", Kind: KindMessage, UserID: "alice", Content: "hi"})
	require.NoError(t, err)

	total, err := store.CountEvents(ctx, "general", "")
	require.NoError(t, err)
	require.Equal(t, 2, total)

	messages, err := store.CountEvents(ctx, "general", KindMessage)
	require.NoError(t, err)
	require.Equal(t, 1, messages)
}

func TestAppendEventRejectsIncompleteRows(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AppendEvent(context.Background(), RoomEvent{Room: "general", Kind: KindMessage})
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir() + "/transcript.db")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	require.NoError(t, store.Migrate(context.Background()))
	return store
}
