package internal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"roomchat/internal/storage"
)

func TestArchiver_WritesEveryRoomEvent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "archive.db"))
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })
	req.NoError(store.Migrate(ctx))

	manager, err := NewRoomManagerBuilder().
		CreateRoom(RoomMetadata{Name: "general"}).
		CreateRoom(RoomMetadata{Name: "random"}).
		Build()
	req.NoError(err)
	archiver := NewArchiver(store, zaptest.NewLogger(t))
	archiver.Start(manager)

	general, _ := manager.Room("general")
	_, handle := general.Join(session("S1", "alice"))
	req.NoError(handle.SendMessage("hello"))
	general.Leave(handle)
	random, _ := manager.Room("random")
	random.SendMessage("bot", "tick")

	// closing the rooms lets the archiver drain and stop
	manager.Close()
	archiver.Wait()

	events, err := store.ListEvents(ctx, "general", 0)
	req.NoError(err)
	req.Len(events, 3)
	req.Equal(storage.KindParticipation, events[0].Kind)
	req.Equal(string(StatusJoined), events[0].Status)
	req.Equal(storage.KindMessage, events[1].Kind)
	req.Equal("hello", events[1].Content)
	req.Equal("alice", events[1].UserID)
	req.Equal(string(StatusLeft), events[2].Status)

	count, err := store.CountEvents(ctx, "random", storage.KindMessage)
	req.NoError(err)
	req.Equal(1, count)
}

func TestArchiver_NeverSeedsHistory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")
	store, err := storage.NewStore(path)
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })
	req.NoError(store.Migrate(ctx))
	_, err = store.AppendEvent(ctx, storage.RoomEvent{Room: "general", Kind: storage.KindMessage, UserID: "old", Content: "from a past run"})
	req.NoError(err)

	manager, err := NewRoomManagerBuilder().CreateRoom(RoomMetadata{Name: "general"}).Build()
	req.NoError(err)
	archiver := NewArchiver(store, nil)
	archiver.Start(manager)
	t.Cleanup(func() {
		manager.Close()
		archiver.Wait()
	})

	general, _ := manager.Room("general")
	req.Empty(general.History())
}

func TestTranscriptRow(t *testing.T) {
	req := require.New(t)

	row := transcriptRow(message("general", "alice", "hi"))
	req.Equal(storage.RoomEvent{Room: "general", Kind: storage.KindMessage, UserID: "alice", Content: "hi"}, row)

	row = transcriptRow(RoomParticipationEvent{Room: "general", UserID: "bob", Status: StatusLeft})
	req.Equal(storage.RoomEvent{Room: "general", Kind: storage.KindParticipation, UserID: "bob", Status: "Left"}, row)
}
