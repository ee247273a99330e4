package internal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"roomchat/internal/storage"
)

const archiveWriteTimeout = 5 * time.Second

// TranscriptStore is the write side of the transcript database.
type TranscriptStore interface {
	AppendEvent(ctx context.Context, event storage.RoomEvent) (int64, error)
}

// Archiver copies every event of every room into the transcript store. It
// is a plain bus subscriber, so a slow disk only makes the archiver lag; it
// never delays the room or other subscribers. The transcript is write-only
// from the rooms' point of view and never seeds their history.
type Archiver struct {
	store  TranscriptStore
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewArchiver(store TranscriptStore, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, logger: logger.Named("archiver")}
}

// Start subscribes to every room. Each loop runs until its room's bus is
// closed and its buffered events are written.
func (a *Archiver) Start(rooms *RoomManager) {
	for _, metadata := range rooms.Rooms() {
		room, err := rooms.Room(metadata.Name)
		if err != nil {
			continue
		}
		subscription := room.Subscribe()
		a.wg.Add(1)
		go a.run(room.Name(), subscription)
	}
}

// Wait blocks until every room loop has exited.
func (a *Archiver) Wait() {
	a.wg.Wait()
}

func (a *Archiver) run(room string, subscription *Subscription) {
	defer a.wg.Done()
	var lagged uint64
	for evt := range subscription.C() {
		a.write(evt)
		if n := subscription.Lagged(); n != lagged {
			a.logger.Warn("archiver lagging, events skipped",
				zap.String("room", room),
				zap.Uint64("skipped", n-lagged))
			lagged = n
		}
	}
}

func (a *Archiver) write(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
	defer cancel()
	if _, err := a.store.AppendEvent(ctx, transcriptRow(evt)); err != nil {
		a.logger.Error("archive event", zap.String("room", evt.EventRoom()), zap.Error(err))
	}
}

func transcriptRow(evt Event) storage.RoomEvent {
	switch e := evt.(type) {
	case UserMessageEvent:
		return storage.RoomEvent{Room: e.Room, Kind: storage.KindMessage, UserID: e.UserID, Content: e.Content}
	case RoomParticipationEvent:
		return storage.RoomEvent{Room: e.Room, Kind: storage.KindParticipation, UserID: e.UserID, Status: string(e.Status)}
	}
	return storage.RoomEvent{Room: evt.EventRoom()}
}
