package internal

import (
	"sync"

	"go.uber.org/zap"
)

const (
	DefaultBroadcastCapacity = 100
	MaxHistory               = 10
)

// RoomOption tunes rooms created by a RoomManagerBuilder.
type RoomOption func(*roomOptions)

type roomOptions struct {
	capacity int
	logger   *zap.Logger
	metrics  *Metrics
}

func defaultRoomOptions() roomOptions {
	return roomOptions{capacity: DefaultBroadcastCapacity, logger: zap.NewNop()}
}

// WithBroadcastCapacity sets how many events a subscriber may have pending
// before its oldest ones are dropped.
func WithBroadcastCapacity(capacity int) RoomOption {
	return func(o *roomOptions) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

func WithLogger(logger *zap.Logger) RoomOption {
	return func(o *roomOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) RoomOption {
	return func(o *roomOptions) {
		o.metrics = metrics
	}
}

// ChatRoom owns one room's broadcast bus, its participants and the last
// MaxHistory messages. Membership and history are guarded by a single mutex;
// rooms never share a lock.
type ChatRoom struct {
	metadata RoomMetadata
	bus      *Bus
	logger   *zap.Logger
	metrics  *Metrics

	mu      sync.Mutex
	users   *UserRegistry
	history []UserMessageEvent
}

// NewChatRoom builds a room with its own bus.
func NewChatRoom(metadata RoomMetadata, opts ...RoomOption) *ChatRoom {
	o := defaultRoomOptions()
	for _, opt := range opts {
		opt(&o)
	}
	room := &ChatRoom{
		metadata: metadata,
		bus:      NewBus(o.capacity),
		logger:   o.logger.With(zap.String("room", metadata.Name)),
		metrics:  o.metrics,
		users:    NewUserRegistry(),
		history:  make([]UserMessageEvent, 0, MaxHistory),
	}
	room.bus.onDrop = func(Event) { room.metrics.observeDrop(metadata.Name) }
	return room
}

func (room *ChatRoom) Name() string {
	return room.metadata.Name
}

func (room *ChatRoom) Metadata() RoomMetadata {
	return room.metadata
}

// Subscribe attaches a receiver to the room's bus without joining the room.
// Used by observers such as the transcript archiver.
func (room *ChatRoom) Subscribe() *Subscription {
	return room.bus.Subscribe()
}

// Join registers a session and hands back its subscription and handle. The
// subscription is taken before the user is registered so the new session
// sees every event sent after Join returns, including its own Joined event.
// A Joined notification is broadcast only for the user's first session.
func (room *ChatRoom) Join(identity SessionAndUserID) (*Subscription, *UserSessionHandle) {
	room.mu.Lock()
	defer room.mu.Unlock()

	subscription := room.bus.Subscribe()
	handle := newUserSessionHandle(room.metadata.Name, room.bus, identity, room)

	room.metrics.observeJoin(room.metadata.Name)
	if room.users.Insert(identity) {
		room.broadcastParticipation(identity.UserID, StatusJoined)
	}
	room.logger.Debug("session joined",
		zap.String("session_id", identity.SessionID),
		zap.String("user_id", identity.UserID))

	return subscription, handle
}

// Leave consumes handle. A Left notification is broadcast only when it was
// the user's last session. Leaving twice with the same handle is a no-op.
func (room *ChatRoom) Leave(handle *UserSessionHandle) {
	// a handle from another room is ignored and stays usable there
	if handle == nil || handle.chatRoom != room || !handle.release() {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	room.metrics.observeLeave(room.metadata.Name)
	if room.users.Remove(handle.identity) {
		room.broadcastParticipation(handle.UserID(), StatusLeft)
	}
	room.logger.Debug("session left",
		zap.String("session_id", handle.SessionID()),
		zap.String("user_id", handle.UserID()))
}

// broadcastParticipation is best-effort: an empty room is not an error.
// Callers hold room.mu so notifications follow registry order.
func (room *ChatRoom) broadcastParticipation(userID string, status ParticipationStatus) {
	room.metrics.observeParticipation(room.metadata.Name, status)
	_, _ = room.bus.Send(RoomParticipationEvent{
		Room:   room.metadata.Name,
		UserID: userID,
		Status: status,
	})
}

// SendMessage records a message and broadcasts it while holding the lock.
// It is meant for messages originating from the room itself; live sessions
// go through UserSessionHandle.SendMessage instead.
func (room *ChatRoom) SendMessage(userID, content string) {
	message := UserMessageEvent{
		Room:    room.metadata.Name,
		UserID:  userID,
		Content: content,
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.appendHistory(message)
	_, _ = room.bus.Send(message)
}

// RecordMessage appends an already broadcast message to the history.
func (room *ChatRoom) RecordMessage(message UserMessageEvent) {
	room.mu.Lock()
	defer room.mu.Unlock()
	room.appendHistory(message)
}

func (room *ChatRoom) appendHistory(message UserMessageEvent) {
	if len(room.history) >= MaxHistory {
		n := copy(room.history, room.history[len(room.history)-MaxHistory+1:])
		room.history = room.history[:n]
	}
	room.history = append(room.history, message)
	room.metrics.observeMessage(room.metadata.Name)
}

// History returns a copy of the retained messages, oldest first.
func (room *ChatRoom) History() []UserMessageEvent {
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]UserMessageEvent, len(room.history))
	copy(out, room.history)
	return out
}

func (room *ChatRoom) UniqueUserIDs() []string {
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.users.UniqueUserIDs()
}

// Snapshot returns users and history read under one lock acquisition, so a
// newly joined session gets a consistent view to replay.
func (room *ChatRoom) Snapshot() ([]string, []UserMessageEvent) {
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]UserMessageEvent, len(room.history))
	copy(out, room.history)
	return room.users.UniqueUserIDs(), out
}

func (room *ChatRoom) close() {
	room.bus.Close()
}
