package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserSessionHandle_SendMessageBroadcastsAndRecords(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	observer := room.Subscribe()
	_, handle := room.Join(session("S1", "U1"))
	_ = receive(t, observer) // Joined

	req.NoError(handle.SendMessage("hello"))

	req.Equal(message("general", "U1", "hello"), receive(t, observer))
	req.Equal([]UserMessageEvent{message("general", "U1", "hello")}, room.History())
}

func TestUserSessionHandle_HistoryRecordedWhenBroadcastFails(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	sub, handle := room.Join(session("S1", "U1"))

	// Given the only subscriber is gone
	sub.Close()

	// When the session sends
	err := handle.SendMessage("into the void")

	// Then the send reports a channel error but the message is kept
	req.ErrorIs(err, ErrChannel)
	req.ErrorIs(err, ErrNoSubscribers)
	req.Equal([]UserMessageEvent{message("general", "U1", "into the void")}, room.History())
}

func TestUserSessionHandle_SendAfterShutdown(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("general")
	_, handle := room.Join(session("S1", "U1"))

	room.close()
	err := handle.SendMessage("too late")

	req.ErrorIs(err, ErrChannel)
	req.ErrorIs(err, ErrBusClosed)
	req.Len(room.History(), 1)
}

func TestUserSessionHandle_Identity(t *testing.T) {
	req := require.New(t)
	room := newTestRoom("random")
	_, handle := room.Join(session("S9", "U3"))

	req.Equal("random", handle.Room())
	req.Equal(session("S9", "U3"), handle.Identity())
}
