package internal

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrChannel reports that a message could not be handed to the room's bus.
var ErrChannel = errors.New("could not write to the broadcast channel")

// UserSessionHandle lets one user/session pair post to one room. It is
// created by ChatRoom.Join and consumed by ChatRoom.Leave.
type UserSessionHandle struct {
	room     string
	bus      *Bus
	identity SessionAndUserID
	chatRoom *ChatRoom
	left     atomic.Bool
}

func newUserSessionHandle(room string, bus *Bus, identity SessionAndUserID, chatRoom *ChatRoom) *UserSessionHandle {
	return &UserSessionHandle{
		room:     room,
		bus:      bus,
		identity: identity,
		chatRoom: chatRoom,
	}
}

func (h *UserSessionHandle) Room() string               { return h.room }
func (h *UserSessionHandle) SessionID() string          { return h.identity.SessionID }
func (h *UserSessionHandle) UserID() string             { return h.identity.UserID }
func (h *UserSessionHandle) Identity() SessionAndUserID { return h.identity }

// SendMessage records the message in the room history, then broadcasts it
// after the room lock is released. The history is updated even when the
// broadcast fails.
func (h *UserSessionHandle) SendMessage(content string) error {
	message := UserMessageEvent{
		Room:    h.room,
		UserID:  h.identity.UserID,
		Content: content,
	}

	h.chatRoom.RecordMessage(message)

	if _, err := h.bus.Send(message); err != nil {
		return fmt.Errorf("%w: %w", ErrChannel, err)
	}
	return nil
}

// release marks the handle as consumed; it reports false if it already was.
func (h *UserSessionHandle) release() bool {
	return h.left.CompareAndSwap(false, true)
}
