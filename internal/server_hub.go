package internal

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrRoomNotFound is returned by RoomManager.Room for unknown names.
	ErrRoomNotFound = errors.New("room not found")
	// ErrDuplicateRoom is returned by Build when two rooms share a name.
	ErrDuplicateRoom = errors.New("duplicate room name")
	// ErrInvalidRoom is returned by Build for metadata that fails validation.
	ErrInvalidRoom = errors.New("invalid room metadata")
)

var (
	roomNamePattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	metadataValidator = newMetadataValidator()
)

func newMetadataValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("roomname", func(fl validator.FieldLevel) bool {
		return roomNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// RoomManagerBuilder collects room metadata at startup.
type RoomManagerBuilder struct {
	opts  []RoomOption
	metas []RoomMetadata
}

func NewRoomManagerBuilder(opts ...RoomOption) *RoomManagerBuilder {
	return &RoomManagerBuilder{opts: opts}
}

// CreateRoom queues a room for creation. Validation happens in Build.
func (b *RoomManagerBuilder) CreateRoom(metadata RoomMetadata) *RoomManagerBuilder {
	b.metas = append(b.metas, metadata)
	return b
}

// Build instantiates every room. It fails on the first invalid or duplicate
// entry so a bad configuration never starts serving.
func (b *RoomManagerBuilder) Build() (*RoomManager, error) {
	manager := &RoomManager{
		rooms: make(map[string]*ChatRoom, len(b.metas)),
		order: make([]RoomMetadata, 0, len(b.metas)),
	}
	for i, metadata := range b.metas {
		if err := metadataValidator.Struct(metadata); err != nil {
			return nil, fmt.Errorf("%w: entry %d (%q): %v", ErrInvalidRoom, i, metadata.Name, err)
		}
		if _, exists := manager.rooms[metadata.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoom, metadata.Name)
		}
		manager.rooms[metadata.Name] = NewChatRoom(metadata, b.opts...)
		manager.order = append(manager.order, metadata)
	}
	return manager, nil
}

// RoomManager maps room names to rooms. It is immutable after Build and safe
// to share between goroutines without locking; each room locks itself.
type RoomManager struct {
	rooms map[string]*ChatRoom
	order []RoomMetadata
}

// Room looks a room up by name.
func (m *RoomManager) Room(name string) (*ChatRoom, error) {
	room, ok := m.rooms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, name)
	}
	return room, nil
}

// Exists reports whether name is a configured room.
func (m *RoomManager) Exists(name string) bool {
	_, ok := m.rooms[name]
	return ok
}

// Rooms returns the metadata of every room in configuration order.
func (m *RoomManager) Rooms() []RoomMetadata {
	out := make([]RoomMetadata, len(m.order))
	copy(out, m.order)
	return out
}

// Close shuts every room's bus; pending subscribers see their channel close.
func (m *RoomManager) Close() {
	for _, room := range m.rooms {
		room.close()
	}
}
