package internal

// Event is anything carried on a room's broadcast bus. The set of variants is
// closed: UserMessageEvent and RoomParticipationEvent.
type Event interface {
	EventRoom() string
	isEvent()
}

// UserMessageEvent is a chat line posted to a room.
type UserMessageEvent struct {
	Room    string `json:"room"`
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

func (e UserMessageEvent) EventRoom() string { return e.Room }
func (UserMessageEvent) isEvent()            {}

type ParticipationStatus string

const (
	StatusJoined ParticipationStatus = "Joined"
	StatusLeft   ParticipationStatus = "Left"
)

// RoomParticipationEvent is emitted on a user's first join or last leave.
type RoomParticipationEvent struct {
	Room   string              `json:"room"`
	UserID string              `json:"user_id"`
	Status ParticipationStatus `json:"status"`
}

func (e RoomParticipationEvent) EventRoom() string { return e.Room }
func (RoomParticipationEvent) isEvent()            {}

// RoomMetadata identifies a room. Name is the unique key.
type RoomMetadata struct {
	Name        string `json:"name" mapstructure:"name" validate:"required,max=64,roomname"`
	Description string `json:"description" mapstructure:"description" validate:"max=512"`
}

// SessionAndUserID pairs one connection with the user it belongs to. A user
// may hold several sessions at once.
type SessionAndUserID struct {
	SessionID string
	UserID    string
}
