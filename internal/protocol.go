package internal

// CommandType tags a frame sent by a client.
type CommandType string

const (
	CommandJoinRoom    CommandType = "join_room"
	CommandLeaveRoom   CommandType = "leave_room"
	CommandSendMessage CommandType = "send_message"
	CommandQuit        CommandType = "quit"
)

// ClientCommand is the json envelope a client writes on the websocket.
type ClientCommand struct {
	Type    CommandType `json:"type"`
	Room    string      `json:"room,omitempty"`
	Content string      `json:"content,omitempty"`
}

// ServerEventType tags a frame sent by the server.
type ServerEventType string

const (
	EventWelcome           ServerEventType = "welcome"
	EventRoomDetail        ServerEventType = "room_detail"
	EventUserMessage       ServerEventType = "user_message"
	EventRoomParticipation ServerEventType = "room_participation"
	EventError             ServerEventType = "error"
)

// ServerEvent is the json envelope the server writes on the websocket. Only
// the fields relevant to Type are set.
type ServerEvent struct {
	Type        ServerEventType     `json:"type"`
	SessionID   string              `json:"session_id,omitempty"`
	UserID      string              `json:"user_id,omitempty"`
	Room        string              `json:"room,omitempty"`
	Description string              `json:"description,omitempty"`
	Content     string              `json:"content,omitempty"`
	Status      ParticipationStatus `json:"status,omitempty"`
	Users       []string            `json:"users,omitempty"`
	History     []UserMessageEvent  `json:"history,omitempty"`
	Rooms       []RoomMetadata      `json:"rooms,omitempty"`
	Message     string              `json:"message,omitempty"`
}

func serverEventFrom(evt Event) ServerEvent {
	switch e := evt.(type) {
	case UserMessageEvent:
		return ServerEvent{Type: EventUserMessage, Room: e.Room, UserID: e.UserID, Content: e.Content}
	case RoomParticipationEvent:
		return ServerEvent{Type: EventRoomParticipation, Room: e.Room, UserID: e.UserID, Status: e.Status}
	}
	return ServerEvent{Type: EventError, Message: "unknown event"}
}

func errorEvent(room, message string) ServerEvent {
	return ServerEvent{Type: EventError, Room: room, Message: message}
}
