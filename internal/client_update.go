package internal

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

type (
	connectedMsg     struct{ conn *websocket.Conn }
	incomingMsg      ServerEvent
	errorMsg         error
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
)

// readFailedMsg carries the connection it came from so a late error from a
// replaced connection can be ignored.
type readFailedMsg struct {
	conn *websocket.Conn
	err  error
}

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC || typedMessage.Type == tea.KeyEsc {
			model.closeConn()
			return model, tea.Quit
		}
		if typedMessage.Type == tea.KeyEnter {
			input := strings.TrimSpace(model.textInput.Value())
			model.textInput.SetValue("")
			if input == "" {
				return model, nil
			}
			return model.handleInput(input)
		}
	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.isConnected = true
		model.connectionError = nil
		return model, model.readOnceCmd()
	case connectFailedMsg:
		model.isConnected = false
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()
	case reconnectMsg:
		return model, model.connectCmd()
	case incomingMsg:
		model.handleEvent(ServerEvent(typedMessage))
		return model, model.readOnceCmd()
	case readFailedMsg:
		if typedMessage.conn != model.websocketConn {
			return model, nil
		}
		model.isConnected = false
		model.connectionError = typedMessage.err
		model.closeConn()
		return model, model.scheduleReconnect()
	case errorMsg:
		model.notice("Error: " + error(typedMessage).Error())
		return model, nil
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(message)
	return model, cmd
}

// handleInput turns a line typed by the user into a command for the server.
func (model *TUIModel) handleInput(input string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(input, "/") {
		if model.roomKey == "" {
			model.notice("Join a room first with /join <room>.")
			return model, nil
		}
		return model, model.sendCmd(ClientCommand{Type: CommandSendMessage, Room: model.roomKey, Content: input})
	}

	verb, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "join":
		if arg == "" {
			model.notice("Usage: /join <room>")
			return model, nil
		}
		if arg == model.roomKey {
			return model, nil
		}
		var cmds []tea.Cmd
		if model.roomKey != "" {
			cmds = append(cmds, model.sendCmd(ClientCommand{Type: CommandLeaveRoom, Room: model.roomKey}))
			model.roomKey = ""
			model.members = nil
		}
		cmds = append(cmds, model.sendCmd(ClientCommand{Type: CommandJoinRoom, Room: arg}))
		return model, tea.Sequence(cmds...)
	case "leave":
		if model.roomKey == "" {
			return model, nil
		}
		room := model.roomKey
		model.roomKey = ""
		model.members = nil
		model.notice(fmt.Sprintf("Left %s.", room))
		return model, model.sendCmd(ClientCommand{Type: CommandLeaveRoom, Room: room})
	case "rooms":
		model.notice(model.roomListText())
		return model, nil
	case "quit":
		cmd := model.sendCmd(ClientCommand{Type: CommandQuit})
		return model, tea.Sequence(cmd, tea.Quit)
	}
	model.notice(fmt.Sprintf("Unknown command /%s. Try /join, /leave, /rooms or /quit.", verb))
	return model, nil
}

// handleEvent folds one server event into the model.
func (model *TUIModel) handleEvent(evt ServerEvent) {
	switch evt.Type {
	case EventWelcome:
		model.sessionID = evt.SessionID
		model.userID = evt.UserID
		model.rooms = evt.Rooms
		model.notice(fmt.Sprintf("Connected as %s. %s", evt.UserID, model.roomListText()))
	case EventRoomDetail:
		model.roomKey = evt.Room
		model.members = append([]string(nil), evt.Users...)
		model.notice(fmt.Sprintf("Joined %s: %s", evt.Room, evt.Description))
		for _, past := range evt.History {
			model.appendLine(chatLine{Room: past.Room, User: past.UserID, Body: past.Content})
		}
	case EventUserMessage:
		model.appendLine(chatLine{Room: evt.Room, User: evt.UserID, Body: evt.Content})
	case EventRoomParticipation:
		if evt.Room != model.roomKey {
			return
		}
		switch evt.Status {
		case StatusJoined:
			model.members = addMember(model.members, evt.UserID)
			model.notice(fmt.Sprintf("%s joined %s", evt.UserID, evt.Room))
		case StatusLeft:
			model.members = removeMember(model.members, evt.UserID)
			model.notice(fmt.Sprintf("%s left %s", evt.UserID, evt.Room))
		}
	case EventError:
		if evt.Room != "" {
			model.notice(fmt.Sprintf("Error (%s): %s", evt.Room, evt.Message))
			return
		}
		model.notice("Error: " + evt.Message)
	}
}

func (model *TUIModel) roomListText() string {
	if len(model.rooms) == 0 {
		return "No rooms available."
	}
	names := make([]string, 0, len(model.rooms))
	for _, room := range model.rooms {
		names = append(names, room.Name)
	}
	return "Rooms: " + strings.Join(names, ", ")
}

func (model *TUIModel) closeConn() {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
	model.websocketConn = nil
}

func addMember(members []string, userID string) []string {
	for _, member := range members {
		if member == userID {
			return members
		}
	}
	members = append(members, userID)
	sort.Strings(members)
	return members
}

func removeMember(members []string, userID string) []string {
	out := members[:0]
	for _, member := range members {
		if member != userID {
			out = append(out, member)
		}
	}
	return out
}
