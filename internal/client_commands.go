package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

// websocket dial; the active room is rejoined through the join URL
func (model *TUIModel) connectCmd() tea.Cmd {
	base, roomKey, userID := model.serverJoinURL, model.roomKey, model.userID
	return func() tea.Msg {
		joinURL, err := buildJoinURL(base, roomKey, userID)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(joinURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// readOnceCmd waits for the next frame. Failures carry the connection so a
// late error from a replaced connection can be ignored.
func (model *TUIModel) readOnceCmd() tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return readFailedMsg{conn: conn, err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var evt ServerEvent
			if err := json.Unmarshal(payload, &evt); err != nil {
				return incomingMsg(errorEvent("", "unreadable frame from server"))
			}
			return incomingMsg(evt)
		}
	}
}

func (model *TUIModel) sendCmd(command ClientCommand) tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		encoded, err := json.Marshal(command)
		if err != nil {
			return errorMsg(err)
		}
		model.writeMutex.Lock()
		err = conn.WriteMessage(websocket.TextMessage, encoded)
		model.writeMutex.Unlock()
		if err != nil {
			return errorMsg(err)
		}
		return nil
	}
}

// entry for bubbletea
func RunClient(serverJoinURL, roomKey, userID string) error {
	program := tea.NewProgram(NewTUIModel(serverJoinURL, roomKey, userID), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func buildJoinURL(base, roomKey, userID string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	query := parsed.Query()
	if roomKey != "" {
		query.Set("room", roomKey)
	} else {
		query.Del("room")
	}
	if userID != "" {
		query.Set("user", userID)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
