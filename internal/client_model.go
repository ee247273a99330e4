package internal

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const maxClientLines = 200

// chatLine is one rendered entry in the client's log.
type chatLine struct {
	Room   string
	User   string
	Body   string
	System bool
	Ts     time.Time
}

// tui model struct for the chat client
type TUIModel struct {
	textInput       textinput.Model
	lines           []chatLine
	serverJoinURL   string
	roomKey         string
	userID          string
	sessionID       string
	rooms           []RoomMetadata
	members         []string
	websocketConn   *websocket.Conn
	writeMutex      sync.Mutex
	isConnected     bool
	connectionError error
}

func NewTUIModel(serverJoinURL, roomKey, userID string) *TUIModel {
	input := textinput.New()
	input.Placeholder = "Type a message or /join <room>…"
	input.CharLimit = maxMsgSize / 2
	input.Focus()
	input.Prompt = "> "

	if userID == "" {
		userID = defaultUserID()
	}

	return &TUIModel{
		textInput:     input,
		lines:         make([]chatLine, 0, 64),
		serverJoinURL: serverJoinURL,
		roomKey:       roomKey,
		userID:        userID,
	}
}

func defaultUserID() string {
	if user := os.Getenv("ROOMCHAT_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

func (model *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, model.connectCmd())
}

func (model *TUIModel) appendLine(line chatLine) {
	if line.Ts.IsZero() {
		line.Ts = time.Now()
	}
	model.lines = append(model.lines, line)
	if len(model.lines) > maxClientLines {
		model.lines = model.lines[len(model.lines)-maxClientLines:]
	}
}

func (model *TUIModel) notice(body string) {
	model.appendLine(chatLine{Room: model.roomKey, User: "system", Body: body, System: true})
}
