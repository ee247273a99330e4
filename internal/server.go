package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"roomchat/internal/storage"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxMsgSize    = 8192
	outboundQueue = 256
)

// errSessionEnded stops a session's goroutine group on a client quit.
var errSessionEnded = errors.New("session ended")

// TranscriptReader is the read side of the transcript database.
type TranscriptReader interface {
	ListEvents(ctx context.Context, room string, limit int) ([]storage.RoomEvent, error)
}

// Server serves websocket sessions against a fixed set of rooms. Its context
// is the shutdown signal: once cancelled every session leaves its rooms and
// returns, and Wait unblocks when the last one is gone.
type Server struct {
	ctx        context.Context
	rooms      *RoomManager
	transcript TranscriptReader
	metrics    *Metrics
	logger     *zap.Logger
	sessions   sync.WaitGroup
}

// NewServer wires a server. transcript and metrics may be nil.
func NewServer(ctx context.Context, rooms *RoomManager, transcript TranscriptReader, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ctx:        ctx,
		rooms:      rooms,
		transcript: transcript,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *Server) Rooms() *RoomManager {
	return s.rooms
}

// Wait blocks until every session has finished.
func (s *Server) Wait() {
	s.sessions.Wait()
}

// clientSession is the state of one websocket connection. joined is only
// touched by the command loop goroutine.
type clientSession struct {
	server   *Server
	conn     *websocket.Conn
	identity SessionAndUserID
	outbound chan ServerEvent
	joined   map[string]*joinedRoom
	group    *errgroup.Group
	logger   *zap.Logger
}

type joinedRoom struct {
	room         *ChatRoom
	handle       *UserSessionHandle
	subscription *Subscription
}

func (s *Server) runSession(conn *websocket.Conn, identity SessionAndUserID, autoJoin string) {
	s.metrics.IncConn()
	defer s.metrics.DecConn()

	group, ctx := errgroup.WithContext(s.ctx)
	session := &clientSession{
		server:   s,
		conn:     conn,
		identity: identity,
		outbound: make(chan ServerEvent, outboundQueue),
		joined:   make(map[string]*joinedRoom),
		group:    group,
		logger: s.logger.With(
			zap.String("session_id", identity.SessionID),
			zap.String("user_id", identity.UserID)),
	}
	session.logger.Info("session started")

	commands := make(chan ClientCommand)
	group.Go(func() error { return session.readPump(ctx, commands) })
	group.Go(func() error { return session.writePump(ctx) })
	group.Go(func() error { return session.loop(ctx, commands, autoJoin) })

	err := group.Wait()
	switch {
	case err == nil, errors.Is(err, errSessionEnded), errors.Is(err, context.Canceled),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		session.logger.Info("session finished")
	default:
		session.logger.Warn("session terminated", zap.Error(err))
	}
}

// loop owns the joined rooms. Whatever ends it, every room is left before
// it returns.
func (cs *clientSession) loop(ctx context.Context, commands <-chan ClientCommand, autoJoin string) error {
	defer cs.leaveAll()

	cs.push(ctx, ServerEvent{
		Type:      EventWelcome,
		SessionID: cs.identity.SessionID,
		UserID:    cs.identity.UserID,
		Rooms:     cs.server.rooms.Rooms(),
	})
	if autoJoin != "" {
		cs.join(ctx, autoJoin)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-commands:
			switch cmd.Type {
			case CommandJoinRoom:
				cs.join(ctx, cmd.Room)
			case CommandLeaveRoom:
				cs.leave(ctx, cmd.Room)
			case CommandSendMessage:
				if err := cs.sendMessage(ctx, cmd); err != nil {
					return err
				}
			case CommandQuit:
				return errSessionEnded
			default:
				cs.push(ctx, errorEvent("", fmt.Sprintf("unknown command %q", cmd.Type)))
			}
		}
	}
}

func (cs *clientSession) join(ctx context.Context, name string) {
	if _, ok := cs.joined[name]; ok {
		cs.push(ctx, errorEvent(name, "already joined"))
		return
	}
	room, err := cs.server.rooms.Room(name)
	if err != nil {
		cs.push(ctx, errorEvent(name, err.Error()))
		return
	}

	subscription, handle := room.Join(cs.identity)
	cs.joined[name] = &joinedRoom{room: room, handle: handle, subscription: subscription}

	users, history := room.Snapshot()
	cs.push(ctx, ServerEvent{
		Type:        EventRoomDetail,
		Room:        name,
		Description: room.Metadata().Description,
		Users:       users,
		History:     history,
	})
	cs.group.Go(func() error { return cs.forward(ctx, subscription) })
}

func (cs *clientSession) leave(ctx context.Context, name string) {
	joined, ok := cs.joined[name]
	if !ok {
		cs.push(ctx, errorEvent(name, "not joined"))
		return
	}
	delete(cs.joined, name)
	joined.subscription.Close()
	joined.room.Leave(joined.handle)
}

func (cs *clientSession) leaveAll() {
	for name, joined := range cs.joined {
		joined.subscription.Close()
		joined.room.Leave(joined.handle)
		delete(cs.joined, name)
	}
}

func (cs *clientSession) sendMessage(ctx context.Context, cmd ClientCommand) error {
	joined, ok := cs.joined[cmd.Room]
	if !ok {
		cs.push(ctx, errorEvent(cmd.Room, "not joined"))
		return nil
	}
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		cs.push(ctx, errorEvent(cmd.Room, "empty message"))
		return nil
	}
	if err := joined.handle.SendMessage(content); err != nil {
		return fmt.Errorf("send to %s: %w", cmd.Room, err)
	}
	return nil
}

// forward copies one room's events to the connection until the subscription
// is closed by a leave or the session ends.
func (cs *clientSession) forward(ctx context.Context, subscription *Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-subscription.C():
			if !ok {
				return nil
			}
			if !cs.push(ctx, serverEventFrom(evt)) {
				return nil
			}
		}
	}
}

func (cs *clientSession) push(ctx context.Context, evt ServerEvent) bool {
	select {
	case cs.outbound <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (cs *clientSession) readPump(ctx context.Context, commands chan<- ClientCommand) error {
	cs.conn.SetReadLimit(maxMsgSize)
	_ = cs.conn.SetReadDeadline(time.Now().Add(pongWait))
	cs.conn.SetPongHandler(func(string) error {
		return cs.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := cs.conn.ReadMessage()
		if err != nil {
			return err
		}
		var cmd ClientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			cs.push(ctx, errorEvent("", "malformed command"))
			continue
		}
		select {
		case commands <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
}

// writePump is the only writer on the connection. It closes the connection
// when the session ends, which also unblocks readPump.
func (cs *clientSession) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cs.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = cs.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = cs.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
			return nil
		case evt := <-cs.outbound:
			_ = cs.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cs.conn.WriteJSON(evt); err != nil {
				return err
			}
		case <-ticker.C:
			_ = cs.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cs.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
