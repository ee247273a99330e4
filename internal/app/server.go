package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	intrnl "roomchat/internal"
	"roomchat/internal/storage"
)

const httpShutdownTimeout = 5 * time.Second

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr     string
	server   *http.Server
	chat     *intrnl.Server
	rooms    *intrnl.RoomManager
	archiver *intrnl.Archiver
	store    *storage.Store
	logger   *zap.Logger
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
	err      error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Rooms exposes the room registry the server was built with.
func (h *ServerHandle) Rooms() *intrnl.RoomManager {
	return h.rooms
}

// Stop sends the shutdown signal to every session and stops accepting
// connections. ctx bounds only the HTTP listener shutdown; sessions drain
// cooperatively and Wait returns once the last one has left its rooms.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	var err error
	h.stopOnce.Do(func() {
		h.cancel()
		if ctx == nil {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
		}
		err = h.server.Shutdown(ctx)
		close(h.stopped)
	})
	return err
}

// Wait blocks until the server and every session have exited.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer builds the rooms, opens the transcript store when archiving is
// enabled and starts serving in the background. Cancelling ctx is the
// shutdown signal. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, logger *zap.Logger) (*ServerHandle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.Path = NormalizeJoinPath(cfg.Path)
	if cfg.BroadcastCapacity <= 0 {
		cfg.BroadcastCapacity = intrnl.DefaultBroadcastCapacity
	}

	roomList, err := LoadRooms(cfg)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := intrnl.NewMetrics(registry)

	rooms, err := BuildRoomManager(roomList,
		intrnl.WithBroadcastCapacity(cfg.BroadcastCapacity),
		intrnl.WithLogger(logger),
		intrnl.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("build rooms: %w", err)
	}

	var (
		store      *storage.Store
		archiver   *intrnl.Archiver
		transcript intrnl.TranscriptReader
	)
	if cfg.Archive {
		if cfg.DBPath == "" {
			return nil, errors.New("database path is required when archiving is enabled")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		store, err = storage.NewStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := store.Migrate(context.Background()); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		archiver = intrnl.NewArchiver(store, logger)
		archiver.Start(rooms)
		transcript = store
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	chat := intrnl.NewServer(sessionCtx, rooms, transcript, metrics, logger)
	mux := http.NewServeMux()
	registerHandlers(mux, cfg.Path, chat)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		cancel()
		rooms.Close()
		if archiver != nil {
			archiver.Wait()
		}
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:     listener.Addr().String(),
		server:   httpServer,
		chat:     chat,
		rooms:    rooms,
		archiver: archiver,
		store:    store,
		logger:   logger,
		cancel:   cancel,
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	go func() {
		<-sessionCtx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer stop()
		if err := handle.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("server shutdown error", zap.Error(err))
		}
	}()

	go handle.serve(listener)

	return handle, nil
}

// serve runs the listener, then drains: sessions leave their rooms, room
// buses close, the archiver flushes and the store is closed.
func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.cancel()
	// every upgrade has registered its session once the listener is shut
	<-h.stopped

	h.logger.Info("waiting for sessions to finish")
	h.chat.Wait()
	h.rooms.Close()
	if h.archiver != nil {
		h.archiver.Wait()
	}
	if err := h.store.Close(); err != nil {
		h.logger.Warn("store close error", zap.Error(err))
	}
	h.logger.Info("server shut down")
	h.err = err
}

func registerHandlers(mux *http.ServeMux, wsPath string, server *intrnl.Server) {
	mux.HandleFunc(wsPath, server.ServeWS)
	mux.HandleFunc("/rooms", server.HandleRooms)
	mux.HandleFunc("/rooms/", server.HandleRoom)
	mux.HandleFunc("/exists", server.HandleRoomExists)
	mux.HandleFunc("/healthz", server.HandleHealth)
	mux.Handle("/metrics", server.MetricsHandler())
}
