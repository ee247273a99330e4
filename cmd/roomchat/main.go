package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"roomchat/internal/app"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeLocal  = "local"
)

func main() {
	mode, args := parseMode(os.Args[1:])
	flagSet := flag.NewFlagSet("roomchat", flag.ExitOnError)
	configPath := flagSet.String("config", os.Getenv("ROOMCHAT_CONFIG"), "path to a config file (server and local modes)")
	addr := flagSet.String("addr", "", "server listen address (overrides config)")
	serverURL := flagSet.String("server-url", envOrDefault("ROOMCHAT_SERVER", "ws://localhost:8080/join"), "server websocket URL (client mode)")
	userID := flagSet.String("user", envOrDefault("ROOMCHAT_USER", ""), "user id (client and local modes)")
	quiet := flagSet.Bool("quiet", mode == modeLocal, "suppress server logs")
	flagSet.Parse(args)

	roomKey := ""
	if remaining := flagSet.Args(); len(remaining) > 0 {
		roomKey = remaining[0]
	}

	clientCfg := app.ClientConfig{
		ServerURL: *serverURL,
		UserID:    *userID,
		RoomKey:   roomKey,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case modeServer, modeLocal:
		var serverCfg app.ServerConfig
		serverCfg, err = app.LoadServerConfig(*configPath)
		if err != nil {
			break
		}
		serverCfg.Addr = pick(*addr, serverCfg.Addr, mode)
		var logger *zap.Logger
		logger, err = newLogger(serverCfg.LogLevel, *quiet)
		if err != nil {
			break
		}
		defer func() { _ = logger.Sync() }()
		if mode == modeServer {
			err = runServerMode(ctx, serverCfg, logger)
		} else {
			err = runLocalMode(ctx, serverCfg, clientCfg, logger)
		}
	default:
		err = runClientMode(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
}

func runServerMode(ctx context.Context, cfg app.ServerConfig, logger *zap.Logger) error {
	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("roomchat server listening",
		zap.String("addr", handle.Addr()),
		zap.String("path", cfg.Path),
		zap.String("db", cfg.DBPath))
	return handle.Wait()
}

func runClientMode(cfg app.ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("client mode requires --server-url or ROOMCHAT_SERVER")
	}
	return app.RunClient(cfg)
}

func runLocalMode(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig, logger *zap.Logger) error {
	handle, err := app.RunServer(ctx, serverCfg, logger)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	// the listener is bound once RunServer returns, so the client can dial
	// right away
	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.Path)
	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func newLogger(level string, quiet bool) (*zap.Logger, error) {
	if quiet {
		return zap.NewNop(), nil
	}
	return app.NewLogger(level)
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeClient, args
}

// pick resolves the listen address: the flag wins, local mode defaults to an
// ephemeral loopback port.
func pick(flagAddr, configAddr, mode string) string {
	if flagAddr != "" {
		return flagAddr
	}
	if mode == modeLocal {
		return "127.0.0.1:0"
	}
	return configAddr
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
