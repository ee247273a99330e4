package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"roomchat/internal/app"
)

func main() {
	configPath := flag.String("config", os.Getenv("ROOMCHAT_CONFIG"), "path to a config file (yaml, json or toml)")
	addr := flag.String("addr", "", "server listen address (overrides config)")
	roomsFile := flag.String("rooms", "", "json file with the room list (overrides config)")
	flag.Parse()

	cfg, err := app.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *roomsFile != "" {
		cfg.RoomsFile = *roomsFile
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("server startup failed", zap.Error(err))
	}
	logger.Info("roomchat server listening",
		zap.String("addr", handle.Addr()),
		zap.String("path", cfg.Path),
		zap.Strings("rooms", roomNames(handle)))

	if err := handle.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func roomNames(handle *app.ServerHandle) []string {
	var names []string
	for _, room := range handle.Rooms().Rooms() {
		names = append(names, room.Name)
	}
	return names
}
