package main

import (
	"flag"
	"fmt"
	"os"

	"roomchat/internal/app"
)

func main() {
	defaultServer := envOrDefault("ROOMCHAT_SERVER", "ws://localhost:8080/join")
	defaultUser := envOrDefault("ROOMCHAT_USER", "")

	serverJoinURL := flag.String("server", defaultServer, "WebSocket join URL (e.g., ws://localhost:8080/join)")
	userID := flag.String("user", defaultUser, "user id shown to other participants")
	flag.Parse()

	var roomKey string
	if args := flag.Args(); len(args) >= 1 {
		roomKey = args[0]
	}

	cfg := app.ClientConfig{
		ServerURL: *serverJoinURL,
		RoomKey:   roomKey,
		UserID:    *userID,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
