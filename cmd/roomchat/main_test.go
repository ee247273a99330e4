package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	mode, rest := parseMode([]string{"server", "-addr", ":9000"})
	require.Equal(t, modeServer, mode)
	require.Equal(t, []string{"-addr", ":9000"}, rest)

	mode, rest = parseMode([]string{"LOCAL"})
	require.Equal(t, modeLocal, mode)
	require.Empty(t, rest)

	mode, rest = parseMode([]string{"general"})
	require.Equal(t, modeClient, mode)
	require.Equal(t, []string{"general"}, rest)

	mode, _ = parseMode(nil)
	require.Equal(t, modeClient, mode)
}

func TestBuildWebsocketURL(t *testing.T) {
	require.Equal(t, "ws://127.0.0.1:8080/join", buildWebsocketURL("[::]:8080", "/join"))
	require.Equal(t, "ws://127.0.0.1:8080/chat", buildWebsocketURL(":8080", "chat"))
	require.Equal(t, "ws://10.0.0.5:9000/join", buildWebsocketURL("10.0.0.5:9000", ""))
}

func TestPick(t *testing.T) {
	require.Equal(t, ":7000", pick(":7000", ":8080", modeLocal))
	require.Equal(t, "127.0.0.1:0", pick("", ":8080", modeLocal))
	require.Equal(t, ":8080", pick("", ":8080", modeServer))
}
