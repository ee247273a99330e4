package app

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	intrnl "roomchat/internal"
)

//go:embed rooms.json
var defaultRoomsJSON []byte

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr              string                `mapstructure:"addr"`
	Path              string                `mapstructure:"path"`
	DBPath            string                `mapstructure:"db_path"`
	LogLevel          string                `mapstructure:"log_level"`
	BroadcastCapacity int                   `mapstructure:"broadcast_capacity"`
	Archive           bool                  `mapstructure:"archive"`
	RoomsFile         string                `mapstructure:"rooms_file"`
	Rooms             []intrnl.RoomMetadata `mapstructure:"rooms"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	UserID    string
	RoomKey   string
}

const (
	defaultAddr     = ":8080"
	defaultPath     = "/join"
	defaultLogLevel = "info"
)

// LoadServerConfig reads configuration from the provided file path (if any)
// and the environment. Environment variables are prefixed with ROOMCHAT_ and
// override file values.
func LoadServerConfig(path string) (ServerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("ROOMCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("addr", defaultAddr)
	v.SetDefault("path", defaultPath)
	v.SetDefault("db_path", DefaultDBPath())
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("broadcast_capacity", intrnl.DefaultBroadcastCapacity)
	v.SetDefault("archive", true)
	v.SetDefault("rooms_file", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Path = NormalizeJoinPath(cfg.Path)
	if cfg.BroadcastCapacity <= 0 {
		return ServerConfig{}, fmt.Errorf("broadcast_capacity must be positive, got %d", cfg.BroadcastCapacity)
	}
	return cfg, nil
}

// LoadRooms resolves the room list: inline rooms win, then rooms_file, then
// the embedded default list. Malformed input is an error; the caller treats
// it as fatal.
func LoadRooms(cfg ServerConfig) ([]intrnl.RoomMetadata, error) {
	if len(cfg.Rooms) > 0 {
		return cfg.Rooms, nil
	}
	raw := defaultRoomsJSON
	source := "embedded rooms"
	if cfg.RoomsFile != "" {
		data, err := os.ReadFile(cfg.RoomsFile)
		if err != nil {
			return nil, fmt.Errorf("read rooms file: %w", err)
		}
		raw = data
		source = cfg.RoomsFile
	}
	rooms, err := ParseRooms(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	return rooms, nil
}

// ParseRooms decodes a json array of {name, description} records.
func ParseRooms(raw []byte) ([]intrnl.RoomMetadata, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	var rooms []intrnl.RoomMetadata
	if err := decoder.Decode(&rooms); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after rooms list")
	}
	if len(rooms) == 0 {
		return nil, fmt.Errorf("no rooms defined")
	}
	return rooms, nil
}

// BuildRoomManager turns metadata into the process-wide room registry.
func BuildRoomManager(rooms []intrnl.RoomMetadata, opts ...intrnl.RoomOption) (*intrnl.RoomManager, error) {
	builder := intrnl.NewRoomManagerBuilder(opts...)
	for _, metadata := range rooms {
		builder.CreateRoom(metadata)
	}
	return builder.Build()
}

// DefaultDBPath returns a per-user data path for the transcript database.
func DefaultDBPath() string {
	if env := os.Getenv("ROOMCHAT_DATA_DIR"); env != "" {
		return filepath.Join(env, "roomchat.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomchat", "roomchat.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Roomchat", "roomchat.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Roomchat", "roomchat.db")
		}
		return filepath.Join(home, ".local", "share", "roomchat", "roomchat.db")
	}
	return filepath.Join(".", ".roomchat", "roomchat.db")
}

// NormalizeJoinPath guarantees the websocket join path starts with '/' and
// falls back to /join when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return defaultPath
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
