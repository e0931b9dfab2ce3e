package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/focusroom/go/internal/gateway"
	"github.com/mcdev12/focusroom/go/internal/publisher"
	"github.com/mcdev12/focusroom/go/internal/room"
	"gopkg.in/yaml.v3"
)

const (
	BroadcastLocal     = "local"
	BroadcastJetStream = "jetstream"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	Room room.Config `yaml:"room"`

	// EngineURL switches the binary into gateway-only mode: commands go to a
	// remote engine over connect and snapshots arrive through JetStream.
	EngineURL string `yaml:"engine_url"`

	Broadcast struct {
		Mode           string        `yaml:"mode"`
		CommandTimeout time.Duration `yaml:"command_timeout"`
	} `yaml:"broadcast"`

	Connections gateway.ConnectionConfig        `yaml:"connections"`
	Publisher   publisher.JetStreamConfig       `yaml:"jetstream_publisher"`
	Consumer    gateway.JetStreamConsumerConfig `yaml:"jetstream_consumer"`

	Checkpoints struct {
		Enabled       bool          `yaml:"enabled"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		RestoreWindow time.Duration `yaml:"restore_window"`
	} `yaml:"checkpoints"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Port:            "8080",
		LogLevel:        "info",
		Room:            room.DefaultConfig(),
		Connections:     gateway.DefaultConnectionConfig(),
		Publisher:       publisher.DefaultJetStreamConfig(),
		Consumer:        gateway.DefaultJetStreamConsumerConfig(),
		ShutdownTimeout: 10 * time.Second,
	}
	cfg.Broadcast.Mode = BroadcastLocal
	cfg.Broadcast.CommandTimeout = 5 * time.Second
	cfg.Checkpoints.FlushInterval = 5 * time.Second
	cfg.Checkpoints.RestoreWindow = 10 * time.Minute
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// loadConfig layers the YAML file over the defaults and the environment over
// both. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.EngineURL = getEnv("ENGINE_URL", c.EngineURL)
	c.Broadcast.Mode = getEnv("BROADCAST_MODE", c.Broadcast.Mode)
	c.Checkpoints.Enabled = getEnvAsBool("CHECKPOINTS_ENABLED", c.Checkpoints.Enabled)

	c.Room.MaxWorkMinutes = getEnvAsInt("ROOM_MAX_WORK_MINUTES", c.Room.MaxWorkMinutes)
	c.Room.MaxBreakMinutes = getEnvAsInt("ROOM_MAX_BREAK_MINUTES", c.Room.MaxBreakMinutes)
	if sec := getEnvAsInt("ROOM_GRACE_PERIOD_SEC", 0); sec > 0 {
		c.Room.GracePeriod = time.Duration(sec) * time.Second
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		c.Publisher.URL = url
		c.Consumer.URL = url
	}
}

func (c *Config) validate() error {
	switch c.Broadcast.Mode {
	case BroadcastLocal, BroadcastJetStream:
	default:
		return fmt.Errorf("unknown broadcast mode %q", c.Broadcast.Mode)
	}
	if c.EngineURL != "" && c.Broadcast.Mode != BroadcastJetStream {
		return fmt.Errorf("engine_url requires broadcast mode %q", BroadcastJetStream)
	}
	if c.EngineURL != "" && c.Checkpoints.Enabled {
		return errors.New("checkpoints belong to the engine process, not a remote gateway")
	}
	return nil
}

// GatewayOnly reports whether this process fronts a remote engine.
func (c *Config) GatewayOnly() bool {
	return c.EngineURL != ""
}
