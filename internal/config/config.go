package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minofeel/TuringBot/internal/ringbuf"
)

// Config is the bot's config.yaml.
type Config struct {
	Version int `yaml:"version"`
	Bot     struct {
		Name string `yaml:"name"`
	} `yaml:"bot"`
	Buffer  ringbuf.Config `yaml:"buffer"`
	Network struct {
		UIPort int `yaml:"ui_port"`
	} `yaml:"network"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	Channels []ChannelConfig `yaml:"channels"`
	Postgres PostgresConfig  `yaml:"postgres"`
	Relay    struct {
		AppendTimeout time.Duration `yaml:"append_timeout"`
	} `yaml:"relay"`
	Logging struct {
		Level     string `yaml:"level"`
		Verbosity *int   `yaml:"verbosity"`
	} `yaml:"logging"`
}

// MQTTConfig describes the broker carrying incoming chat messages.
type MQTTConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

// ChannelConfig maps a chat channel to the topic its messages arrive on.
type ChannelConfig struct {
	ID    string `yaml:"id"`
	Topic string `yaml:"topic"`
}

// PostgresConfig locates the message log database. The password is a secret
// and comes from PGPASSWORD or PGPASSWORD_FILE.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

const (
	defaultVerbosity     = 2
	defaultAppendTimeout = 5 * time.Second
)

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *Config) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// Verbosity returns the log verbosity threshold.
func (c *Config) Verbosity() int {
	if c.Logging.Verbosity == nil {
		return defaultVerbosity
	}
	return *c.Logging.Verbosity
}

// Load reads, defaults and validates a config file. Environment variables
// MQTT_URL, PGHOST, PGPORT, PGUSER and PGDATABASE override the file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config.yaml version: %d", cfg.Version)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.Name == "" {
		c.Bot.Name = "turingbot"
	}
	if c.Buffer.InitialCapacity == 0 {
		c.Buffer.InitialCapacity = 8
	}
	if c.Buffer.MaxSize == 0 {
		c.Buffer.MaxSize = 200
	}
	if c.Buffer.GrowthStep == 0 {
		c.Buffer.GrowthStep = 4
	}
	if c.MQTT.URL == "" {
		c.MQTT.URL = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Bot.Name + "-logger"
	}
	for i := range c.Channels {
		if c.Channels[i].Topic == "" {
			c.Channels[i].Topic = "chat/" + c.Channels[i].ID + "/messages"
		}
	}
	if c.Postgres.Host == "" {
		c.Postgres.Host = "127.0.0.1"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "turingbot"
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "turingbot"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Relay.AppendTimeout == 0 {
		c.Relay.AppendTimeout = defaultAppendTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MQTT_URL"); v != "" {
		c.MQTT.URL = v
	}
	if v := os.Getenv("PGHOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv("PGPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PGPORT %q: %w", v, err)
		}
		c.Postgres.Port = port
	}
	if v := os.Getenv("PGUSER"); v != "" {
		c.Postgres.User = v
	}
	if v := os.Getenv("PGDATABASE"); v != "" {
		c.Postgres.Database = v
	}
	return nil
}

// Validate checks the fully defaulted config.
func (c *Config) Validate() error {
	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	seen := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channel with empty id")
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("duplicate channel id: %s", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	if c.Relay.AppendTimeout < 0 {
		return fmt.Errorf("relay.append_timeout must not be negative")
	}
	return nil
}
