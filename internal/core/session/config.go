package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/transport"
)

// LogonConfig describes the Logon payload sent on every connect. A nil
// LogonConfig means the session never logs on.
type LogonConfig struct {
	ClientType int32  `yaml:"client_type"`
	ClientID   int32  `yaml:"client_id"`
	Name       string `yaml:"name"`
}

// SubscriptionConfig is one subscription added at construction time.
type SubscriptionConfig struct {
	ClientType int32 `yaml:"client_type"`
	ClientID   int32 `yaml:"client_id"`
	Topic      int32 `yaml:"topic"`
}

// StoreConfig selects the durable store. Kind is "none", "memory" or "file".
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// Config holds the session configuration
type Config struct {
	// Identity
	Name string `yaml:"name"`

	// Peer
	Host      string                 `yaml:"host"`
	Port      int                    `yaml:"port"`
	Transport transport.DialerConfig `yaml:"transport"`

	// Connection settings
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxFrameSize   int           `yaml:"max_frame_size"`

	// Protocol timers, zero disables
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	HeartbeatPeriod time.Duration `yaml:"heartbeat"`
	ServerTimeout   time.Duration `yaml:"server_timeout"`
	ResendPeriod    time.Duration `yaml:"resend"`
	ReconnectRetry  time.Duration `yaml:"reconnect_retry"`

	// Delivery
	AutoAck       bool                 `yaml:"auto_ack"`
	LedgerShards  int                  `yaml:"ledger_shards"`
	Logon         *LogonConfig         `yaml:"logon"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Store         StoreConfig          `yaml:"store"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		Name:            "msgcomm",
		Host:            "localhost",
		Port:            8888,
		Transport:       transport.DialerConfig{Kind: transport.KindTCP},
		ConnectTimeout:  10 * time.Second,
		MaxFrameSize:    protocol.DefaultMaxFrameSize,
		WaitTimeout:     5 * time.Second,
		HeartbeatPeriod: 2 * time.Second,
		ServerTimeout:   4 * time.Second,
		ResendPeriod:    2 * time.Second,
		AutoAck:         true,
		Store:           StoreConfig{Kind: "none"},
		LogLevel:        "info",
	}
}

// Addr returns the dial address of the peer.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout},
		{"write_timeout", c.WriteTimeout},
		{"wait_timeout", c.WaitTimeout},
		{"heartbeat", c.HeartbeatPeriod},
		{"server_timeout", c.ServerTimeout},
		{"resend", c.ResendPeriod},
		{"reconnect_retry", c.ReconnectRetry},
	}
	for _, v := range durations {
		if v.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", v.name))
		}
	}
	if c.MaxFrameSize < 0 {
		errs = append(errs, errors.New("max_frame_size must not be negative"))
	}
	switch c.Store.Kind {
	case "", "none", "memory":
	case "file":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store path is required for a file store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", protocol.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads a YAML document over DefaultConfig and validates it.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, err
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %w", protocol.ErrInvalidConfig, err)
		}
	}
	return cfg, cfg.Validate()
}

// LoadConfigFile is LoadConfig over the file at path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultConfig(), err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}
