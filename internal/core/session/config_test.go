package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.WaitTimeout)
	assert.Equal(t, 2*time.Second, cfg.HeartbeatPeriod)
	assert.Equal(t, 4*time.Second, cfg.ServerTimeout)
	assert.Equal(t, 2*time.Second, cfg.ResendPeriod)
	assert.Zero(t, cfg.ReconnectRetry)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.AutoAck)
	assert.Equal(t, "localhost:8888", cfg.Addr())
}

func TestLoadConfig(t *testing.T) {
	doc := `
name: gateway
host: 10.0.0.5
port: 9000
heartbeat: 500ms
server_timeout: 3s
reconnect_retry: 1s
auto_ack: false
transport:
  kind: websocket
  websocket_path: /comm
logon:
  client_type: 4
  client_id: 12
subscriptions:
  - client_type: 5
    topic: 3
store:
  kind: memory
`
	cfg, err := LoadConfig(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "gateway", cfg.Name)
	assert.Equal(t, "10.0.0.5:9000", cfg.Addr())
	assert.Equal(t, 500*time.Millisecond, cfg.HeartbeatPeriod)
	assert.Equal(t, 3*time.Second, cfg.ServerTimeout)
	assert.Equal(t, time.Second, cfg.ReconnectRetry)
	assert.False(t, cfg.AutoAck)
	assert.Equal(t, transport.KindWebSocket, cfg.Transport.Kind)
	assert.Equal(t, "/comm", cfg.Transport.WebSocketPath)
	require.NotNil(t, cfg.Logon)
	assert.Equal(t, int32(12), cfg.Logon.ClientID)
	assert.Equal(t, []SubscriptionConfig{{ClientType: 5, Topic: 3}}, cfg.Subscriptions)
	assert.Equal(t, "memory", cfg.Store.Kind)

	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.WaitTimeout)
	assert.Equal(t, 2*time.Second, cfg.ResendPeriod)
}

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "port: [",
		"port":           "port: 70000",
		"negative timer": "resend: -1s",
		"store kind":     "store: {kind: redis}",
		"file store":     "store: {kind: file}",
		"empty host":     `host: ""`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(doc))
			assert.ErrorIs(t, err, protocol.ErrInvalidConfig)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgcomm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\nwait_timeout: 250ms\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.WaitTimeout)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_LoggerFromLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "silent"
	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	cfg.LogLevel = "loud"
	_, err = New(cfg)
	assert.Error(t, err)
}
