package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"
)

// Dialer opens the byte stream the handler frames messages over.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// Kind names a Dialer implementation in configuration.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "websocket"
	KindQUIC      Kind = "quic"
)

// DialerConfig selects and tunes a Dialer.
type DialerConfig struct {
	Kind          Kind          `yaml:"kind"`
	KeepAlive     time.Duration `yaml:"keep_alive"`
	WebSocketPath string        `yaml:"websocket_path"`
	ALPN          string        `yaml:"alpn"`
	TLSInsecure   bool          `yaml:"tls_insecure"`
	TLSServerName string        `yaml:"tls_server_name"`
}

// NewDialer builds the Dialer named by cfg.Kind. An empty kind means TCP.
func NewDialer(cfg DialerConfig) (Dialer, error) {
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case "", KindTCP:
		return &TCPDialer{KeepAlive: cfg.KeepAlive}, nil
	case KindWebSocket:
		return NewWebSocketDialer(cfg.WebSocketPath), nil
	case KindQUIC:
		return NewQUICDialer(cfg.tlsConfig(), nil), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

func (cfg DialerConfig) tlsConfig() *tls.Config {
	alpn := cfg.ALPN
	if alpn == "" {
		alpn = DefaultALPN
	}
	return &tls.Config{
		InsecureSkipVerify: cfg.TLSInsecure,
		ServerName:         cfg.TLSServerName,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
}

// TCPDialer dials plain TCP.
type TCPDialer struct {
	KeepAlive time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}
