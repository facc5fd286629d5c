package session

import (
	"github.com/zeusync/msgcomm/internal/core/events/bus"
	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/store"
	"github.com/zeusync/msgcomm/internal/core/transport"
)

// Option customizes the collaborators of a Comm.
type Option func(*options)

type options struct {
	logger   log.Log
	store    store.Store
	dialer   transport.Dialer
	codec    protocol.Codec
	events   bus.EventBus
	logon    []byte
	hasLogon bool
}

// WithLogger sets the logger. By default New builds a JSON logger at
// Config.LogLevel.
func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore sets the durable store, overriding Config.Store.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithDialer sets the dialer, overriding Config.Transport.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithCodec sets the header codec. The default is protocol.ProtoCodec.
func WithCodec(codec protocol.Codec) Option {
	return func(o *options) { o.codec = codec }
}

// WithBus sets the bus notifications are published on.
func WithBus(b bus.EventBus) Option {
	return func(o *options) { o.events = b }
}

// WithLogonPayload sets the raw Logon payload, overriding Config.Logon. A
// nil payload disables logon.
func WithLogonPayload(payload []byte) Option {
	return func(o *options) {
		o.logon = payload
		o.hasLogon = true
	}
}
