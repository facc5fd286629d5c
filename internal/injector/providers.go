package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/msgcomm/internal/core/events/bus"
	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/session"
	"github.com/zeusync/msgcomm/internal/core/store"
	"github.com/zeusync/msgcomm/internal/core/transport"
)

// Source tells the injector where the configuration comes from. Non-zero
// overrides win over the file.
type Source struct {
	Path     string
	Host     string
	Port     int
	LogLevel string
}

// App is a ready to connect session plus the logger and bus it writes to.
type App struct {
	Comm   *session.Comm
	Logger log.Log
	Events bus.EventBus
}

var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideDialer,
	ProvideCodec,
	ProvideBus,
	ProvideStore,
	ProvideComm,
	wire.Struct(new(App), "*"),
)

func ProvideConfig(src Source) (session.Config, error) {
	cfg := session.DefaultConfig()
	if src.Path != "" {
		var err error
		if cfg, err = session.LoadConfigFile(src.Path); err != nil {
			return cfg, err
		}
	}
	if src.Host != "" {
		cfg.Host = src.Host
	}
	if src.Port != 0 {
		cfg.Port = src.Port
	}
	if src.LogLevel != "" {
		cfg.LogLevel = src.LogLevel
	}
	return cfg, cfg.Validate()
}

func ProvideLogger(cfg session.Config) (log.Log, func(), error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(level)
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideDialer(cfg session.Config) (transport.Dialer, error) {
	return transport.NewDialer(cfg.Transport)
}

func ProvideCodec() protocol.Codec {
	return protocol.ProtoCodec{}
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

func ProvideStore(cfg session.Config, codec protocol.Codec, logger log.Log) (store.Store, error) {
	return session.OpenStore(cfg.Store, codec, logger)
}

func ProvideComm(
	cfg session.Config,
	logger log.Log,
	dialer transport.Dialer,
	codec protocol.Codec,
	events bus.EventBus,
	st store.Store,
) (*session.Comm, func(), error) {
	c, err := session.New(cfg,
		session.WithLogger(logger),
		session.WithDialer(dialer),
		session.WithCodec(codec),
		session.WithBus(events),
		session.WithStore(st),
	)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}
