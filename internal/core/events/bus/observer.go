package bus

import (
	"time"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
)

// LogObserver logs failed deliveries and, at debug level, every delivery.
type LogObserver struct {
	logger log.Log
}

var _ EventBusObserver = (*LogObserver)(nil)

func NewLogObserver(logger log.Log) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnPublish(string, Event) {}

func (o *LogObserver) OnDelivered(eventType string, handlers int, err error, durationMicros int64) {
	if err != nil {
		o.logger.Warn("Event handler failed",
			log.String("event", eventType),
			log.Int("handlers", handlers),
			log.Error(err))
		return
	}
	o.logger.Debug("Event delivered",
		log.String("event", eventType),
		log.Int("handlers", handlers),
		log.Duration("took", time.Duration(durationMicros)*time.Microsecond))
}
