package event_bus

import (
	"fmt"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// RunReportTopic carries the report of every finished construction run.
const RunReportTopic = "run_report"

// TopicBus delivers payloads of a single type on one topic. Handlers run asynchronously,
// one at a time, in publish order.
type TopicBus[Payload any] interface {
	Publish(payload Payload)
	Subscribe(handler func(payload Payload) error) error
	// Wait blocks until every handler has returned for the payloads published so far.
	Wait()
}

type TopicBusImpl[Payload any] struct {
	bus    EventBus.Bus
	topic  string
	logger *zap.Logger
}

func NewTopicBus[Payload any](bus EventBus.Bus, topic string, logger *zap.Logger) *TopicBusImpl[Payload] {
	return &TopicBusImpl[Payload]{
		bus:    bus,
		topic:  topic,
		logger: logger.With(zap.String("topic", topic)),
	}
}

func (tb *TopicBusImpl[Payload]) Publish(payload Payload) {
	tb.bus.Publish(tb.topic, payload)
}

func (tb *TopicBusImpl[Payload]) Subscribe(handler func(payload Payload) error) error {
	err := tb.bus.SubscribeAsync(
		tb.topic,
		func(payload Payload) {
			if err := handler(payload); err != nil {
				tb.logger.Error("Failed to handle published payload", zap.Error(err))
			}
		},
		true,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", tb.topic, err)
	}
	return nil
}

func (tb *TopicBusImpl[Payload]) Wait() {
	tb.bus.WaitAsync()
}
