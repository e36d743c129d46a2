package service

import (
    "context"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/market-stall-booking/internal/config"
    "github.com/iliyamo/market-stall-booking/internal/queue"
)

// Event drivers accepted by NewEventPublisher.
const (
    EventsAMQP  = "amqp"
    EventsKafka = "kafka"
    EventsNone  = "none"
)

// EventPublisher delivers stall lifecycle events after their transaction
// has committed.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.StallEvent) error
    Close() error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.StallEvent) error { return nil }
func (nopPublisher) Close() error                                    { return nil }

// NopPublisher drops every event.
func NopPublisher() EventPublisher { return nopPublisher{} }

// NewEventPublisher picks the broker named by cfg.Driver.  An unknown or
// empty driver disables publishing.
func NewEventPublisher(cfg config.EventsConfig) EventPublisher {
    switch cfg.Driver {
    case EventsAMQP:
        return queue.AMQPPublisher{URL: cfg.AMQPURL, Queue: cfg.Queue}
    case EventsKafka:
        if len(cfg.KafkaBrokers) == 0 {
            zap.L().Warn("kafka events selected without brokers, publishing disabled")
            return NopPublisher()
        }
        return queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
    default:
        return NopPublisher()
    }
}

// publishTimeout bounds one batch of publishes, so a slow or unreachable
// broker holds the caller for at most this long after commit.
var publishTimeout = 5 * time.Second

// publishAll sends each event and logs failures.  The booking has already
// committed, so a failed publish never turns into a request error.  Once
// the batch deadline passes the remaining events are logged and dropped.
func publishAll(ctx context.Context, p EventPublisher, events ...queue.StallEvent) {
    if p == nil || len(events) == 0 {
        return
    }
    pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
    defer cancel()
    for i, ev := range events {
        if pctx.Err() != nil {
            zap.L().Warn("publish deadline passed, dropping stall events",
                zap.Int("dropped", len(events)-i),
                zap.Error(pctx.Err()))
            return
        }
        if err := p.Publish(pctx, ev); err != nil {
            zap.L().Warn("publish stall event failed",
                zap.String("type", ev.Type),
                zap.String("event_id", ev.ID),
                zap.Uint64("stall_id", ev.StallID),
                zap.Error(err))
        }
    }
}
