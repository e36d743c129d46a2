package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"
    "unicode"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// LogConsumer drains the stall events queue and appends one line per event
// to <Dir>/booking.log.
type LogConsumer struct {
    URL   string
    Queue string
    Dir   string
}

// Run connects to RabbitMQ, declares the durable queue and consumes until
// ctx is cancelled.  Connection failures are retried with exponential
// backoff capped at 30s; a message that cannot be handled is rejected
// without requeue so it cannot loop.
func (c LogConsumer) Run(ctx context.Context) error {
    log := zap.L().Named("stall-consumer")
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c LogConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        zap.L().Warn("set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.Body); err != nil {
                zap.L().Error("handle stall event failed", zap.Error(err))
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one message body and appends its log line.
func (c LogConsumer) Handle(body []byte) error {
    var ev StallEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if err := os.MkdirAll(c.Dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.Dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.Dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLogLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLogLine renders an event as a single human-friendly line.
func FormatLogLine(ev StallEvent) string {
    var what string
    switch ev.Type {
    case EventBooked:
        what = "Stall booked"
    case EventCancelled:
        what = "Booking cancelled"
    case EventForfeited:
        what = "Booking forfeited"
    default:
        what = bare(ev.Type)
    }
    line := fmt.Sprintf("[%s] %s | event_id=%s | stall=%s | zone=%q | user_id=%d | shop=%q | date=%s | price=%d",
        bare(ev.OccurredAt), what, bare(ev.ID), bare(ev.StallName), ev.Zone, ev.UserID, ev.ShopName, bare(ev.BookingDate), ev.Price)
    if ev.PaymentMethod != "" {
        line += " | method=" + bare(ev.PaymentMethod)
    }
    if ev.Type == EventCancelled {
        line += fmt.Sprintf(" | refunded=%d | actor_id=%d", ev.Refunded, ev.ActorID)
    }
    return line + "\n"
}

// bare drops control characters from an unquoted field so every event
// stays on one line.
func bare(s string) string {
    return strings.Map(func(r rune) rune {
        if unicode.IsControl(r) {
            return -1
        }
        return r
    }, s)
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
