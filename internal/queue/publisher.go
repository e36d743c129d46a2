package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "net"
    "strconv"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/segmentio/kafka-go"
)

// AMQPPublisher publishes events to a durable RabbitMQ queue through the
// default exchange.  Each Publish dials its own connection, so a broker
// outage never leaves a broken connection behind.
type AMQPPublisher struct {
    URL   string
    Queue string
}

// Publish sends ev as a persistent JSON message.  Dialing and the AMQP
// handshake both give up at ctx's deadline.
func (p AMQPPublisher) Publish(ctx context.Context, ev StallEvent) error {
    conn, err := amqp.DialConfig(p.URL, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      dialContext(ctx),
    })
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("rabbitmq queue declare: %w", err)
    }
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    return ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.ID,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
}

// dialContext returns an amqp dialer bound to ctx.  The connection keeps
// ctx's deadline until the handshake completes and the client clears it.
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
    return func(network, addr string) (net.Conn, error) {
        var d net.Dialer
        conn, err := d.DialContext(ctx, network, addr)
        if err != nil {
            return nil, err
        }
        if deadline, ok := ctx.Deadline(); ok {
            if err := conn.SetDeadline(deadline); err != nil {
                _ = conn.Close()
                return nil, err
            }
        }
        return conn, nil
    }
}

// Close is a no-op; connections are per publish.
func (p AMQPPublisher) Close() error { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by stall id, so all
// events for one stall land on the same partition in order.
type KafkaPublisher struct {
    w *kafka.Writer
}

// NewKafkaPublisher returns a synchronous writer that waits for all
// in-sync replicas.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
    return &KafkaPublisher{w: &kafka.Writer{
        Addr:         kafka.TCP(brokers...),
        Topic:        topic,
        Balancer:     &kafka.Hash{},
        RequiredAcks: kafka.RequireAll,
        Async:        false,
        BatchTimeout: 10 * time.Millisecond,
    }}
}

// Publish sends ev as a JSON message.
func (p *KafkaPublisher) Publish(ctx context.Context, ev StallEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    return p.w.WriteMessages(ctx, kafka.Message{
        Key:   []byte(strconv.FormatUint(ev.StallID, 10)),
        Value: body,
        Headers: []kafka.Header{
            {Key: "type", Value: []byte(ev.Type)},
        },
    })
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
