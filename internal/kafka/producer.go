package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// Ticket event names written to the topic.
const (
	EventTicketCreated   = "ticket.created"
	EventTicketUpdated   = "ticket.updated"
	EventTicketDeleted   = "ticket.deleted"
	EventMessageAppended = "ticket.message_appended"
)

// TicketEventProducer sends ticket events to Kafka; tests swap in a fake.
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{})
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes ticket events to a topic (best-effort, never blocks the API on failure).
type Producer struct {
	writer messageWriter
	topic  string
	log    *slog.Logger
}

// NewProducer returns a producer. With no brokers or topic every method is a no-op.
func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Enabled reports whether events are actually sent anywhere.
func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent writes {"event": event, ...payload}. Messages are keyed
// by ticket_id so one ticket's events stay ordered within a partition.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("kafka: marshal ticket event", slog.Any("err", err))
		return
	}
	var key []byte
	if id, ok := payload["ticket_id"].(string); ok {
		key = []byte(id)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body}); err != nil {
		p.log.Error("kafka: write ticket event", slog.String("event", event), slog.Any("err", err))
	}
}

// Close closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// TicketPayload flattens the fields consumers index on.
func TicketPayload(t *model.Ticket) map[string]interface{} {
	if t == nil {
		return nil
	}
	payload := map[string]interface{}{
		"ticket_id":     t.ID.String(),
		"customer_id":   t.CustomerID.String(),
		"assignee_id":   "",
		"issue":         t.Issue,
		"status":        string(t.Status),
		"priority":      string(t.Priority),
		"message_count": len(t.Messages),
	}
	if t.AssigneeID != nil {
		payload["assignee_id"] = t.AssigneeID.String()
	}
	return payload
}
