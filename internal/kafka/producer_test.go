package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/logger"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerDisabledIsNoop(t *testing.T) {
	p := NewProducer(nil, "topic", logger.Discard())
	assert.False(t, p.Enabled())
	p.ProduceTicketEvent(context.Background(), EventTicketCreated, map[string]interface{}{"ticket_id": "x"})
	assert.NoError(t, p.Close())
}

func TestProduceTicketEventKeysByTicket(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "ticket-events", log: logger.Discard()}

	assignee := uuid.New()
	tk := &model.Ticket{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		AssigneeID: &assignee,
		Issue:      "printer jam",
		Status:     model.TicketStatusOpen,
		Priority:   model.TicketPriorityHigh,
		Messages:   []model.Message{{Text: "hi"}},
	}
	p.ProduceTicketEvent(context.Background(), EventMessageAppended, TicketPayload(tk))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, tk.ID.String(), string(w.msgs[0].Key))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, EventMessageAppended, body["event"])
	assert.Equal(t, assignee.String(), body["assignee_id"])
	assert.EqualValues(t, 1, body["message_count"])
}

func TestProduceTicketEventSwallowsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{writer: w, log: logger.Discard()}
	p.ProduceTicketEvent(context.Background(), EventTicketDeleted, map[string]interface{}{"ticket_id": "x"})
	assert.Len(t, w.msgs, 1)
}

func TestTicketPayloadNil(t *testing.T) {
	assert.Nil(t, TicketPayload(nil))
}
