package searchindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/logger"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexTicket(t *testing.T) {
	var got IndexTicketPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search/index/ticket", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tk := &model.Ticket{ID: uuid.New(), CustomerID: uuid.New(), Issue: "printer jam", Status: model.TicketStatusOpen, Priority: model.TicketPriorityHigh}
	c := NewClient(srv.URL, logger.Discard())
	require.NoError(t, c.IndexTicket(context.Background(), tk))
	assert.Equal(t, tk.ID.String(), got.TicketID)
	assert.Equal(t, "printer jam", got.Issue)
	assert.Empty(t, got.AssigneeID)
}

func TestRemoveTicketReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, logger.Discard()).RemoveTicket(context.Background(), "abc")
	assert.Error(t, err)
}

func TestEmptyBaseURLIsNoop(t *testing.T) {
	c := NewClient("", logger.Discard())
	assert.NoError(t, c.IndexTicket(context.Background(), &model.Ticket{}))
	assert.NoError(t, c.RemoveTicket(context.Background(), "x"))
	c.IndexTicketAsync(&model.Ticket{})
	c.RemoveTicketAsync("x")
}
