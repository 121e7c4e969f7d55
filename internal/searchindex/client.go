package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/psds-microservice/ticket-chat-service/internal/model"
)

// Client pushes tickets to search-service for indexing (best-effort, never blocks the API).
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient returns a client. With an empty baseURL every call is a no-op.
func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		log:     log,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// IndexTicketPayload is the body of POST /search/index/ticket.
type IndexTicketPayload struct {
	TicketID   string `json:"ticket_id"`
	CustomerID string `json:"customer_id"`
	AssigneeID string `json:"assignee_id"`
	Issue      string `json:"issue"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
}

// IndexTicket sends the ticket to search-service.
func (c *Client) IndexTicket(ctx context.Context, t *model.Ticket) error {
	if c.baseURL == "" {
		return nil
	}
	payload := IndexTicketPayload{
		TicketID:   t.ID.String(),
		CustomerID: t.CustomerID.String(),
		Issue:      t.Issue,
		Status:     string(t.Status),
		Priority:   string(t.Priority),
	}
	if t.AssigneeID != nil {
		payload.AssigneeID = t.AssigneeID.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("searchindex: marshal: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/search/index/ticket", body)
}

// RemoveTicket drops a deleted ticket from the index.
func (c *Client) RemoveTicket(ctx context.Context, id string) error {
	if c.baseURL == "" {
		return nil
	}
	return c.do(ctx, http.MethodDelete, c.baseURL+"/search/index/ticket/"+id, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("searchindex: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searchindex: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("searchindex: %s %s: status %d", method, url, resp.StatusCode)
	}
	return nil
}

// IndexTicketAsync runs IndexTicket in its own goroutine.
func (c *Client) IndexTicketAsync(t *model.Ticket) {
	if c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.IndexTicket(ctx, t); err != nil {
			c.log.Warn("searchindex: index ticket", slog.String("ticket_id", t.ID.String()), slog.Any("err", err))
		}
	}()
}

// RemoveTicketAsync runs RemoveTicket in its own goroutine.
func (c *Client) RemoveTicketAsync(id string) {
	if c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.RemoveTicket(ctx, id); err != nil {
			c.log.Warn("searchindex: remove ticket", slog.String("ticket_id", id), slog.Any("err", err))
		}
	}()
}
