package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/metrics"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/psds-microservice/ticket-chat-service/internal/service"
	"golang.org/x/time/rate"
)

type Options struct {
	// SendBuffer is the number of outbound frames queued per connection
	// before it is treated as a slow consumer and dropped.
	SendBuffer int
	// EventsPerSecond and Burst bound inbound events per connection. Zero disables the limit.
	EventsPerSecond float64
	Burst           int
	MaxMessageBytes int64
	// HandlerTimeout bounds the store work of one inbound event.
	HandlerTimeout time.Duration
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Hub routes realtime events between connections grouped in per-ticket rooms.
type Hub struct {
	svc  service.TicketServicer
	opts Options
	log  *slog.Logger

	routes map[string]func(*Conn, json.RawMessage)

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
	conns map[*Conn]struct{}
}

func New(svc service.TicketServicer, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 << 10
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Hub{
		svc:   svc,
		opts:  opts,
		log:   opts.Logger.With(slog.String("component", "hub")),
		rooms: make(map[string]map[*Conn]struct{}),
		conns: make(map[*Conn]struct{}),
	}
	h.routes = map[string]func(*Conn, json.RawMessage){
		EventJoinTicket:        h.handleJoin,
		EventLeaveTicket:       h.handleLeave,
		EventSendMessage:       h.handleSend,
		EventUserTyping:        h.typing(EventUserTyping),
		EventUserStoppedTyping: h.typing(EventUserStoppedTyping),
		EventUserOnline:        h.presence(EventUserOnline),
		EventUserOffline:       h.presence(EventUserOffline),
		EventMessageRead:       h.receipt(EventMessageRead),
		EventMessageSeen:       h.receipt(EventMessageSeen),
	}
	return h
}

// Register adds a connection that is not yet in any room.
func (h *Hub) Register() *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
	if h.opts.EventsPerSecond > 0 {
		burst := h.opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.EventsPerSecond), burst)
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.HubConnections.Inc()
	return c
}

// Unregister removes c from its room and from the hub. Safe to call twice.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	if ok {
		delete(h.conns, c)
		h.leaveLocked(c)
	}
	rooms := len(h.rooms)
	h.mu.Unlock()
	c.close()
	if ok {
		metrics.HubConnections.Dec()
		metrics.HubRooms.Set(float64(rooms))
	}
}

// CloseAll drops every connection; used on shutdown since hijacked
// sockets outlive http.Server.Shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.Unregister(c)
	}
}

// RoomSize reports how many connections are in the ticket's room.
func (h *Hub) RoomSize(ticketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey(ticketID)])
}

// Dispatch handles one inbound frame for c. It never panics; failures are
// reported to c as error events.
func (h *Hub) Dispatch(c *Conn, raw []byte) {
	var f Frame
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("dispatch panic", slog.String("event", f.Event), slog.String("conn", c.id), slog.Any("panic", r))
			h.replyError(c, CodeServerError, "Error processing message")
		}
	}()

	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		metrics.HubEvents.WithLabelValues("invalid").Inc()
		h.replyError(c, CodeMalformedInput, "Invalid frame")
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		h.replyError(c, CodeRateLimited, "Too many events")
		return
	}

	handler, ok := h.routes[f.Event]
	if !ok {
		metrics.HubEvents.WithLabelValues("unknown").Inc()
		h.replyError(c, CodeMalformedInput, fmt.Sprintf("Unknown event %q", f.Event))
		return
	}
	metrics.HubEvents.WithLabelValues(f.Event).Inc()
	handler(c, f.Data)
}

func (h *Hub) handleJoin(c *Conn, data json.RawMessage) {
	ticketID := decodeLabel(data, "ticketId")
	if ticketID == "" {
		h.replyError(c, CodeMalformedInput, "Invalid ticket ID")
		return
	}
	key := roomKey(ticketID)
	h.mu.Lock()
	if c.room != key {
		h.leaveLocked(c)
		members, ok := h.rooms[key]
		if !ok {
			members = make(map[*Conn]struct{})
			h.rooms[key] = members
		}
		members[c] = struct{}{}
		c.room = key
	}
	rooms := len(h.rooms)
	h.mu.Unlock()
	metrics.HubRooms.Set(float64(rooms))

	h.reply(c, EventJoinedTicket, JoinedTicketPayload{TicketID: key, Message: "Joined ticket " + key})
}

func (h *Hub) handleLeave(c *Conn, data json.RawMessage) {
	ticketID := decodeLabel(data, "ticketId")
	if ticketID == "" {
		h.replyError(c, CodeMalformedInput, "Ticket ID is required")
		return
	}
	key := roomKey(ticketID)
	h.mu.Lock()
	if c.room == key {
		h.leaveLocked(c)
	}
	rooms := len(h.rooms)
	h.mu.Unlock()
	metrics.HubRooms.Set(float64(rooms))

	h.reply(c, EventRoomLeft, RoomLeftPayload{TicketID: key})
}

// leaveLocked removes c from its current room. h.mu must be held for writing.
func (h *Hub) leaveLocked(c *Conn) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) handleSend(c *Conn, data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.replyError(c, CodeMalformedInput, "Invalid message format")
		return
	}
	p.TicketID = strings.TrimSpace(p.TicketID)
	p.Sender = strings.TrimSpace(p.Sender)
	if p.TicketID == "" || p.Sender == "" {
		h.replyError(c, CodeMalformedInput, "Invalid message format")
		return
	}
	senderID, err := uuid.Parse(p.Sender)
	if err != nil {
		h.replyError(c, CodeMalformedInput, "Invalid sender")
		return
	}
	content, err := model.NewMessageContent(p.Message, p.ImageURL, p.FilePath)
	if err != nil {
		h.replyError(c, CodeMissingContent, "Either a message or an image must be sent")
		return
	}
	ticketID, err := uuid.Parse(p.TicketID)
	if err != nil {
		h.replyError(c, CodeTicketNotFound, "Ticket not found")
		return
	}

	// Detached from the connection: a send already accepted finishes and
	// is broadcast even if the sender disconnects meanwhile.
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.HandlerTimeout)
	defer cancel()
	t, err := h.svc.AppendMessage(ctx, service.AppendInput{
		TicketID: ticketID,
		SenderID: senderID,
		Content:  content,
		OnCommit: h.BroadcastTicket,
	})
	if err != nil {
		h.replyAppendError(c, ticketID, err)
		return
	}
	h.reply(c, EventMessageSent, MessageSentPayload{Success: true, Ticket: t})
}

func (h *Hub) replyAppendError(c *Conn, ticketID uuid.UUID, err error) {
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		h.replyError(c, CodeTicketNotFound, "Ticket not found")
	case errors.Is(err, errs.ErrTicketClosed):
		h.replyError(c, CodeTicketClosed, "Ticket is closed")
	case errors.Is(err, errs.ErrInvalidArgument):
		h.replyError(c, CodeMissingContent, "Either a message or an image must be sent")
	default:
		h.log.Error("append message failed", slog.String("ticket_id", ticketID.String()), slog.String("conn", c.id), slog.Any("err", err))
		h.replyError(c, CodeServerError, "Error processing message")
	}
}

// BroadcastTicket sends the full ticket snapshot to every member of its room.
func (h *Hub) BroadcastTicket(t *model.Ticket) {
	h.broadcastRoom(t.ID.String(), EventReceiveMessage, t)
}

// ListUpdated tells every connection that the ticket list changed.
// kind is "create" or "delete".
func (h *Hub) ListUpdated(kind string, item any) {
	h.broadcastAll(EventListUpdated, ListUpdatedPayload{Type: kind, Item: item})
}

func (h *Hub) broadcastRoom(ticketID, event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		h.log.Error("encode frame", slog.String("event", event), slog.Any("err", err))
		return
	}
	h.mu.RLock()
	members := h.rooms[roomKey(ticketID)]
	targets := make([]*Conn, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliverAll(targets, b)
}

func (h *Hub) broadcastAll(event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		h.log.Error("encode frame", slog.String("event", event), slog.Any("err", err))
		return
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliverAll(targets, b)
}

func (h *Hub) deliverAll(targets []*Conn, b []byte) {
	for _, c := range targets {
		h.deliver(c, b)
	}
}

// deliver queues b for c, dropping c if its buffer is full.
func (h *Hub) deliver(c *Conn, b []byte) {
	if c.enqueue(b) {
		return
	}
	h.log.Warn("dropping slow consumer", slog.String("conn", c.id))
	metrics.HubDropped.Inc()
	h.Unregister(c)
}

func (h *Hub) reply(c *Conn, event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		h.log.Error("encode frame", slog.String("event", event), slog.Any("err", err))
		return
	}
	h.deliver(c, b)
}

func (h *Hub) replyError(c *Conn, code, msg string) {
	metrics.HubErrors.WithLabelValues(code).Inc()
	h.reply(c, EventError, ErrorPayload{Code: code, Message: msg})
}

// roomKey canonicalizes ticket ids so "ABC..." and "abc..." share a room.
func roomKey(ticketID string) string {
	if id, err := uuid.Parse(ticketID); err == nil {
		return id.String()
	}
	return ticketID
}
