package hub

import (
	"encoding/json"
	"strings"
)

// Inbound event names.
const (
	EventJoinTicket        = "joinTicket"
	EventLeaveTicket       = "leaveTicket"
	EventSendMessage       = "sendMessage"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserOnline        = "userOnline"
	EventUserOffline       = "userOffline"
	EventMessageRead       = "messageRead"
	EventMessageSeen       = "messageSeen"
)

// Outbound-only event names.
const (
	EventJoinedTicket   = "joinedTicket"
	EventRoomLeft       = "roomLeft"
	EventReceiveMessage = "receiveMessage"
	EventMessageSent    = "messageSent"
	EventError          = "error"
	EventListUpdated    = "list-updated"
)

// Error codes carried by EventError.
const (
	CodeMalformedInput = "malformed-input"
	CodeMissingContent = "missing-content"
	CodeTicketNotFound = "ticket-not-found"
	CodeTicketClosed   = "ticket-closed"
	CodeServerError    = "server-error"
	CodeRateLimited    = "rate-limited"
)

// Frame is the envelope of every message on the socket in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SendMessagePayload struct {
	TicketID string `json:"ticketId"`
	Sender   string `json:"sender"`
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
	FilePath string `json:"filePath"`
}

type MessageSentPayload struct {
	Success bool `json:"success"`
	Ticket  any  `json:"ticket"`
}

type JoinedTicketPayload struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
}

type RoomLeftPayload struct {
	TicketID string `json:"ticketId"`
}

type TypingPayload struct {
	TicketID string `json:"ticketId"`
	User     string `json:"user"`
}

type ReceiptPayload struct {
	TicketID  string `json:"ticketId"`
	MessageID string `json:"messageId"`
	User      string `json:"user"`
}

type ListUpdatedPayload struct {
	Type string `json:"type"`
	Item any    `json:"item"`
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: data})
}

// decodeLabel accepts either a bare JSON string or an object with a field
// named key, e.g. "T1" or {"ticketId":"T1"}.
func decodeLabel(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if err := json.Unmarshal(obj[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
