package hub

import (
	"encoding/json"
	"strings"
)

// Presence and receipts are relayed as-is and never stored. Clients ignore
// their own echoes and expire typing state themselves.

type userPayload struct {
	User string `json:"user"`
}

type usernamePayload struct {
	Username string `json:"username"`
}

type receiptBroadcast struct {
	MessageID string `json:"messageId"`
	User      string `json:"user"`
}

func (h *Hub) typing(event string) func(*Conn, json.RawMessage) {
	return func(c *Conn, data json.RawMessage) {
		var p TypingPayload
		if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.TicketID) == "" {
			h.replyError(c, CodeMalformedInput, "Ticket ID is required")
			return
		}
		h.broadcastRoom(strings.TrimSpace(p.TicketID), event, userPayload{User: p.User})
	}
}

func (h *Hub) presence(event string) func(*Conn, json.RawMessage) {
	return func(c *Conn, data json.RawMessage) {
		h.broadcastAll(event, usernamePayload{Username: decodeLabel(data, "username")})
	}
}

func (h *Hub) receipt(event string) func(*Conn, json.RawMessage) {
	return func(c *Conn, data json.RawMessage) {
		var p ReceiptPayload
		if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.TicketID) == "" {
			h.replyError(c, CodeMalformedInput, "Ticket ID is required")
			return
		}
		h.broadcastRoom(strings.TrimSpace(p.TicketID), event, receiptBroadcast{MessageID: p.MessageID, User: p.User})
	}
}
