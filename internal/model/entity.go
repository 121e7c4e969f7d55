package model

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	// TicketStatusResolved is valid but no client control sets it today.
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAgent    UserRole = "agent"
	UserRoleAdmin    UserRole = "admin"
)

// IsStaff reports whether the role may work tickets (assign, status, delete).
func (r UserRole) IsStaff() bool {
	return r == UserRoleAgent || r == UserRoleAdmin
}

// User is a read-only view of the directory owned by the auth service.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(128)" json:"firstName"`
	LastName  string    `gorm:"type:varchar(128)" json:"lastName"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role      UserRole  `gorm:"type:varchar(16);index;not null" json:"role"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Ticket references users by id only; see TicketView for the populated form.
type Ticket struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID uuid.UUID      `gorm:"type:uuid;index;not null" json:"customer"`
	AssigneeID *uuid.UUID     `gorm:"type:uuid;index" json:"assignee"`
	Issue      string         `gorm:"type:text;not null" json:"issue"`
	Status     TicketStatus   `gorm:"type:varchar(32);index;not null" json:"status"`
	Priority   TicketPriority `gorm:"type:varchar(16);index;not null" json:"priority"`
	Messages   []Message      `gorm:"foreignKey:TicketID" json:"messages"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one entry of a ticket's append-only history. Seq is the 1-based
// position inside the ticket and never changes once assigned.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ticket_messages_ticket_seq,priority:1" json:"-"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_ticket_messages_ticket_seq,priority:2" json:"seq"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null" json:"sender"`
	Text      string    `gorm:"column:message;type:text" json:"message,omitempty"`
	ImageURL  string    `gorm:"type:text" json:"imageUrl,omitempty"`
	FilePath  string    `gorm:"type:varchar(512)" json:"filePath,omitempty"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

func (Message) TableName() string { return "ticket_messages" }

// TicketView is a ticket with customer and assignee resolved to users.
type TicketView struct {
	Ticket
	Customer *User `json:"customer"`
	Assignee *User `json:"assignee"`
}
