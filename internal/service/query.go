package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/psds-microservice/ticket-chat-service/internal/store"
)

const (
	// MaxPageSize caps every listing regardless of the requested take.
	MaxPageSize = 5
	DefaultTake = 10
	DefaultSort = "createdAt"
)

// ListQuery holds the optional list filters and paging. Zero values mean "not set".
type ListQuery struct {
	Status     model.TicketStatus
	Priority   model.TicketPriority
	AssigneeID *uuid.UUID
	CustomerID *uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
	Search     string

	Page      int
	Take      int
	SortBy    string
	SortOrder string
}

type ListMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type ListResult struct {
	Data []model.TicketView `json:"data"`
	Meta ListMeta           `json:"meta"`
}

// TicketFinder is the read side of the ticket store used for listings.
type TicketFinder interface {
	Find(ctx context.Context, f store.Filter, p store.Page) ([]model.Ticket, int64, error)
}

// QueryEngine serves list screens straight from the store.
type QueryEngine struct {
	tickets TicketFinder
	users   UserDirectory
}

func NewQueryEngine(tickets TicketFinder, users UserDirectory) *QueryEngine {
	return &QueryEngine{tickets: tickets, users: users}
}

// EffectiveLimit returns the page size actually applied for a requested take.
func EffectiveLimit(take int) int {
	if take < 1 {
		take = DefaultTake
	}
	return min(take, MaxPageSize)
}

func (e *QueryEngine) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", errs.ErrInvalidArgument, q.Status)
	}
	if q.Priority != "" && !q.Priority.Valid() {
		return nil, fmt.Errorf("%w: invalid priority %q", errs.ErrInvalidArgument, q.Priority)
	}
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return nil, fmt.Errorf("%w: endDate is before startDate", errs.ErrInvalidArgument)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := EffectiveLimit(q.Take)
	sortBy := q.SortBy
	if _, ok := store.SortColumns[sortBy]; !ok {
		sortBy = DefaultSort
	}

	filter := store.Filter{
		Status:     q.Status,
		Priority:   q.Priority,
		AssigneeID: q.AssigneeID,
		CustomerID: q.CustomerID,
		From:       q.StartDate,
		To:         q.EndDate,
		Search:     q.Search,
	}
	items, total, err := e.tickets.Find(ctx, filter, store.Page{
		SortBy: sortBy,
		Desc:   !strings.EqualFold(q.SortOrder, "asc"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	views, err := populate(ctx, e.users, items)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Data: views,
		Meta: ListMeta{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

// ListForCustomer lists only the caller's tickets; any customer filter in q is ignored.
func (e *QueryEngine) ListForCustomer(ctx context.Context, customerID uuid.UUID, q ListQuery) (*ListResult, error) {
	if _, err := e.users.Get(ctx, customerID); err != nil {
		return nil, err
	}
	q.CustomerID = &customerID
	return e.List(ctx, q)
}

// populate resolves customer and assignee for every ticket with one lookup.
func populate(ctx context.Context, users UserDirectory, tickets []model.Ticket) ([]model.TicketView, error) {
	seen := make(map[uuid.UUID]struct{}, len(tickets)*2)
	ids := make([]uuid.UUID, 0, len(tickets)*2)
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for i := range tickets {
		add(tickets[i].CustomerID)
		if tickets[i].AssigneeID != nil {
			add(*tickets[i].AssigneeID)
		}
	}
	byID, err := users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]model.TicketView, len(tickets))
	for i := range tickets {
		views[i] = model.TicketView{Ticket: tickets[i], Customer: byID[tickets[i].CustomerID]}
		if tickets[i].AssigneeID != nil {
			views[i].Assignee = byID[*tickets[i].AssigneeID]
		}
	}
	return views, nil
}
