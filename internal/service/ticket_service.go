package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/kafka"
	"github.com/psds-microservice/ticket-chat-service/internal/keylock"
	"github.com/psds-microservice/ticket-chat-service/internal/metrics"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/psds-microservice/ticket-chat-service/internal/store"
)

// TicketRepository is the durable ticket store (see store.TicketStore).
type TicketRepository interface {
	Create(ctx context.Context, t *model.Ticket) error
	Get(ctx context.Context, id uuid.UUID) (*model.Ticket, error)
	Update(ctx context.Context, id uuid.UUID, changes map[string]interface{}) (*model.Ticket, error)
	Delete(ctx context.Context, id uuid.UUID) (*model.Ticket, error)
	AppendMessage(ctx context.Context, ticketID uuid.UUID, msg *model.Message, guard store.TicketGuard) (*model.Ticket, error)
	Find(ctx context.Context, f store.Filter, p store.Page) ([]model.Ticket, int64, error)
}

// UserDirectory resolves user ids (see store.UserStore).
type UserDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error)
}

// SearchIndexer mirrors tickets into search-service.
type SearchIndexer interface {
	IndexTicketAsync(t *model.Ticket)
	RemoveTicketAsync(id string)
}

// Deps are the collaborators of TicketService. Producer and Search are optional.
type Deps struct {
	Tickets  TicketRepository
	Users    UserDirectory
	Producer kafka.TicketEventProducer
	Search   SearchIndexer
	Logger   *slog.Logger
}

// TicketServicer is what the HTTP layer and the hub depend on.
type TicketServicer interface {
	Create(ctx context.Context, in CreateInput) (*model.Ticket, error)
	Get(ctx context.Context, id uuid.UUID) (*model.TicketView, error)
	Assign(ctx context.Context, ticketID, assigneeID uuid.UUID) (*model.Ticket, error)
	ChangeStatus(ctx context.Context, ticketID uuid.UUID, status model.TicketStatus) (*model.Ticket, error)
	Close(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error)
	AppendMessage(ctx context.Context, in AppendInput) (*model.Ticket, error)
	Remove(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error)
}

type CreateInput struct {
	Issue      string
	Priority   model.TicketPriority
	CustomerID uuid.UUID
}

type AppendInput struct {
	TicketID uuid.UUID
	SenderID uuid.UUID
	Content  model.MessageContent
	// OnCommit runs with the updated snapshot while the ticket's append lock
	// is still held, so callbacks observe snapshots in append order.
	OnCommit func(t *model.Ticket)
}

type TicketService struct {
	Deps
	locks *keylock.Map
}

func NewTicketService(deps Deps) *TicketService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &TicketService{Deps: deps, locks: keylock.New()}
}

func (s *TicketService) Create(ctx context.Context, in CreateInput) (*model.Ticket, error) {
	issue := strings.TrimSpace(in.Issue)
	if issue == "" {
		return nil, fmt.Errorf("%w: issue is required", errs.ErrInvalidArgument)
	}
	priority := in.Priority
	if priority == "" {
		priority = model.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: invalid priority %q", errs.ErrInvalidArgument, priority)
	}
	if _, err := s.Users.Get(ctx, in.CustomerID); err != nil {
		return nil, s.opErr("create", fmt.Errorf("customer: %w", err))
	}
	t := &model.Ticket{
		ID:         uuid.New(),
		CustomerID: in.CustomerID,
		Issue:      issue,
		Status:     model.TicketStatusOpen,
		Priority:   priority,
		Messages:   []model.Message{},
	}
	if err := s.Tickets.Create(ctx, t); err != nil {
		return nil, s.opErr("create", err)
	}
	metrics.TicketOps.WithLabelValues("create", "ok").Inc()
	s.publish(kafka.EventTicketCreated, t)
	return t, nil
}

// Get returns the ticket with customer and assignee resolved.
func (s *TicketService) Get(ctx context.Context, id uuid.UUID) (*model.TicketView, error) {
	t, err := s.Tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := populate(ctx, s.Users, []model.Ticket{*t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Assign sets the assignee. Assigning the current assignee again is a no-op.
func (s *TicketService) Assign(ctx context.Context, ticketID, assigneeID uuid.UUID) (*model.Ticket, error) {
	t, err := s.Tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, s.opErr("assign", err)
	}
	assignee, err := s.Users.Get(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			return nil, s.opErr("assign", errs.ErrAssigneeNotFound)
		}
		return nil, s.opErr("assign", err)
	}
	if !assignee.Role.IsStaff() {
		return nil, s.opErr("assign", fmt.Errorf("%w: assignee must be an agent", errs.ErrInvalidArgument))
	}
	if t.AssigneeID != nil && *t.AssigneeID == assigneeID {
		return t, nil
	}
	t, err = s.Tickets.Update(ctx, ticketID, map[string]interface{}{"assignee_id": assigneeID})
	if err != nil {
		return nil, s.opErr("assign", err)
	}
	metrics.TicketOps.WithLabelValues("assign", "ok").Inc()
	s.publish(kafka.EventTicketUpdated, t)
	return t, nil
}

// ChangeStatus moves the ticket to any of the four statuses; no ordering is enforced.
func (s *TicketService) ChangeStatus(ctx context.Context, ticketID uuid.UUID, status model.TicketStatus) (*model.Ticket, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", errs.ErrInvalidArgument, status)
	}
	t, err := s.Tickets.Update(ctx, ticketID, map[string]interface{}{"status": status})
	if err != nil {
		return nil, s.opErr("status", err)
	}
	metrics.TicketOps.WithLabelValues("status", "ok").Inc()
	s.publish(kafka.EventTicketUpdated, t)
	return t, nil
}

func (s *TicketService) Close(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error) {
	return s.ChangeStatus(ctx, ticketID, model.TicketStatusClosed)
}

// AppendMessage adds a message to the end of the ticket's history and
// returns the full updated ticket. Appends to one ticket are serialized;
// closed tickets refuse new messages.
func (s *TicketService) AppendMessage(ctx context.Context, in AppendInput) (*model.Ticket, error) {
	if in.TicketID == uuid.Nil || in.SenderID == uuid.Nil {
		return nil, fmt.Errorf("%w: ticket id and sender are required", errs.ErrInvalidArgument)
	}
	if !in.Content.Valid() {
		return nil, fmt.Errorf("%w: either a message or an image must be sent", errs.ErrInvalidArgument)
	}
	msg := &model.Message{SenderID: in.SenderID, Text: in.Content.Text()}
	if img, ok := in.Content.Image(); ok {
		msg.ImageURL = img.URL
		msg.FilePath = img.FilePath
	}

	unlock := s.locks.Lock(in.TicketID.String())
	defer unlock()

	t, err := s.Tickets.AppendMessage(ctx, in.TicketID, msg, rejectClosed)
	if err != nil {
		return nil, s.opErr("append", err)
	}
	metrics.MessagesAppended.WithLabelValues(contentKindLabel(in.Content.Kind())).Inc()
	if in.OnCommit != nil {
		in.OnCommit(t)
	}
	s.publish(kafka.EventMessageAppended, t)
	return t, nil
}

// Remove hard-deletes the ticket and returns what was removed.
func (s *TicketService) Remove(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error) {
	unlock := s.locks.Lock(ticketID.String())
	defer unlock()

	t, err := s.Tickets.Delete(ctx, ticketID)
	if err != nil {
		return nil, s.opErr("remove", err)
	}
	metrics.TicketOps.WithLabelValues("remove", "ok").Inc()
	s.publish(kafka.EventTicketDeleted, t)
	if s.Search != nil {
		s.Search.RemoveTicketAsync(t.ID.String())
	}
	return t, nil
}

func rejectClosed(t *model.Ticket) error {
	if t.Status == model.TicketStatusClosed {
		return errs.ErrTicketClosed
	}
	return nil
}

// publish is fire-and-forget: the event goes out even if the request is cancelled, bounded by a timeout.
func (s *TicketService) publish(event string, t *model.Ticket) {
	if s.Search != nil && event != kafka.EventTicketDeleted {
		s.Search.IndexTicketAsync(t)
	}
	if s.Producer == nil {
		return
	}
	payload := kafka.TicketPayload(t)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Producer.ProduceTicketEvent(ctx, event, payload)
	}()
}

// opErr counts the failure and logs anything that is not a caller mistake.
func (s *TicketService) opErr(op string, err error) error {
	outcome := "error"
	switch {
	case errs.IsNotFound(err):
		outcome = "not_found"
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrTicketClosed):
		outcome = "rejected"
	default:
		s.Logger.Error("ticket operation failed", slog.String("op", op), slog.Any("err", err))
	}
	metrics.TicketOps.WithLabelValues(op, outcome).Inc()
	return err
}

func contentKindLabel(k model.ContentKind) string {
	switch k {
	case model.ContentText:
		return "text"
	case model.ContentImage:
		return "image"
	case model.ContentTextAndImage:
		return "text_image"
	}
	return "unknown"
}
