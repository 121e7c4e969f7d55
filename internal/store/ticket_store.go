package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxAppendAttempts bounds the retry loop when another writer took the same seq.
const maxAppendAttempts = 3

// Filter is the conjunctive set of ticket conditions used by Find.
type Filter struct {
	Status     model.TicketStatus
	Priority   model.TicketPriority
	AssigneeID *uuid.UUID
	CustomerID *uuid.UUID
	From       *time.Time
	To         *time.Time
	Search     string
}

// Page selects the window of a Find. SortBy must be one of SortColumns.
type Page struct {
	SortBy string
	Desc   bool
	Limit  int
	Offset int
}

// SortColumns maps API sort keys to columns.
var SortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"status":    "status",
	"priority":  "priority",
	"issue":     "issue",
}

// TicketGuard inspects the locked ticket row before an append is written.
type TicketGuard func(t *model.Ticket) error

// TicketStore owns tickets and their message history.
type TicketStore struct {
	db  *gorm.DB
	now func() time.Time
	// nextSeq picks the seq for a new message given the last one read.
	nextSeq func(last int64) int64
}

func NewTicketStore(db *gorm.DB) *TicketStore {
	return &TicketStore{
		db:      db,
		now:     func() time.Time { return time.Now().UTC() },
		nextSeq: func(last int64) int64 { return last + 1 },
	}
}

func (s *TicketStore) Create(ctx context.Context, t *model.Ticket) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Messages == nil {
		t.Messages = []model.Message{}
	}
	if err := s.db.WithContext(ctx).Omit("Messages").Create(t).Error; err != nil {
		return upstream("create ticket", err)
	}
	return nil
}

func (s *TicketStore) Get(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	return getTicket(s.db.WithContext(ctx), id)
}

func getTicket(db *gorm.DB, id uuid.UUID) (*model.Ticket, error) {
	var t model.Ticket
	err := db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	}).First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, upstream("get ticket", err)
	}
	if t.Messages == nil {
		t.Messages = []model.Message{}
	}
	return &t, nil
}

// Update applies column changes and returns the refreshed ticket.
func (s *TicketStore) Update(ctx context.Context, id uuid.UUID, changes map[string]interface{}) (*model.Ticket, error) {
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return nil, upstream("update ticket", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrTicketNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the ticket and its messages, returning what was deleted.
func (s *TicketStore) Delete(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	var deleted *model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := getTicket(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("ticket_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return upstream("delete messages", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Ticket{})
		if res.Error != nil {
			return upstream("delete ticket", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.ErrTicketNotFound
		}
		deleted = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// AppendMessage inserts msg at the end of the ticket's history inside one
// transaction and returns the ticket snapshot as of that commit. The ticket
// row is locked on dialects that support it; the (ticket_id, seq) unique
// index catches any writer that still raced us, and the append is retried.
func (s *TicketStore) AppendMessage(ctx context.Context, ticketID uuid.UUID, msg *model.Message, guard TicketGuard) (*model.Ticket, error) {
	var (
		snapshot *model.Ticket
		err      error
	)
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		snapshot, err = s.appendOnce(ctx, ticketID, msg, guard)
		if err == nil || !isDuplicate(err) {
			return snapshot, err
		}
	}
	return nil, err
}

func (s *TicketStore) appendOnce(ctx context.Context, ticketID uuid.UUID, msg *model.Message, guard TicketGuard) (*model.Ticket, error) {
	var snapshot *model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t model.Ticket
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&t, "id = ?", ticketID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrTicketNotFound
			}
			return upstream("lock ticket", err)
		}
		if guard != nil {
			if err := guard(&t); err != nil {
				return err
			}
		}

		var last model.Message
		res := tx.Where("ticket_id = ?", ticketID).Order("seq DESC").Limit(1).Find(&last)
		if res.Error != nil {
			return upstream("last message", res.Error)
		}
		ts := s.now().Truncate(time.Microsecond)
		if res.RowsAffected > 0 && ts.Before(last.Timestamp) {
			ts = last.Timestamp
		}

		msg.ID = uuid.New()
		msg.TicketID = ticketID
		msg.Seq = s.nextSeq(last.Seq)
		msg.Timestamp = ts
		if err := tx.Create(msg).Error; err != nil {
			if isDuplicate(err) {
				return err
			}
			return upstream("insert message", err)
		}
		if err := tx.Model(&model.Ticket{}).Where("id = ?", ticketID).Update("updated_at", ts).Error; err != nil {
			return upstream("touch ticket", err)
		}

		var err error
		snapshot, err = getTicket(tx, ticketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Find returns one page of tickets matching f and the total match count.
func (s *TicketStore) Find(ctx context.Context, f Filter, p Page) ([]model.Ticket, int64, error) {
	base := func() *gorm.DB {
		return applyFilter(s.db.WithContext(ctx).Model(&model.Ticket{}), f)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, upstream("count tickets", err)
	}

	col, ok := SortColumns[p.SortBy]
	if !ok {
		col = SortColumns["createdAt"]
	}
	q := base().
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: p.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: p.Desc}).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") })
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}

	items := []model.Ticket{}
	if err := q.Find(&items).Error; err != nil {
		return nil, 0, upstream("list tickets", err)
	}
	for i := range items {
		if items[i].Messages == nil {
			items[i].Messages = []model.Message{}
		}
	}
	return items, total, nil
}

// All returns every ticket without messages, oldest first.
func (s *TicketStore) All(ctx context.Context) ([]model.Ticket, error) {
	var items []model.Ticket
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, upstream("all tickets", err)
	}
	return items, nil
}

func applyFilter(db *gorm.DB, f Filter) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		db = db.Where("priority = ?", f.Priority)
	}
	if f.AssigneeID != nil {
		db = db.Where("assignee_id = ?", *f.AssigneeID)
	}
	if f.CustomerID != nil {
		db = db.Where("customer_id = ?", *f.CustomerID)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		db = db.Where("created_at <= ?", f.To.UTC())
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		db = db.Where(`LOWER(issue) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(s))+"%")
	}
	return db
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errs.ErrUpstream, err)
}
