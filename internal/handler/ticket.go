package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/psds-microservice/ticket-chat-service/internal/service"
)

// Lister serves the paginated list screens (see service.QueryEngine).
type Lister interface {
	List(ctx context.Context, q service.ListQuery) (*service.ListResult, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, q service.ListQuery) (*service.ListResult, error)
}

// Notifier pushes changes to realtime clients (see hub.Hub).
type Notifier interface {
	ListUpdated(kind string, item any)
	BroadcastTicket(t *model.Ticket)
}

type TicketHandler struct {
	svc    service.TicketServicer
	query  Lister
	notify Notifier
	log    *slog.Logger
}

func NewTicketHandler(svc service.TicketServicer, query Lister, notify Notifier, log *slog.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, query: query, notify: notify, log: log}
}

type createTicketRequest struct {
	Issue    string `json:"issue" binding:"required"`
	Priority string `json:"priority"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	t, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		Issue:      req.Issue,
		Priority:   model.TicketPriority(req.Priority),
		CustomerID: callerFrom(c).ID,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.notify.ListUpdated("create", t)
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) List(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.query.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListMine lists the calling customer's tickets. A customer filter in the
// query string is ignored.
func (h *TicketHandler) ListMine(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.query.ListForCustomer(c.Request.Context(), callerFrom(c).ID, q)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if !canAccess(callerFrom(c), v.CustomerID) {
		writeError(c, h.log, errs.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, v)
}

type assignRequest struct {
	AssigneeID string `json:"assigneeId" binding:"required"`
}

func (h *TicketHandler) Assign(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "assigneeId is required")
		return
	}
	assignee, err := uuid.Parse(req.AssigneeID)
	if err != nil {
		badRequest(c, "invalid assigneeId")
		return
	}
	t, err := h.svc.Assign(c.Request.Context(), id, assignee)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *TicketHandler) ChangeStatus(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	t, err := h.svc.ChangeStatus(c.Request.Context(), id, model.TicketStatus(req.Status))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Close is allowed for the ticket's customer and for staff.
func (h *TicketHandler) Close(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	if !h.authorize(c, id) {
		return
	}
	t, err := h.svc.Close(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Delete(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	t, err := h.svc.Remove(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.notify.ListUpdated("delete", t)
	c.JSON(http.StatusOK, t)
}

type appendRequest struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
	FilePath string `json:"filePath"`
}

// AppendMessage is the non-realtime path for clients whose socket failed.
// The caller is the sender and the room sees the same broadcast as over
// the socket.
func (h *TicketHandler) AppendMessage(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	content, err := model.NewMessageContent(req.Message, req.ImageURL, req.FilePath)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if !h.authorize(c, id) {
		return
	}
	t, err := h.svc.AppendMessage(c.Request.Context(), service.AppendInput{
		TicketID: id,
		SenderID: callerFrom(c).ID,
		Content:  content,
		OnCommit: h.notify.BroadcastTicket,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// authorize writes the error response and returns false unless the caller
// owns the ticket or is staff.
func (h *TicketHandler) authorize(c *gin.Context, id uuid.UUID) bool {
	u := callerFrom(c)
	if u != nil && u.Role.IsStaff() {
		return true
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return false
	}
	if !canAccess(u, v.CustomerID) {
		writeError(c, h.log, errs.ErrForbidden)
		return false
	}
	return true
}

func ticketID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func parseListQuery(c *gin.Context) (service.ListQuery, error) {
	q := service.ListQuery{
		Status:    model.TicketStatus(c.Query("status")),
		Priority:  model.TicketPriority(c.Query("priority")),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	var err error
	if q.Page, err = intQuery(c, "page"); err != nil {
		return q, err
	}
	if q.Take, err = intQuery(c, "take"); err != nil {
		return q, err
	}
	if q.AssigneeID, err = uuidQuery(c, "assignee"); err != nil {
		return q, err
	}
	if q.CustomerID, err = uuidQuery(c, "customer"); err != nil {
		return q, err
	}
	if q.StartDate, err = timeQuery(c, "startDate", false); err != nil {
		return q, err
	}
	if q.EndDate, err = timeQuery(c, "endDate", true); err != nil {
		return q, err
	}
	return q, nil
}

// intQuery returns 0 for an absent parameter so the engine applies its default.
func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func uuidQuery(c *gin.Context, key string) (*uuid.UUID, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}
	return &id, nil
}

// timeQuery accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func timeQuery(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
