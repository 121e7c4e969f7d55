package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/blob"
	"github.com/psds-microservice/ticket-chat-service/internal/handler"
	"github.com/psds-microservice/ticket-chat-service/internal/logger"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"github.com/psds-microservice/ticket-chat-service/internal/service"
	"github.com/psds-microservice/ticket-chat-service/internal/store"
	"github.com/psds-microservice/ticket-chat-service/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu         sync.Mutex
	lists      []string
	broadcasts []*model.Ticket
}

func (n *recordingNotifier) ListUpdated(kind string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lists = append(n.lists, kind)
}

func (n *recordingNotifier) BroadcastTicket(t *model.Ticket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, t)
}

type memBlob struct{}

func (memBlob) Upload(_ context.Context, ticketID, filename, contentType string, body io.Reader, _ int64) (*blob.Object, error) {
	if _, err := io.ReadAll(body); err != nil {
		return nil, err
	}
	key := blob.Key(ticketID, filename, contentType)
	return &blob.Object{FilePath: key, SignedURL: "https://cdn.test/" + key}, nil
}

func (memBlob) SignedURL(_ context.Context, filePath string) (string, error) {
	if !blob.ValidKey(filePath) {
		return "", blob.ErrInvalidKey
	}
	return "https://cdn.test/" + filePath + "?fresh", nil
}

type testAPI struct {
	t        *testing.T
	h        http.Handler
	notify   *recordingNotifier
	customer *model.User
	other    *model.User
	agent    *model.User
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := storetest.Open(t)
	tickets := store.NewTicketStore(db)
	users := store.NewUserStore(db)
	log := logger.Discard()
	svc := service.NewTicketService(service.Deps{Tickets: tickets, Users: users, Logger: log})
	notify := &recordingNotifier{}
	h := New(Handlers{
		Tickets: handler.NewTicketHandler(svc, service.NewQueryEngine(tickets, users), notify, log),
		Files:   handler.NewFileHandler(memBlob{}, log),
		Users:   users,
		Ready:   handler.Ready(nil),
		WS:      func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) },
		Logger:  log,
	})
	return &testAPI{
		t:        t,
		h:        h,
		notify:   notify,
		customer: storetest.SeedUser(t, db, model.UserRoleCustomer, "cara"),
		other:    storetest.SeedUser(t, db, model.UserRoleCustomer, "otto"),
		agent:    storetest.SeedUser(t, db, model.UserRoleAgent, "ann"),
	}
}

func (a *testAPI) do(method, path string, as *model.User, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(handler.HeaderCallerID, as.ID.String())
	}
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) createTicket(issue string) model.Ticket {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/tickets", a.customer, map[string]string{"issue": issue, "priority": "high"})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Ticket](a.t, w)
}

func TestHealthAndOps(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/ready", nil, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/metrics", nil, nil).Code)
	w := a.do(http.MethodGet, "/swagger/openapi.json", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ticket-chat-service")
}

func TestReadyReportsPingFailure(t *testing.T) {
	r := gin.New()
	r.GET("/ready", handler.Ready(func(context.Context) error { return assert.AnError }))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCallerRequired(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/tickets", nil, nil).Code)
	ghost := &model.User{ID: uuid.New()}
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/tickets", ghost, nil).Code)
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	tk := a.createTicket("printer jam")
	assert.Equal(t, model.TicketStatusOpen, tk.Status)
	assert.Nil(t, tk.AssigneeID)
	assert.Empty(t, tk.Messages)
	assert.Equal(t, []string{"create"}, a.notify.lists)

	base := "/api/v1/tickets/" + tk.ID.String()

	w := a.do(http.MethodPatch, base+"/assign", a.agent, map[string]string{"assigneeId": a.agent.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assigned := decode[model.Ticket](t, w)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, a.agent.ID, *assigned.AssigneeID)

	w = a.do(http.MethodPatch, base+"/assign", a.agent, map[string]string{"assigneeId": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(http.MethodPatch, base+"/status", a.agent, map[string]string{"status": "in-progress"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TicketStatusInProgress, decode[model.Ticket](t, w).Status)

	w = a.do(http.MethodPatch, base+"/status", a.agent, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, base, a.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[model.TicketView](t, w)
	require.NotNil(t, view.Customer)
	assert.Equal(t, "cara", view.Customer.FirstName)
	require.NotNil(t, view.Assignee)
	assert.Equal(t, "ann", view.Assignee.FirstName)

	w = a.do(http.MethodPost, base+"/messages", a.customer, map[string]string{"message": "any news?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, decode[model.Ticket](t, w).Messages, 1)
	require.Len(t, a.notify.broadcasts, 1)

	w = a.do(http.MethodPost, base+"/messages", a.customer, map[string]string{"message": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPatch, base+"/close", a.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TicketStatusClosed, decode[model.Ticket](t, w).Status)

	w = a.do(http.MethodPost, base+"/messages", a.agent, map[string]string{"message": "late"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodDelete, base, a.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tk.ID, decode[model.Ticket](t, w).ID)
	assert.Equal(t, []string{"create", "delete"}, a.notify.lists)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, base, a.agent, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/tickets/not-a-uuid", a.agent, nil).Code)
}

func TestRoleGuards(t *testing.T) {
	a := newAPI(t)
	tk := a.createTicket("vpn")
	base := "/api/v1/tickets/" + tk.ID.String()

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/v1/tickets", a.agent, map[string]string{"issue": "x"}).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/v1/tickets", a.customer, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/v1/tickets/customer", a.agent, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPatch, base+"/status", a.customer, map[string]string{"status": "closed"}).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodDelete, base, a.customer, nil).Code)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, base, a.other, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPatch, base+"/close", a.other, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, base+"/messages", a.other, map[string]string{"message": "hi"}).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPatch, base+"/close", a.agent, nil).Code)
}

func TestListsOverHTTP(t *testing.T) {
	a := newAPI(t)
	for i := 0; i < 7; i++ {
		a.createTicket("printer jam")
	}
	w := a.do(http.MethodPost, "/api/v1/tickets", a.other, map[string]string{"issue": "otto's ticket"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(http.MethodGet, "/api/v1/tickets?take=50&page=1", a.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[service.ListResult](t, w)
	assert.Len(t, res.Data, 5)
	assert.Equal(t, service.ListMeta{Total: 8, Page: 1, Limit: 5, TotalPages: 2}, res.Meta)

	w = a.do(http.MethodGet, "/api/v1/tickets/customer?customer="+a.other.ID.String()+"&take=5&page=2", a.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[service.ListResult](t, w)
	assert.Equal(t, int64(7), mine.Meta.Total)
	assert.Len(t, mine.Data, 2)
	for _, v := range mine.Data {
		require.NotNil(t, v.Customer)
		assert.Equal(t, a.customer.ID, v.Customer.ID)
	}

	w = a.do(http.MethodGet, "/api/v1/tickets?search=OTTO", a.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[service.ListResult](t, w).Meta.Total)

	w = a.do(http.MethodGet, "/api/v1/tickets?startDate=2000-01-01&endDate=2000-01-02", a.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decode[service.ListResult](t, w).Meta.Total)

	for _, bad := range []string{"?take=x", "?assignee=nope", "?startDate=yesterday", "?status=archived"} {
		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/tickets"+bad, a.agent, nil).Code, bad)
	}
}

func TestFilesOverHTTP(t *testing.T) {
	a := newAPI(t)
	ticketID := uuid.NewString()

	upload := func(contentType string, withTicket bool, payload []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if withTicket {
			require.NoError(t, mw.WriteField("ticketId", ticketID))
		}
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="jam.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, _ = part.Write(payload)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set(handler.HeaderCallerID, a.customer.ID.String())
		w := httptest.NewRecorder()
		a.h.ServeHTTP(w, req)
		return w
	}

	png := []byte("png")
	w := upload("image/png", true, png)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	obj := decode[blob.Object](t, w)
	assert.True(t, blob.ValidKey(obj.FilePath))
	assert.Contains(t, obj.FilePath, "chat-images/"+ticketID+"/")

	assert.Equal(t, http.StatusBadRequest, upload("image/png", false, png).Code)
	assert.Equal(t, http.StatusBadRequest, upload("application/pdf", true, png).Code)

	w = a.do(http.MethodGet, "/api/v1/files/refresh-url?filePath="+obj.FilePath, a.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["signedUrl"], "?fresh")

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/files/refresh-url", a.customer, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/files/refresh-url?filePath=../x", a.customer, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/files/refresh-url?filePath="+obj.FilePath, nil, nil).Code)
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	a := newAPI(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("ticketId", uuid.NewString()))
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="huge.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x89}, handler.MaxUploadBytes+2<<20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(handler.HeaderCallerID, a.customer.ID.String())
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}
