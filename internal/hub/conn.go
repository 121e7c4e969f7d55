package hub

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one realtime client. Outbound frames go through a bounded queue
// drained by a single writer.
type Conn struct {
	id      string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	// room is guarded by Hub.mu.
	room string
}

func (c *Conn) ID() string { return c.id }

// Outbound is the queue of encoded frames waiting to be written.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Done is closed once the hub has dropped the connection.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (h *Hub) upgrader() *websocket.Upgrader {
	allowed := h.opts.AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ServeWS upgrades the request and pumps frames until either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	c := h.Register()
	h.log.Debug("client connected", slog.String("conn", c.id), slog.String("remote", r.RemoteAddr))
	go h.writePump(c, ws)
	h.readPump(c, ws)
}

// readPump handles inbound frames one at a time, so events from a single
// connection are processed in the order they were sent.
func (h *Hub) readPump(c *Conn, ws *websocket.Conn) {
	defer func() {
		h.Unregister(c)
		_ = ws.Close()
		h.log.Debug("client disconnected", slog.String("conn", c.id))
	}()
	ws.SetReadLimit(h.opts.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", slog.String("conn", c.id), slog.Any("err", err))
			}
			return
		}
		h.Dispatch(c, raw)
	}
}

func (h *Hub) writePump(c *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case b := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				h.Unregister(c)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Unregister(c)
				return
			}
		case <-c.done:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
