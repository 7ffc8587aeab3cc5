package notify

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) readMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *safeConn) close() { c.ws.Close() }

// Hub manages WebSocket subscriptions per tow request. Subscribers get
// negotiation updates as they happen.
type Hub struct {
	mu    sync.RWMutex
	conns map[string][]*safeConn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string][]*safeConn)}
}

// Routes returns a chi.Router for the /ws mount point.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/requests/{id}", h.HandleWS)
	return r
}

// HandleWS upgrades the connection and subscribes it to a tow request.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	conn := &safeConn{ws: ws}

	h.mu.Lock()
	h.conns[requestID] = append(h.conns[requestID], conn)
	h.mu.Unlock()

	log.Printf("[ws] client subscribed to request %s", requestID)

	// Block until the client disconnects
	for {
		if _, _, err := conn.readMessage(); err != nil {
			break
		}
	}

	h.removeConn(requestID, conn)
	conn.close()
	log.Printf("[ws] client unsubscribed from request %s", requestID)
}

// Broadcast pushes an update to every subscriber of a tow request.
// Safe for concurrent calls; each safeConn serialises its own writes.
func (h *Hub) Broadcast(requestID string, payload any) {
	h.mu.RLock()
	conns := h.conns[requestID]
	h.mu.RUnlock()

	msg := map[string]any{
		"request_id": requestID,
		"data":       payload,
		"ts":         time.Now().Unix(),
	}

	for _, c := range conns {
		if err := c.writeJSON(msg); err != nil {
			log.Printf("[ws] write error: %v", err)
		}
	}
}

func (h *Hub) removeConn(requestID string, conn *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.conns[requestID]
	for i, c := range conns {
		if c == conn {
			h.conns[requestID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[requestID]) == 0 {
		delete(h.conns, requestID)
	}
}
