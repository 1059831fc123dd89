package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"github.com/nexamediaserver/server/internal/notify"
)

// ──────────────────── WebSocket Hub ────────────────────

// WSHub fans job-notification and job-progress events out to every
// connected client and replays the current state of active jobs to new
// connections (§4.6 "job notification fabric" subscription transport).
type WSHub struct {
	mu          sync.RWMutex
	clients     map[*WSClient]bool
	activeTasks map[string]json.RawMessage // key → last job:update payload
	tasksMu     sync.RWMutex
}

type WSClient struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func NewWSHub() *WSHub {
	return &WSHub{
		clients:     make(map[*WSClient]bool),
		activeTasks: make(map[string]json.RawMessage),
	}
}

func (h *WSHub) Broadcast(event string, data interface{}) {
	msg, err := json.Marshal(WSMessage{Event: event, Data: data})
	if err != nil {
		return
	}

	if event == "job:update" {
		h.trackTask(data, msg)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

// Publish satisfies notify.Publisher: every flushed job notification entry
// is broadcast to every connected client as a "job:update" event.
func (h *WSHub) Publish(e notify.Entry) {
	h.Broadcast("job:update", e)
}

var _ notify.Publisher = (*WSHub)(nil)

// trackTask keeps a snapshot of each running job so new clients get current
// state without waiting for the next flush.
func (h *WSHub) trackTask(data interface{}, raw []byte) {
	e, ok := data.(notify.Entry)
	if !ok {
		return
	}
	key := fmt.Sprintf("%d:%s", e.Key.LibrarySectionID, e.Key.JobType)

	h.tasksMu.Lock()
	defer h.tasksMu.Unlock()
	if e.Status == notify.StatusCompleted || e.Status == notify.StatusFailed {
		delete(h.activeTasks, key)
	} else {
		h.activeTasks[key] = json.RawMessage(raw)
	}
}

// sendActiveTasks replays current job state to a newly connected client.
func (h *WSHub) sendActiveTasks(client *WSClient) {
	h.tasksMu.RLock()
	defer h.tasksMu.RUnlock()
	for _, msg := range h.activeTasks {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *WSHub) addClient(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *WSHub) removeClient(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────── WebSocket Handler ────────────────────

// handleWebSocket upgrades the connection once the caller presents a valid
// session token (bearer header, "session" cookie, or "token" query param —
// browsers can't set headers on the WebSocket handshake).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		if c, err := r.Cookie("session"); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var userID string
	var isAdmin bool
	var exp int64
	err := s.db.QueryRow(
		"SELECT user_id, is_admin, expires_at FROM sessions WHERE token=$1", token,
	).Scan(&userID, &isAdmin, &exp)
	if err != nil {
		http.Error(w, "invalid session", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("websocket accept: %v", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 64),
	}

	s.wsHub.addClient(client)
	s.wsHub.sendActiveTasks(client)
	log.Printf("websocket client connected: %s", userID)

	ctx := r.Context()

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for msg := range client.send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	s.wsHub.removeClient(client)
	log.Printf("websocket client disconnected: %s", userID)
}
