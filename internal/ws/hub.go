package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"amora-platform/internal/callstore"

	"github.com/gorilla/websocket"
)

// Envelope is the standard message format for all websocket pushes.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event types pushed to clients.
const (
	EventIncomingCall = "call.incoming"
	EventCallUpdate   = "call.update"
	EventCallGone     = "call.gone"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32

	// watchLimit bounds a call watcher's lifetime. It comfortably outlives
	// the longest session (the caller's slot expires after two hours), so it
	// only fires for records that never received a terminal write.
	watchLimit = 3 * time.Hour
)

// CallSubscriber is the slice of the call store the hub watches.
type CallSubscriber interface {
	Get(ctx context.Context, id string) (callstore.Record, error)
	Subscribe(ctx context.Context, id string) (<-chan *callstore.Record, func(), error)
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub holds one websocket connection per user and pushes call events to them.
// A second connection for the same user replaces the first.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*client),
		log:     log,
	}
}

// Register takes ownership of an upgraded connection and blocks until it
// closes. The caller's handler goroutine becomes the read pump.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.close()
	}
	h.clients[userID] = c
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	if h.clients[userID] == c {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
	c.close()
}

// Connected reports whether a user currently holds a connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser pushes one event to a user. Returns false if the user is not
// connected or their send queue is full; pushes are best-effort.
func (h *Hub) SendToUser(userID, eventType string, payload interface{}) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal ws payload", "type", eventType, "err", err)
		return false
	}
	msg, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return false
	}

	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		h.log.Warn("ws send queue full, dropping event", "user_id", userID, "type", eventType)
		return false
	}
}

// NotifyIncomingCall pushes a new ringing call to the callee.
func (h *Hub) NotifyIncomingCall(rec callstore.Record) bool {
	return h.SendToUser(rec.To, EventIncomingCall, rec)
}

// WatchCall forwards every record write to both participants until the record
// goes terminal or is deleted. Runs in its own goroutine.
func (h *Hub) WatchCall(sub CallSubscriber, rec callstore.Record) {
	ch, cancel, err := sub.Subscribe(context.Background(), rec.ID)
	if err != nil {
		h.log.Warn("watch call subscribe failed", "call_id", rec.ID, "err", err)
		return
	}

	go func() {
		defer cancel()
		last := rec.Status

		// A write can land between the record's creation and the subscribe
		// above; re-read so that write is not lost. The same write may then
		// arrive again on the channel, so forwards are deduped on status.
		if cur, err := sub.Get(context.Background(), rec.ID); err != nil {
			if errors.Is(err, callstore.ErrNotFound) {
				h.sendCallGone(rec)
				return
			}
		} else if cur.Status != last {
			last = cur.Status
			h.sendCallUpdate(rec, &cur)
			if cur.Status.Terminal() {
				return
			}
		}

		limit := time.NewTimer(watchLimit)
		defer limit.Stop()
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				if update == nil {
					h.sendCallGone(rec)
					return
				}
				if update.Status == last {
					continue
				}
				last = update.Status
				h.sendCallUpdate(rec, update)
				if update.Status.Terminal() {
					return
				}
			case <-limit.C:
				h.log.Warn("call watch expired without a terminal write", "call_id", rec.ID)
				return
			}
		}
	}()
}

func (h *Hub) sendCallUpdate(rec callstore.Record, update *callstore.Record) {
	h.SendToUser(rec.From, EventCallUpdate, update)
	h.SendToUser(rec.To, EventCallUpdate, update)
}

func (h *Hub) sendCallGone(rec callstore.Record) {
	h.SendToUser(rec.From, EventCallGone, map[string]string{"call_id": rec.ID})
	h.SendToUser(rec.To, EventCallGone, map[string]string{"call_id": rec.ID})
}

// readPump discards inbound frames; clients only listen. It exists to process
// pongs and detect the close.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
