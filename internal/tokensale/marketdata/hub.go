package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is one sequenced frame sent to stream clients.
type Message struct {
	Seq  uint64          `json:"seq"`
	Tick json.RawMessage `json:"tick"`
}

// ringBuffer holds the last N messages for replay to new clients.
type ringBuffer struct {
	buf   []Message
	size  int
	start int
	count int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]Message, size), size: size}
}

// add appends a message, overwriting the oldest when full.
func (r *ringBuffer) add(msg Message) {
	idx := (r.start + r.count) % r.size
	if r.count == r.size {
		r.start = (r.start + 1) % r.size
		r.count--
	}
	r.buf[idx] = msg
	r.count++
}

func (r *ringBuffer) all() []Message {
	out := make([]Message, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%r.size])
	}
	return out
}

type client struct {
	conn *websocket.Conn
	send chan Message
	hub  *Hub
}

// Hub fans recorded ticks out to websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	replay  *ringBuffer
	nextSeq uint64

	register   chan *client
	unregister chan *client
	broadcast  chan json.RawMessage
	done       chan struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a Hub that replays the last replaySize ticks to new clients.
func NewHub(replaySize int, logger *zap.Logger) *Hub {
	if replaySize <= 0 {
		replaySize = 100
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		replay:     newRingBuffer(replaySize),
		nextSeq:    1,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan json.RawMessage, 1024),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.Named("tick-hub"),
	}
}

// Run handles registration and fan-out until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			for _, m := range h.replay.all() {
				select {
				case c.send <- m:
				default:
				}
			}
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case data := <-h.broadcast:
			h.mu.Lock()
			msg := Message{Seq: h.nextSeq, Tick: data}
			h.nextSeq++
			h.replay.add(msg)
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client, drop the frame
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish implements Publisher for single-replica deployments.
func (h *Hub) Publish(ctx context.Context, tick *models.TokenPriceTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Broadcast queues an encoded tick for every client.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- json.RawMessage(data):
	default:
		h.logger.Warn("Tick broadcast queue full, dropping tick")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams ticks to the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan Message, 256), hub: h}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump drains control frames so pongs and close frames are processed.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends messages and heartbeats to the client.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
