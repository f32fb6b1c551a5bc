package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/dropzone/pkg/upload"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is how many messages a slow client may fall behind
	// before it is dropped.
	sendBuffer = 64
)

// Options configures a Hub.
type Options struct {
	// PreviewBase is the URL prefix blob previews are rewritten to.
	// Default: "/preview".
	PreviewBase string

	// Blobs serves GET {PreviewBase}/{id}. Nil disables the route.
	Blobs *upload.BlobStore

	// CheckOrigin is passed to the websocket upgrader. Nil allows all
	// origins.
	CheckOrigin func(r *http.Request) bool

	Logger *slog.Logger
}

// Hub pushes registry snapshots and events to websocket clients. New
// clients receive the latest snapshot on connect.
//
// Hub implements toast.Emitter, so it can carry uploader notifications:
//
//	hub := live.NewHub(live.Options{Blobs: blobs})
//	u, _ := upload.New(cfg, upload.WithNotifier(toast.Notifier{Emitter: hub}))
//	defer hub.Attach(u)()
type Hub struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub.
func NewHub(opts Options) *Hub {
	if opts.PreviewBase == "" {
		opts.PreviewBase = "/preview"
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		opts:   opts,
		logger: logger.With("component", "live"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     check,
		},
		clients: make(map[*client]struct{}),
	}
}

// Attach broadcasts every snapshot of u's registry. Call the returned
// function to stop.
func (h *Hub) Attach(u *upload.Uploader) (cancel func()) {
	return u.Subscribe(h.Publish)
}

// Publish broadcasts a snapshot and remembers it for new clients.
func (h *Hub) Publish(s upload.Snapshot) {
	data, err := json.Marshal(SnapshotMessage(s, h.opts.PreviewBase))
	if err != nil {
		h.logger.Error("marshal snapshot", "error", err)
		return
	}
	h.mu.Lock()
	h.last = data
	h.mu.Unlock()
	h.broadcast(data)
}

// Emit broadcasts a named event.
func (h *Hub) Emit(name string, data any) {
	msg, err := json.Marshal(Message{Type: TypeEvent, Name: name, Data: data})
	if err != nil {
		h.logger.Error("marshal event", "name", name, "error", err)
		return
	}
	h.broadcast(msg)
}

// broadcast never blocks. A client whose buffer is full is dropped.
func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			c.close()
		}
	}
}

// Routes mounts the websocket and preview handlers on r.
func (h *Hub) Routes(r chi.Router) {
	r.Get("/ws", h.HandleWebSocket)
	if h.opts.Blobs != nil {
		r.Get(h.opts.PreviewBase+"/{id}", h.HandlePreview)
	}
}

// HandleWebSocket upgrades the connection and streams messages until the
// client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client messages; it exists to process pongs and
// notice disconnects.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// HandlePreview serves a blob preview by id.
func (h *Hub) HandlePreview(w http.ResponseWriter, r *http.Request) {
	b, ok := h.opts.Blobs.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", b.Type)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(b.Data)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
