package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/logging"
	"github.com/conneroisu/buttonstudio/internal/monitoring"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. A ping without a pong closes
	// the client.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued per client before it counts as stalled.
	sendBuffer = 256
)

// Client represents a WebSocket client
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans messages out to every connected client.
type Hub struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *Client
	done         chan struct{}
	logger       logging.Logger
	metrics      *monitoring.Metrics
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub(logger logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("websocket"),
		metrics:    metrics,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.clientsMutex.Lock()
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.send)
		}
		h.clientsMutex.Unlock()
		h.setGauge()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client.id] = client
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.setGauge()
			h.logger.Debug(ctx, "Client connected", "client_id", client.id, "total", count)

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug(ctx, "Client disconnected", "client_id", client.id, "total", h.Count())

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var stalled []*Client
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					stalled = append(stalled, client)
				}
			}
			h.clientsMutex.RUnlock()

			for _, client := range stalled {
				h.logger.Warn(ctx, nil, "Dropping stalled client", "client_id", client.id)
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.clientsMutex.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.clientsMutex.Unlock()
	h.setGauge()
}

func (h *Hub) setGauge() {
	if h.metrics != nil {
		h.metrics.WebSocketClients.Set(float64(h.Count()))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It returns without sending once
// the hub has stopped.
func (h *Hub) Broadcast(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to marshal message", "type", msg.Type)
		data = []byte(`{"type":"reload"}`)
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.checkOrigin(r); err != nil {
		s.logger.Warn(r.Context(), err, "Rejected websocket origin", "origin", r.Header.Get("Origin"))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originHosts(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  s.hub,
	}

	if !s.hub.join(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.writePump(ctx)
	client.readPump(ctx)
}

// checkOrigin validates the request origin against the server address and
// the configured allowed origins.
func (s *Server) checkOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return errors.ErrInvalidOrigin("missing")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return errors.ErrInvalidOrigin(origin)
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return errors.ErrInvalidOrigin(origin)
	}

	// Same-origin requests are always fine.
	if originURL.Host == r.Host {
		return nil
	}

	for _, pattern := range s.originHosts() {
		if matched, err := path.Match(pattern, originURL.Host); err == nil && matched {
			return nil
		}
	}

	return errors.ErrInvalidOrigin(origin)
}

// originHosts converts the allowed origins into host patterns such as
// "localhost:*", the form websocket.Accept checks the Origin header with.
func (s *Server) originHosts() []string {
	origins := s.allowedOrigins()
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if _, host, ok := strings.Cut(origin, "://"); ok && host != "" {
			hosts = append(hosts, strings.TrimSuffix(host, "/"))
		}
	}
	return hosts
}

// readPump drains the connection so pings and close frames are handled.
// Clients never send commands; anything they send is discarded.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.hub.logger.Debug(ctx, "WebSocket read ended", "client_id", c.id, "error", err.Error())
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug(ctx, "WebSocket write failed", "client_id", c.id, "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
