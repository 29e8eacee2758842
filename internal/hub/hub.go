package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"justapengu.in/livetiming/internal/timing"
)

type Logger = logrus.FieldLogger

var connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "livetiming",
	Name:      "websocket_clients",
	Help:      "Browsers currently connected to the websocket.",
})

type Config struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBufferSize: 256,
	}
}

// SnapshotFunc returns the full board state, which is sent to each client as it connects.
type SnapshotFunc func() timing.Snapshot

// Hub keeps track of websocket clients and sends every timing.Message to all of them.
// A client that can't keep up has its connection closed rather than holding up the
// others.
type Hub struct {
	config   Config
	upgrader websocket.Upgrader
	snapshot SnapshotFunc
	logger   Logger

	clients map[*client]bool
	mutex   sync.Mutex
}

func New(snapshot SnapshotFunc, config Config, logger Logger) *Hub {
	if config.SendBufferSize < 1 {
		config.SendBufferSize = 1
	}

	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		snapshot: snapshot,
		logger:   logger,
		clients:  make(map[*client]bool),
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)

	if err != nil {
		h.logger.WithError(err).Error("Could not upgrade websocket connection")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.config.SendBufferSize),
		hub:  h,
	}

	if err := h.register(c); err != nil {
		h.logger.WithError(err).Error("Could not send snapshot to new client")
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	h.logger.WithFields(logrus.Fields{
		"client_id": c.id,
		"remote":    r.RemoteAddr,
	}).Info("Websocket client connected")
}

// register queues the snapshot for c and adds it to the hub. Both happen under h.mutex,
// so the snapshot is the first thing c receives. Messages that were already reflected in
// the snapshot may still follow it; clients drop anything with a seq not greater than
// the snapshot's.
func (h *Hub) register(c *client) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	snapshot := h.snapshot()

	data, err := json.Marshal(timing.Message{
		Seq:    snapshot.Seq,
		Type:   timing.TypeSnapshot,
		Action: timing.ActionFull,
		Data:   snapshot,
	})

	if err != nil {
		return errors.Wrap(err, "hub: could not marshal snapshot")
	}

	c.send <- data

	h.clients[c] = true
	connectedClients.Inc()

	return nil
}

func (h *Hub) unregister(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.removeClient(c)
}

// removeClient must be called with h.mutex held.
func (h *Hub) removeClient(c *client) {
	if !h.clients[c] {
		return
	}

	delete(h.clients, c)
	close(c.send)
	connectedClients.Dec()

	h.logger.WithField("client_id", c.id).Info("Websocket client disconnected")
}

// Broadcast marshals message once and queues it for every client.
func (h *Hub) Broadcast(message timing.Message) error {
	data, err := json.Marshal(message)

	if err != nil {
		return errors.Wrapf(err, "hub: could not marshal %s/%s message", message.Type, message.Action)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.WithField("client_id", c.id).Warn("Websocket client send buffer full, dropping client")
			h.removeClient(c)
			_ = c.conn.Close()
		}
	}

	return nil
}

func (h *Hub) NumClients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for c := range h.clients {
		h.removeClient(c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.WithError(err).WithField("client_id", c.id).Debug("Could not write to websocket client")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.WithError(err).WithField("client_id", c.id).Debug("Could not ping websocket client")
				return
			}
		}
	}
}

// readPump discards anything the client sends. It exists to handle pongs and to notice
// when the client goes away.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithError(err).WithField("client_id", c.id).Warn("Websocket client closed unexpectedly")
			}

			return
		}
	}
}
