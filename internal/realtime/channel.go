// Package realtime maintains the push-notification connection to the
// backend. One connection exists at a time, keyed by the auth token it
// was opened with.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/dispatch"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"go.uber.org/zap"
)

const eventOrderUpdate = "order_update"

// OrderUpdateListener receives order_update pushes on the delivery
// context, in registration order.
type OrderUpdateListener func(orderID string, status domain.OrderStatus)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type orderUpdatePayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type Channel struct {
	url        string
	dispatcher *dispatch.Serial
	logger     *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	gen       int
	listeners map[int]OrderUpdateListener
	order     []int
	nextID    int
}

func NewChannel(url string, dispatcher *dispatch.Serial, logger *zap.Logger) *Channel {
	return &Channel{
		url:        url,
		dispatcher: dispatcher,
		logger:     logger,
		listeners:  make(map[int]OrderUpdateListener),
	}
}

// Connect tears down any existing connection along with its listeners
// and opens a new one authenticated with token. Listeners are scoped
// to a session, so callers register them again after each Connect.
// Failures are logged and returned; this component does not retry
// them.
func (c *Channel) Connect(token string) error {
	c.clearListeners()
	c.closeConn()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(c.url, header)
	if err != nil {
		c.logger.Error("Failed to connect socket",
			zap.String("url", c.url),
			zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.logger.Info("Socket connected", zap.String("url", c.url))
	go c.readLoop(conn, gen)
	return nil
}

// Disconnect is idempotent. Listeners are scoped to a session, so they
// are cleared together with the connection.
func (c *Channel) Disconnect() {
	c.clearListeners()
	c.closeConn()
}

func (c *Channel) clearListeners() {
	c.mu.Lock()
	c.listeners = make(map[int]OrderUpdateListener)
	c.order = nil
	c.mu.Unlock()
}

func (c *Channel) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		c.logger.Info("Socket disconnected")
	}
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Channel) AddOrderUpdateListener(l OrderUpdateListener) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.order = append(c.order, id)
	return id
}

func (c *Channel) RemoveOrderUpdateListener(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.gen == gen
			c.mu.Unlock()
			if current {
				c.logger.Warn("Socket read failed", zap.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage parses a push frame. Malformed events are dropped and
// logged, never surfaced to listeners.
func (c *Channel) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("Dropping malformed push frame", zap.Error(err))
		return
	}
	if env.Event != eventOrderUpdate {
		return
	}

	var payload orderUpdatePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		c.logger.Warn("Dropping malformed order update", zap.Error(err))
		return
	}
	if payload.OrderID == "" || payload.Status == "" {
		c.logger.Warn("Dropping order update with missing fields",
			zap.String("order_id", payload.OrderID),
			zap.String("status", payload.Status))
		return
	}

	c.notifyOrderUpdate(payload.OrderID, domain.OrderStatus(payload.Status))
}

func (c *Channel) notifyOrderUpdate(orderID string, status domain.OrderStatus) {
	c.mu.Lock()
	snapshot := make([]OrderUpdateListener, 0, len(c.order))
	for _, id := range c.order {
		if l, ok := c.listeners[id]; ok {
			snapshot = append(snapshot, l)
		}
	}
	c.mu.Unlock()

	c.dispatcher.Post(func() {
		for _, l := range snapshot {
			l(orderID, status)
		}
	})
}
