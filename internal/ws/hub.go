package ws

import (
	"context"
	"sync"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
)

// Client is the part of a websocket connection the hub writes to.
type Client interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Listener is a Client the hub also reads from until it disconnects.
type Listener interface {
	Client
	ReadMessage() (messageType int, p []byte, err error)
}

// Hub pushes stock updates and low-stock predictions to connected UI
// clients.
type Hub struct {
	Clients    map[Client]bool
	Register   chan Client
	Unregister chan Client
	Broadcast  chan []byte
	mutex      sync.Mutex
}

type stockMessage struct {
	Type    string        `json:"type"`
	Action  string        `json:"action"`
	Product stockSnapshot `json:"product"`
	Message string        `json:"message,omitempty"`
}

type stockSnapshot struct {
	ProductID     int    `json:"productId"`
	Name          string `json:"productName"`
	StockTotal    int    `json:"stockTotal"`
	StockReserved int    `json:"stockReserved"`
}

type lowStockMessage struct {
	Type     string                         `json:"type"`
	Products []model.ProductStockPrediction `json:"products"`
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[Client]bool),
		Register:   make(chan Client),
		Unregister: make(chan Client),
		Broadcast:  make(chan []byte, 16),
	}
}

// Run owns client registration and fan-out until ctx is cancelled, then
// closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for c := range h.Clients {
				c.Close()
				delete(h.Clients, c)
			}
			h.mutex.Unlock()
			return

		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			h.mutex.Unlock()
			logger.Debug("ws client connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Serve registers c and reads from it until the connection fails, then
// unregisters it. Once ctx is done Run stops receiving, so both hand-offs
// give up on ctx instead of blocking.
func (h *Hub) Serve(ctx context.Context, c Listener) {
	select {
	case h.Register <- c:
	case <-ctx.Done():
		c.Close()
		return
	}
	defer func() {
		select {
		case h.Unregister <- c:
		case <-ctx.Done():
		}
	}()

	for {
		// keep alive
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// ClientCount reports how many UI clients are connected.
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

// NotifyLowStockProducts queues one low-stock batch for every client.
func (h *Hub) NotifyLowStockProducts(ctx context.Context, predictions []model.ProductStockPrediction) error {
	msg, err := json.Marshal(lowStockMessage{Type: "low_stock", Products: predictions})
	if err != nil {
		return err
	}
	select {
	case h.Broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishStock announces a stock change without blocking the caller. The
// update is dropped when the broadcast queue is full.
func (h *Hub) PublishStock(product model.Product, action, message string) {
	payload := stockMessage{
		Type:   "stock_update",
		Action: action,
		Product: stockSnapshot{
			ProductID:     product.ProductID,
			Name:          product.Name,
			StockTotal:    product.StockTotal,
			StockReserved: product.StockReserved,
		},
		Message: message,
	}
	msg, _ := json.Marshal(payload)
	select {
	case h.Broadcast <- msg:
	default:
		logger.Warn("ws broadcast queue full, dropping stock update", "productId", product.ProductID)
	}
}
