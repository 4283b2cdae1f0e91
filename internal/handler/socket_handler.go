package handler

import (
	"context"
	"fmt"
	"strconv"

	"go-inventory-predict/internal/partition"
	"go-inventory-predict/internal/wire"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const localPartitionID = "partition_id"

// PartitionSocketHandler exposes every hosted partition as an envelope
// endpoint at /partitions/:id/ws.
type PartitionSocketHandler struct {
	ctx     context.Context
	servers map[int]*wire.Server
}

// NewPartitionSocketHandler builds one envelope server per partition.
// Connections are closed when ctx is cancelled.
func NewPartitionSocketHandler(ctx context.Context, partitions []*partition.Partition, codec wire.Codec, maxSize int) *PartitionSocketHandler {
	h := &PartitionSocketHandler{ctx: ctx, servers: make(map[int]*wire.Server, len(partitions))}
	for _, p := range partitions {
		mux := wire.NewMux()
		mux.Handle(wire.OpAddItem, wire.AddItemHandler(codec, p.Reservations.Purchase))
		h.servers[p.ID()] = wire.NewServer(fmt.Sprintf("partition-%d", p.ID()), codec, mux, maxSize)
	}
	return h
}

// Upgrade answers 404 for partitions this process does not host, so the
// caller re-resolves the endpoint.
func (h *PartitionSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.SendStatus(fiber.StatusUpgradeRequired)
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid partition ID"})
	}
	if _, ok := h.servers[id]; !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Partition not hosted here"})
	}
	c.Locals(localPartitionID, id)
	return c.Next()
}

func (h *PartitionSocketHandler) Serve(c *websocket.Conn) {
	id, _ := c.Locals(localPartitionID).(int)
	srv, ok := h.servers[id]
	if !ok {
		_ = c.Close()
		return
	}
	srv.ServeConn(h.ctx, c)
}

// EnvelopeSocket serves srv on every upgraded connection until ctx is
// cancelled.
func EnvelopeSocket(ctx context.Context, srv *wire.Server) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		srv.ServeConn(ctx, c)
	})
}
