package handler

import (
	"errors"
	"strconv"

	"go-inventory-predict/internal/middleware"
	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/partition"
	"go-inventory-predict/internal/service"
	"go-inventory-predict/pkg/logger"
	"go-inventory-predict/pkg/validator"

	"github.com/gofiber/fiber/v2"
)

// ReservationRouter finds the reservation service owning a product.
type ReservationRouter interface {
	Reservations(productID int) (service.ReservationService, error)
}

type StockHandler struct {
	router ReservationRouter
}

func NewStockHandler(r ReservationRouter) *StockHandler {
	return &StockHandler{router: r}
}

// ReserveStock reserves units of one product.
// POST /api/v1/reservestock
func (h *StockHandler) ReserveStock(c *fiber.Ctx) error {
	var req model.ReserveStockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Validation failed", "details": errs})
	}

	svc, err := h.router.Reservations(req.ProductID)
	if err != nil {
		return stockError(c, err)
	}

	left, err := svc.Purchase(c.UserContext(), req.ProductID, req.Quantity)
	if err != nil {
		return stockError(c, err)
	}
	if left == service.InsufficientStock {
		return c.Status(409).JSON(fiber.Map{
			"error":     "Insufficient stock",
			"productId": req.ProductID,
			"stockLeft": left,
		})
	}

	return c.JSON(fiber.Map{"productId": req.ProductID, "stockLeft": left})
}

// Restock adds units to a product. Requires an operator token.
// POST /api/v1/stock
func (h *StockHandler) Restock(c *fiber.Ctx) error {
	var req model.RestockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Validation failed", "details": errs})
	}

	svc, err := h.router.Reservations(req.ProductID)
	if err != nil {
		return stockError(c, err)
	}
	if err := svc.Restock(c.UserContext(), req.ProductID, req.Quantity); err != nil {
		return stockError(c, err)
	}

	logger.Info("product restocked", "productId", req.ProductID, "quantity", req.Quantity, "operator", middleware.Operator(c))
	return c.JSON(fiber.Map{"message": "Stock updated"})
}

// GetProduct returns the current stock of one product.
// GET /api/v1/stock/:id
func (h *StockHandler) GetProduct(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
	}

	svc, err := h.router.Reservations(id)
	if err != nil {
		return stockError(c, err)
	}
	product, err := svc.GetProduct(c.UserContext(), id)
	if err != nil {
		return stockError(c, err)
	}
	return c.JSON(product)
}

func stockError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, partition.ErrNoPartition), errors.Is(err, service.ErrProductNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "Product not found"})
	case errors.Is(err, service.ErrInvalidQuantity):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	logger.Error("stock operation failed", "error", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}
