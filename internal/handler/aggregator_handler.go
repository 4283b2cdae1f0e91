package handler

import (
	"strconv"

	"go-inventory-predict/internal/service"
	"go-inventory-predict/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type AggregatorHandler struct {
	service service.StockAggregatorService
}

func NewAggregatorHandler(s service.StockAggregatorService) *AggregatorHandler {
	return &AggregatorHandler{service: s}
}

// GetProducts returns aggregated low-stock predictions.
// GET /api/v1/stockaggregator?probability=0.5
func (h *AggregatorHandler) GetProducts(c *fiber.Ctx) error {
	raw := c.Query("probability")
	if raw == "" {
		products, err := h.service.GetAllProducts(c.UserContext())
		if err != nil {
			logger.Error("aggregator query failed", "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch predictions"})
		}
		return c.JSON(products)
	}

	p, err := strconv.ParseFloat(raw, 32)
	if err != nil || p < 0 || p > 1 {
		return c.Status(400).JSON(fiber.Map{"error": "probability must be a number between 0 and 1"})
	}
	products, err := h.service.GetProducts(c.UserContext(), float32(p))
	if err != nil {
		logger.Error("aggregator query failed", "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to fetch predictions"})
	}
	return c.JSON(products)
}
