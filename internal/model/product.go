package model

import "github.com/shopspring/decimal"

// Product is the unit of stock owned by exactly one partition.
type Product struct {
	ProductID     int             `json:"productId" validate:"required,gt=0"`
	ProductNumber string          `json:"productNumber"`
	Name          string          `json:"productName" validate:"required"`
	ModelName     string          `json:"modelName"`
	CategoryID    int             `json:"categoryId"`
	StandardCost  decimal.Decimal `json:"standardCost"`
	ListPrice     decimal.Decimal `json:"listPrice"`

	// Units still available for reservation.
	StockTotal int `json:"stockTotal" validate:"gte=0"`
	// Units reserved by purchases but not yet shipped.
	StockReserved int `json:"stockReserved" validate:"gte=0"`
}

// ReserveStockRequest is the body of POST /api/v1/reservestock.
type ReserveStockRequest struct {
	ProductID int `json:"productId" validate:"required,gt=0"`
	Quantity  int `json:"quantity" validate:"required,gt=0"`
}

// RestockRequest is the body of POST /api/v1/stock.
type RestockRequest struct {
	ProductID int `json:"productId" validate:"required,gt=0"`
	Quantity  int `json:"quantity" validate:"required,gt=0"`
}
