package service

import (
	"context"

	"go-inventory-predict/internal/model"
)

// PartitionView is the read-only face of a partition used for reporting.
type PartitionView interface {
	ID() int
	Bounds() (low, high int)
	Products(ctx context.Context) ([]model.Product, error)
	PendingPurchases(ctx context.Context) (int, error)
}

type PartitionStats struct {
	PartitionID      int `json:"partitionId"`
	LowKey           int `json:"lowKey"`
	HighKey          int `json:"highKey"`
	Products         int `json:"products"`
	StockTotal       int `json:"stockTotal"`
	StockReserved    int `json:"stockReserved"`
	OutOfStock       int `json:"outOfStock"`
	PendingPurchases int `json:"pendingPurchases"`
}

type DashboardStats struct {
	Products         int              `json:"products"`
	StockTotal       int              `json:"stockTotal"`
	StockReserved    int              `json:"stockReserved"`
	OutOfStock       int              `json:"outOfStock"`
	PendingPurchases int              `json:"pendingPurchases"`
	Partitions       []PartitionStats `json:"partitions"`
}

type DashboardService interface {
	GetDashboardStats(ctx context.Context) (*DashboardStats, error)
}

type dashboardService struct {
	partitions []PartitionView
}

func NewDashboardService(partitions []PartitionView) DashboardService {
	return &dashboardService{partitions: partitions}
}

func (s *dashboardService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{Partitions: make([]PartitionStats, 0, len(s.partitions))}

	for _, p := range s.partitions {
		products, err := p.Products(ctx)
		if err != nil {
			return nil, err
		}
		pending, err := p.PendingPurchases(ctx)
		if err != nil {
			return nil, err
		}

		low, high := p.Bounds()
		ps := PartitionStats{
			PartitionID:      p.ID(),
			LowKey:           low,
			HighKey:          high,
			Products:         len(products),
			PendingPurchases: pending,
		}
		for _, prod := range products {
			ps.StockTotal += prod.StockTotal
			ps.StockReserved += prod.StockReserved
			if prod.StockTotal == 0 {
				ps.OutOfStock++
			}
		}

		stats.Products += ps.Products
		stats.StockTotal += ps.StockTotal
		stats.StockReserved += ps.StockReserved
		stats.OutOfStock += ps.OutOfStock
		stats.PendingPurchases += ps.PendingPurchases
		stats.Partitions = append(stats.Partitions, ps)
	}
	return stats, nil
}
