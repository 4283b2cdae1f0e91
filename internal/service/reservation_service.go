package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-inventory-predict/internal/metrics"
	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/repository"
	"go-inventory-predict/internal/store"
	"go-inventory-predict/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// InsufficientStock is returned by Purchase when the product does not have
// enough units. It is not an error: nothing was changed.
const InsufficientStock = -1

// StockPublisher receives stock changes after they commit.
type StockPublisher interface {
	PublishStock(product model.Product, action, message string)
}

type ReservationService interface {
	Purchase(ctx context.Context, productID, quantity int) (int, error)
	Restock(ctx context.Context, productID, quantity int) error
	GetProduct(ctx context.Context, productID int) (*model.Product, error)
	GetAllProducts(ctx context.Context) ([]model.Product, error)
	SeedProducts(ctx context.Context, products []model.Product) (int, error)
}

type reservationService struct {
	partitionID  int
	store        *store.Store
	productRepo  repository.ProductRepository
	purchaseRepo repository.PurchaseLogRepository
	events       StockPublisher
	now          func() time.Time
}

// NewReservationService serves one partition. events may be nil.
func NewReservationService(partitionID int, s *store.Store, pRepo repository.ProductRepository, lRepo repository.PurchaseLogRepository, events StockPublisher) ReservationService {
	return &reservationService{
		partitionID:  partitionID,
		store:        s,
		productRepo:  pRepo,
		purchaseRepo: lRepo,
		events:       events,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Purchase moves quantity units from stockTotal to stockReserved and logs
// the purchase in the same transaction. It returns the units left, or
// InsufficientStock without touching anything.
func (s *reservationService) Purchase(ctx context.Context, productID, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	label := metrics.Partition(s.partitionID)

	stockLeft := InsufficientStock
	var updated model.Product

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		// 1. Lock the product for the rest of the transaction
		product, err := s.productRepo.FindByIDForUpdate(tx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}

		// 2. Not enough stock: leave everything as it is
		if product.StockTotal < quantity {
			return nil
		}

		// 3. Reserve
		reserved := min(product.StockTotal, quantity)
		logger.Debug("reserving stock",
			"partition", s.partitionID,
			"productId", product.ProductID,
			"stockTotal", fmt.Sprintf("%d=>%d", product.StockTotal, product.StockTotal-reserved),
			"stockReserved", fmt.Sprintf("%d=>%d", product.StockReserved, product.StockReserved+reserved),
		)
		product.StockTotal -= reserved
		product.StockReserved += reserved

		if err := s.productRepo.Update(tx, product); err != nil {
			return err
		}

		// 4. Log the purchase for the prediction pipeline
		record := &model.PurchaseRecord{
			PurchaseKey: uuid.NewString(),
			ProductID:   product.ProductID,
			ProductName: product.Name,
			Quantity:    reserved,
			StockLeft:   product.StockTotal,
			Timestamp:   s.now(),
		}
		if err := s.purchaseRepo.Create(tx, record); err != nil {
			return err
		}

		stockLeft = product.StockTotal
		updated = *product
		return nil
	})

	switch {
	case errors.Is(err, ErrProductNotFound):
		metrics.Purchases.WithLabelValues(label, "not_found").Inc()
		return 0, err
	case err != nil:
		metrics.Purchases.WithLabelValues(label, "error").Inc()
		logger.Error("purchase failed", "partition", s.partitionID, "productId", productID, "error", err)
		return 0, err
	case stockLeft == InsufficientStock:
		metrics.Purchases.WithLabelValues(label, "insufficient").Inc()
		return InsufficientStock, nil
	}

	metrics.Purchases.WithLabelValues(label, "reserved").Inc()
	if s.events != nil {
		s.events.PublishStock(updated, "stock_reserved", fmt.Sprintf("%d units of '%s' reserved", quantity, updated.Name))
	}
	return stockLeft, nil
}

// Restock adds quantity units to stockTotal. The product is read with the
// update lock so a concurrent purchase cannot be lost.
func (s *reservationService) Restock(ctx context.Context, productID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	label := metrics.Partition(s.partitionID)

	var updated model.Product
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		product, err := s.productRepo.FindByIDForUpdate(tx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}

		product.StockTotal += quantity
		if err := s.productRepo.Update(tx, product); err != nil {
			return err
		}
		updated = *product
		return nil
	})
	if err != nil {
		metrics.Restocks.WithLabelValues(label, "error").Inc()
		return err
	}

	metrics.Restocks.WithLabelValues(label, "ok").Inc()
	if s.events != nil {
		s.events.PublishStock(updated, "stock_added", fmt.Sprintf("%d units of '%s' added", quantity, updated.Name))
	}
	return nil
}

func (s *reservationService) GetProduct(ctx context.Context, productID int) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return product, err
}

func (s *reservationService) GetAllProducts(ctx context.Context) ([]model.Product, error) {
	return s.productRepo.FindAll(ctx)
}

// SeedProducts imports products only when the partition holds none yet.
// It returns how many were added.
func (s *reservationService) SeedProducts(ctx context.Context, products []model.Product) (int, error) {
	added := 0
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		n, err := s.productRepo.Count(tx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for i := range products {
			if err := s.productRepo.Create(tx, &products[i]); err != nil {
				return err
			}
		}
		added = len(products)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}
