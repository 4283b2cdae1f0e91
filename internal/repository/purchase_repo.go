package repository

import (
	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/store"
)

const OrdersCollection = "orders"

// PurchaseLogRepository is the per-partition log of purchases waiting to be
// dispatched to the prediction pipeline. All methods run inside the caller's
// transaction.
type PurchaseLogRepository interface {
	Create(tx *store.Tx, record *model.PurchaseRecord) error
	FindAll(tx *store.Tx) ([]model.PurchaseRecord, error)
	Delete(tx *store.Tx, purchaseKey string) error
	Count(tx *store.Tx) (int, error)
}

type purchaseLogRepo struct {
	s *store.Store
}

func NewPurchaseLogRepo(s *store.Store) PurchaseLogRepository {
	return &purchaseLogRepo{s}
}

func (r *purchaseLogRepo) Create(tx *store.Tx, record *model.PurchaseRecord) error {
	b, err := encode(record)
	if err != nil {
		return err
	}
	return tx.Add(OrdersCollection, record.PurchaseKey, b)
}

// FindAll returns the log in the order purchases were recorded.
func (r *purchaseLogRepo) FindAll(tx *store.Tx) ([]model.PurchaseRecord, error) {
	kvs, err := tx.ScanAll(OrdersCollection)
	if err != nil {
		return nil, err
	}
	records := make([]model.PurchaseRecord, 0, len(kvs))
	for _, kv := range kvs {
		var rec model.PurchaseRecord
		if err := decode(kv.Value, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *purchaseLogRepo) Delete(tx *store.Tx, purchaseKey string) error {
	_, err := tx.Remove(OrdersCollection, purchaseKey)
	return err
}

func (r *purchaseLogRepo) Count(tx *store.Tx) (int, error) {
	return tx.Count(OrdersCollection)
}
