package repository

import (
	"context"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/store"
)

const TrendsCollection = "trends"

// TrendRepository persists the prediction pipeline state of one partition.
type TrendRepository interface {
	FindAll(ctx context.Context) ([]model.ProductStockTrend, error)
	SaveAll(ctx context.Context, trends []model.ProductStockTrend) error
}

type trendRepo struct {
	s *store.Store
}

func NewTrendRepo(s *store.Store) TrendRepository {
	return &trendRepo{s}
}

func (r *trendRepo) FindAll(ctx context.Context) ([]model.ProductStockTrend, error) {
	var trends []model.ProductStockTrend
	err := r.s.View(ctx, func(tx *store.Tx) error {
		kvs, err := tx.ScanAll(TrendsCollection)
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			var t model.ProductStockTrend
			if err := decode(kv.Value, &t); err != nil {
				return err
			}
			trends = append(trends, t)
		}
		return nil
	})
	return trends, err
}

// SaveAll upserts every trend in one transaction.
func (r *trendRepo) SaveAll(ctx context.Context, trends []model.ProductStockTrend) error {
	if len(trends) == 0 {
		return nil
	}
	return r.s.Update(ctx, func(tx *store.Tx) error {
		for i := range trends {
			b, err := encode(&trends[i])
			if err != nil {
				return err
			}
			if err := tx.Set(TrendsCollection, productKey(trends[i].ProductID), b); err != nil {
				return err
			}
		}
		return nil
	})
}
