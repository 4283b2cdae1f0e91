package repository

import (
	"context"
	"fmt"
	"strconv"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/store"

	"github.com/redis/go-redis/v9"
)

const AggregatedProductsCollection = "aggregatedproducts"

// PredictionRepository keeps the latest prediction per product for the
// stock aggregator.
type PredictionRepository interface {
	Upsert(ctx context.Context, predictions []model.ProductStockPrediction) error
	FindAll(ctx context.Context) ([]model.ProductStockPrediction, error)
}

type predictionRepo struct {
	s *store.Store
}

// NewPredictionRepo stores predictions in a store collection.
func NewPredictionRepo(s *store.Store) PredictionRepository {
	return &predictionRepo{s}
}

func (r *predictionRepo) Upsert(ctx context.Context, predictions []model.ProductStockPrediction) error {
	return r.s.Update(ctx, func(tx *store.Tx) error {
		for i := range predictions {
			b, err := encode(&predictions[i])
			if err != nil {
				return err
			}
			if err := tx.Set(AggregatedProductsCollection, productKey(predictions[i].ProductID), b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *predictionRepo) FindAll(ctx context.Context) ([]model.ProductStockPrediction, error) {
	var out []model.ProductStockPrediction
	err := r.s.View(ctx, func(tx *store.Tx) error {
		kvs, err := tx.ScanAll(AggregatedProductsCollection)
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			var p model.ProductStockPrediction
			if err := decode(kv.Value, &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

const redisPredictionsKey = "stockaggregator:products"

type redisPredictionRepo struct {
	client *redis.Client
}

// NewRedisPredictionRepo keeps predictions in one redis hash keyed by
// productId so every gateway replica sees the same aggregate.
func NewRedisPredictionRepo(client *redis.Client) PredictionRepository {
	return &redisPredictionRepo{client: client}
}

func (r *redisPredictionRepo) Upsert(ctx context.Context, predictions []model.ProductStockPrediction) error {
	if len(predictions) == 0 {
		return nil
	}
	fields := make([]any, 0, len(predictions)*2)
	for i := range predictions {
		b, err := encode(&predictions[i])
		if err != nil {
			return err
		}
		fields = append(fields, strconv.Itoa(predictions[i].ProductID), b)
	}
	if err := r.client.HSet(ctx, redisPredictionsKey, fields...).Err(); err != nil {
		return fmt.Errorf("failed to store predictions in Redis: %w", err)
	}
	return nil
}

func (r *redisPredictionRepo) FindAll(ctx context.Context) ([]model.ProductStockPrediction, error) {
	vals, err := r.client.HGetAll(ctx, redisPredictionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions from Redis: %w", err)
	}
	out := make([]model.ProductStockPrediction, 0, len(vals))
	for _, v := range vals {
		var p model.ProductStockPrediction
		if err := decode([]byte(v), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
