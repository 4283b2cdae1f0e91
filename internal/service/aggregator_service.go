package service

import (
	"context"
	"sort"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/repository"
)

// StockAggregatorService subscribes to low-stock notifications and keeps
// the latest prediction of every product across partitions.
type StockAggregatorService interface {
	NotifyLowStockProducts(ctx context.Context, predictions []model.ProductStockPrediction) error
	GetAllProducts(ctx context.Context) ([]model.ProductStockPrediction, error)
	GetProducts(ctx context.Context, minProbability float32) ([]model.ProductStockPrediction, error)
}

type stockAggregatorService struct {
	repo repository.PredictionRepository
}

func NewStockAggregatorService(repo repository.PredictionRepository) StockAggregatorService {
	return &stockAggregatorService{repo: repo}
}

func (s *stockAggregatorService) NotifyLowStockProducts(ctx context.Context, predictions []model.ProductStockPrediction) error {
	return s.repo.Upsert(ctx, predictions)
}

// GetAllProducts returns every known prediction, most likely stockout first.
func (s *stockAggregatorService) GetAllProducts(ctx context.Context) ([]model.ProductStockPrediction, error) {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	sortByProbability(all)
	return all, nil
}

// GetProducts returns predictions with probability >= minProbability, most
// likely stockout first.
func (s *stockAggregatorService) GetProducts(ctx context.Context, minProbability float32) ([]model.ProductStockPrediction, error) {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProductStockPrediction, 0, len(all))
	for _, p := range all {
		if p.Probability >= minProbability {
			out = append(out, p)
		}
	}
	sortByProbability(out)
	return out, nil
}

func sortByProbability(ps []model.ProductStockPrediction) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Probability != ps[j].Probability {
			return ps[i].Probability > ps[j].Probability
		}
		return ps[i].ProductID < ps[j].ProductID
	})
}
