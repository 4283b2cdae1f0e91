package prediction

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go-inventory-predict/internal/config"
	"go-inventory-predict/internal/model"
)

// ScoreLine is the scorer's verdict for one product.
type ScoreLine struct {
	ProductID   int
	Reorder     bool
	Probability float32
}

// Scorer evaluates a batch of trends in one request.
type Scorer interface {
	Score(ctx context.Context, trends []model.ProductStockTrend) ([]ScoreLine, error)
}

// NewScorer builds the scorer selected by configuration.
func NewScorer(cfg config.ScorerConfig) (Scorer, error) {
	switch cfg.Client {
	case "", "mock":
		return NewMockScorer(nil), nil
	case "azure":
		return NewAzureScorer(cfg.URL, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown scorer client %q", cfg.Client)
	}
}

// MockScorer flags products with fewer than 150 units left and draws a
// random probability. It stands in for the ML endpoint in development.
type MockScorer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewMockScorer uses rnd for probabilities; nil seeds from the clock.
func NewMockScorer(rnd *rand.Rand) *MockScorer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MockScorer{rnd: rnd}
}

const mockReorderThreshold = 150

func (m *MockScorer) Score(ctx context.Context, trends []model.ProductStockTrend) ([]ScoreLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]ScoreLine, 0, len(trends))
	for _, t := range trends {
		lines = append(lines, ScoreLine{
			ProductID:   t.ProductID,
			Reorder:     t.LastStockCount < mockReorderThreshold,
			Probability: m.rnd.Float32(),
		})
	}
	return lines, nil
}
