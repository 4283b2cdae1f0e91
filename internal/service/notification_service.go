package service

import (
	"context"
	"errors"
	"fmt"

	"go-inventory-predict/internal/metrics"
	"go-inventory-predict/internal/model"
	"go-inventory-predict/pkg/logger"
)

// LowStockSubscriber receives batches of low-stock predictions.
type LowStockSubscriber interface {
	NotifyLowStockProducts(ctx context.Context, predictions []model.ProductStockPrediction) error
}

// NotificationService fans a batch out to every subscriber. One failing
// subscriber does not stop delivery to the others, but the batch is reported
// as failed so the sender keeps its notification counters.
type NotificationService struct {
	subscribers map[string]LowStockSubscriber
	order       []string
}

func NewNotificationService() *NotificationService {
	return &NotificationService{subscribers: make(map[string]LowStockSubscriber)}
}

// Subscribe registers sub under name, replacing any previous one. Subscribe
// is not safe to call once notifications are flowing.
func (n *NotificationService) Subscribe(name string, sub LowStockSubscriber) {
	if _, ok := n.subscribers[name]; !ok {
		n.order = append(n.order, name)
	}
	n.subscribers[name] = sub
}

func (n *NotificationService) NotifyLowStockProducts(ctx context.Context, predictions []model.ProductStockPrediction) error {
	var errs []error
	for _, name := range n.order {
		if err := n.subscribers[name].NotifyLowStockProducts(ctx, predictions); err != nil {
			errs = append(errs, fmt.Errorf("subscriber %s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		metrics.Notifications.WithLabelValues("error").Inc()
		return err
	}
	metrics.Notifications.WithLabelValues("ok").Inc()
	logger.Debug("low-stock notification delivered", "products", len(predictions), "subscribers", len(n.order))
	return nil
}
