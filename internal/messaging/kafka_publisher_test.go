package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-inventory-predict/internal/model"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishLowStock(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	err := p.NotifyLowStockProducts(context.Background(), []model.ProductStockPrediction{
		{ProductID: 712, ProductName: "Cap", StockLeft: 20, Reorder: true, Probability: 0.8},
		{ProductID: 713, ProductName: "Jersey", StockLeft: 400, Probability: 0.1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "712" || !w.msgs[0].Time.Equal(at) {
		t.Fatalf("message 0=%+v", w.msgs[0])
	}

	var ev LowStockEvent
	if err := json.Unmarshal(w.msgs[1].Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "low_stock" || ev.ProductID != 713 || ev.StockLeft != 400 || ev.Reorder {
		t.Fatalf("event=%+v", ev)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatal("writer not closed")
	}
}

func TestPublishEmptyAndFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w)

	if err := p.NotifyLowStockProducts(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	err := p.NotifyLowStockProducts(context.Background(), []model.ProductStockPrediction{{ProductID: 1}})
	if !errors.Is(err, w.err) {
		t.Fatalf("err=%v", err)
	}
}
