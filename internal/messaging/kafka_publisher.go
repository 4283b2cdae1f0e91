// Package messaging publishes low-stock predictions to Kafka for consumers
// outside this service.
package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go-inventory-predict/internal/model"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

const eventLowStock = "low_stock"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LowStockEvent is the value of every published message.
type LowStockEvent struct {
	Type        string    `json:"type"`
	ProductID   int       `json:"productId"`
	ProductName string    `json:"productName"`
	StockLeft   int       `json:"stockLeft"`
	Reorder     bool      `json:"reorder"`
	Probability float32   `json:"probability"`
	Timestamp   time.Time `json:"timestamp"`
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return newKafkaPublisher(writer)
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: func() time.Time { return time.Now().UTC() }}
}

// NotifyLowStockProducts writes one message per prediction, keyed by
// productId so a product's events stay ordered within a partition.
func (p *KafkaPublisher) NotifyLowStockProducts(ctx context.Context, predictions []model.ProductStockPrediction) error {
	if len(predictions) == 0 {
		return nil
	}

	ts := p.now()
	msgs := make([]kafka.Message, 0, len(predictions))
	for _, pred := range predictions {
		value, err := json.Marshal(LowStockEvent{
			Type:        eventLowStock,
			ProductID:   pred.ProductID,
			ProductName: pred.ProductName,
			StockLeft:   pred.StockLeft,
			Reorder:     pred.Reorder,
			Probability: pred.Probability,
			Timestamp:   ts,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal low stock event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.Itoa(pred.ProductID)),
			Value: value,
			Time:  ts,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(eventLowStock)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write low stock events to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
