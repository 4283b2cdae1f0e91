package wire

import (
	"context"
	"fmt"
	"sync"
)

// Handler answers one request envelope.
type Handler interface {
	ServeEnvelope(ctx context.Context, req Envelope) (Envelope, error)
}

type HandlerFunc func(ctx context.Context, req Envelope) (Envelope, error)

func (f HandlerFunc) ServeEnvelope(ctx context.Context, req Envelope) (Envelope, error) {
	return f(ctx, req)
}

// Mux routes envelopes by operation name, ignoring case. Unknown operations
// get the default envelope back.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

func (m *Mux) Handle(op string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[normalizeOp(op)] = h
}

func (m *Mux) HandleFunc(op string, f func(ctx context.Context, req Envelope) (Envelope, error)) {
	m.Handle(op, HandlerFunc(f))
}

func (m *Mux) ServeEnvelope(ctx context.Context, req Envelope) (Envelope, error) {
	m.mu.RLock()
	h, ok := m.handlers[normalizeOp(req.Operation)]
	m.mu.RUnlock()
	if !ok {
		return DefaultEnvelope(), nil
	}
	return h.ServeEnvelope(ctx, req)
}

// AddItemFunc reserves quantity units of productID and returns the stock
// left, or -1 when there is not enough.
type AddItemFunc func(ctx context.Context, productID, quantity int) (int, error)

// AddItemHandler decodes an additem payload with codec, calls fn and
// encodes the result.
func AddItemHandler(codec Codec, fn AddItemFunc) Handler {
	return HandlerFunc(func(ctx context.Context, req Envelope) (Envelope, error) {
		var in AddItemRequest
		if err := codec.Unmarshal(req.Payload, &in); err != nil {
			return Envelope{}, fmt.Errorf("decode additem payload: %w", err)
		}

		left, err := fn(ctx, int(in.ProductID), int(in.Quantity))
		if err != nil {
			return Envelope{}, err
		}

		out := AddItemResult{Result: ResultSuccess, StockLeft: int64(left)}
		payload, err := codec.Marshal(&out)
		if err != nil {
			return Envelope{}, err
		}
		return Envelope{Operation: req.Operation, Key: KeyDefault, Payload: payload}, nil
	})
}
