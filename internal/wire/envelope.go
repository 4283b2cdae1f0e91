// Package wire implements the binary envelope protocol spoken between the
// gateway and the partition endpoints over websockets.
package wire

import (
	"errors"
	"strings"
)

// Envelope keys.
const (
	KeyDefault int64 = -1
	KeyError   int64 = 100
)

// OpAddItem reserves stock for one product.
const OpAddItem = "additem"

// AddItemResult codes.
const (
	ResultSuccess int32 = 0
	ResultError   int32 = 100
)

var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrUnsupportedType = errors.New("type not supported by codec")
)

type Envelope struct {
	Operation string `json:"operation"`
	Key       int64  `json:"key"`
	Payload   []byte `json:"payload,omitempty"`
}

// DefaultEnvelope is the response for requests nobody handled.
func DefaultEnvelope() Envelope {
	return Envelope{Key: KeyDefault}
}

// ErrorEnvelope carries err's message as UTF-8 payload.
func ErrorEnvelope(err error) Envelope {
	return Envelope{Key: KeyError, Payload: []byte(err.Error())}
}

// IsError reports whether e is an error response.
func (e Envelope) IsError() bool { return e.Key == KeyError }

func normalizeOp(op string) string {
	return strings.ToLower(strings.TrimSpace(op))
}

// AddItemRequest is the payload of an additem request.
type AddItemRequest struct {
	ProductID int32 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

// AddItemResult is the payload of an additem response. StockLeft is -1 when
// the product did not have enough stock.
type AddItemResult struct {
	Result    int32 `json:"result"`
	StockLeft int64 `json:"stockLeft"`
}
