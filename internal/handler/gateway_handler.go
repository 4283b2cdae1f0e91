package handler

import (
	"context"
	"fmt"
	"strings"

	"go-inventory-predict/internal/partition"
	"go-inventory-predict/internal/wire"
)

// Forwarder sends one encoded envelope to a partition and returns the
// encoded reply. *rpc.Factory implements it.
type Forwarder interface {
	Invoke(ctx context.Context, partitionID int, req []byte) ([]byte, error)
}

// Gateway routes envelopes to the partition owning their key.
type Gateway struct {
	codec   wire.Codec
	ranges  []partition.Range
	forward Forwarder
}

func NewGateway(codec wire.Codec, ranges []partition.Range, f Forwarder) *Gateway {
	return &Gateway{codec: codec, ranges: ranges, forward: f}
}

// ServeEnvelope forwards req to the partition owning its product and returns
// the reply.
func (g *Gateway) ServeEnvelope(ctx context.Context, req wire.Envelope) (wire.Envelope, error) {
	productID, err := g.productID(req)
	if err != nil {
		return wire.Envelope{}, err
	}
	r, err := partition.Lookup(g.ranges, productID)
	if err != nil {
		return wire.Envelope{}, err
	}

	raw, err := g.codec.Marshal(&req)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("encode request: %w", err)
	}
	out, err := g.forward.Invoke(ctx, r.ID, raw)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("partition %d: %w", r.ID, err)
	}

	var resp wire.Envelope
	if err := g.codec.Unmarshal(out, &resp); err != nil {
		return wire.Envelope{}, fmt.Errorf("decode partition %d reply: %w", r.ID, err)
	}
	return resp, nil
}

// productID is the payload's product for additem. Operations without a
// payload are routed by the envelope key.
func (g *Gateway) productID(req wire.Envelope) (int, error) {
	if strings.EqualFold(req.Operation, wire.OpAddItem) && len(req.Payload) > 0 {
		var in wire.AddItemRequest
		if err := g.codec.Unmarshal(req.Payload, &in); err != nil {
			return 0, fmt.Errorf("decode additem payload: %w", err)
		}
		return int(in.ProductID), nil
	}
	return int(req.Key), nil
}
