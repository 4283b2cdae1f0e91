package wire

import (
	"bytes"
	"encoding/gob"
	"fmt"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protowire"
)

// Codec serializes envelopes and their payloads.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// NewCodec returns the codec registered under name. An empty name selects
// protobuf.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "protobuf":
		return ProtobufCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	case "gob":
		return GobCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// protoMessage is implemented by the types ProtobufCodec knows how to
// encode. Field numbers are fixed and shared with every peer.
type protoMessage interface {
	appendProto(b []byte) []byte
	consumeProto(b []byte) error
}

// ProtobufCodec writes the protobuf wire format without generated code.
type ProtobufCodec struct{}

func (ProtobufCodec) Name() string { return "protobuf" }

func (ProtobufCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(protoMessage)
	if !ok {
		return nil, fmt.Errorf("protobuf marshal %T: %w", v, ErrUnsupportedType)
	}
	return m.appendProto(nil), nil
}

func (ProtobufCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(protoMessage)
	if !ok {
		return fmt.Errorf("protobuf unmarshal %T: %w", v, ErrUnsupportedType)
	}
	return m.consumeProto(data)
}

// JSONCodec is the text alternative, handy for debugging with a browser.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// GobCodec encodes arbitrary Go values; both ends must be Go.
type GobCodec struct{}

func (GobCodec) Name() string { return "gob" }

func (GobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Envelope: 1 operation, 2 key, 3 payload.
func (e *Envelope) appendProto(b []byte) []byte {
	if e.Operation != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, e.Operation)
	}
	if e.Key != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Key))
	}
	if len(e.Payload) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Payload)
	}
	return b
}

func (e *Envelope) consumeProto(b []byte) error {
	*e = Envelope{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			e.Operation = v
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			e.Key = int64(v)
			return n
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				e.Payload = append([]byte(nil), v...)
			}
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// AddItemRequest: 1 productId, 2 quantity.
func (r *AddItemRequest) appendProto(b []byte) []byte {
	b = appendInt(b, 1, int64(r.ProductID))
	return appendInt(b, 2, int64(r.Quantity))
}

func (r *AddItemRequest) consumeProto(b []byte) error {
	*r = AddItemRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ != protowire.VarintType || (num != 1 && num != 2) {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeVarint(b)
		if num == 1 {
			r.ProductID = int32(v)
		} else {
			r.Quantity = int32(v)
		}
		return n
	})
}

// AddItemResult: 1 result, 2 stockLeft.
func (r *AddItemResult) appendProto(b []byte) []byte {
	b = appendInt(b, 1, int64(r.Result))
	return appendInt(b, 2, r.StockLeft)
}

func (r *AddItemResult) consumeProto(b []byte) error {
	*r = AddItemResult{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ != protowire.VarintType || (num != 1 && num != 2) {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeVarint(b)
		if num == 1 {
			r.Result = int32(v)
		} else {
			r.StockLeft = int64(v)
		}
		return n
	})
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

// consumeFields walks b field by field; fn consumes one value and returns
// its length, negative on malformed input.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m < 0 {
			return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
