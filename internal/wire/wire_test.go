package wire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
)

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var out []Codec
	for _, name := range []string{"protobuf", "json", "gob"} {
		c, err := NewCodec(name)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, c)
	}
	return out
}

func TestEnvelopeRoundTrip(t *testing.T) {
	envs := []Envelope{
		{Operation: OpAddItem, Key: 42, Payload: []byte{1, 2, 3}},
		DefaultEnvelope(),
		ErrorEnvelope(errors.New("boom")),
		{},
	}
	for _, c := range allCodecs(t) {
		for _, in := range envs {
			b, err := c.Marshal(&in)
			if err != nil {
				t.Fatalf("%s marshal: %v", c.Name(), err)
			}
			var out Envelope
			if err := c.Unmarshal(b, &out); err != nil {
				t.Fatalf("%s unmarshal: %v", c.Name(), err)
			}
			if out.Operation != in.Operation || out.Key != in.Key || !bytes.Equal(out.Payload, in.Payload) {
				t.Fatalf("%s: got %+v want %+v", c.Name(), out, in)
			}
		}
	}
}

func TestProtobufMatchesFieldNumbers(t *testing.T) {
	// operation="a", key=2, payload={9}
	want := []byte{0x0a, 0x01, 'a', 0x10, 0x02, 0x1a, 0x01, 0x09}
	env := Envelope{Operation: "a", Key: 2, Payload: []byte{9}}
	got, err := ProtobufCodec{}.Marshal(&env)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}

	// Unknown fields are skipped.
	withExtra := append(append([]byte{}, want...), 0x20, 0x05)
	var out Envelope
	if err := (ProtobufCodec{}).Unmarshal(withExtra, &out); err != nil {
		t.Fatal(err)
	}
	if out.Key != 2 {
		t.Fatalf("key=%d", out.Key)
	}
}

func TestProtobufRejectsGarbage(t *testing.T) {
	var out Envelope
	if err := (ProtobufCodec{}).Unmarshal([]byte{0x0a, 0x10, 'x'}, &out); err == nil {
		t.Fatal("expected truncated field error")
	}
	if _, err := (ProtobufCodec{}).Marshal(&struct{}{}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err=%v", err)
	}
}

func TestUnknownCodec(t *testing.T) {
	if _, err := NewCodec("xml"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMuxUnknownOperationReturnsDefault(t *testing.T) {
	m := NewMux()
	resp, err := m.ServeEnvelope(context.Background(), Envelope{Operation: "nope", Key: 5})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Key != KeyDefault || resp.Operation != "" || resp.Payload != nil {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestAddItemRoundTrip(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			var gotID, gotQty int
			m := NewMux()
			m.Handle(OpAddItem, AddItemHandler(c, func(_ context.Context, productID, quantity int) (int, error) {
				gotID, gotQty = productID, quantity
				return 998, nil
			}))
			srv := NewServer("test", c, m, 0)

			payload, err := c.Marshal(&AddItemRequest{ProductID: 5, Quantity: 2})
			if err != nil {
				t.Fatal(err)
			}
			raw, err := c.Marshal(&Envelope{Operation: "AddItem", Key: 42, Payload: payload})
			if err != nil {
				t.Fatal(err)
			}

			var resp Envelope
			if err := c.Unmarshal(srv.Process(context.Background(), raw), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.IsError() {
				t.Fatalf("error envelope: %s", resp.Payload)
			}
			if gotID != 5 || gotQty != 2 {
				t.Fatalf("handler saw %d/%d", gotID, gotQty)
			}
			var res AddItemResult
			if err := c.Unmarshal(resp.Payload, &res); err != nil {
				t.Fatal(err)
			}
			if res.Result != ResultSuccess || res.StockLeft != 998 {
				t.Fatalf("result=%+v", res)
			}
		})
	}
}

func TestProcessErrorsBecomeErrorEnvelopes(t *testing.T) {
	c := ProtobufCodec{}
	m := NewMux()
	m.HandleFunc(OpAddItem, func(context.Context, Envelope) (Envelope, error) {
		return Envelope{}, errors.New("product not found")
	})
	srv := NewServer("test", c, m, 0)

	raw, _ := c.Marshal(&Envelope{Operation: OpAddItem})
	var resp Envelope
	if err := c.Unmarshal(srv.Process(context.Background(), raw), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Key != KeyError || string(resp.Payload) != "product not found" {
		t.Fatalf("resp=%+v", resp)
	}

	if err := c.Unmarshal(srv.Process(context.Background(), []byte{0xff}), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.IsError() || !strings.Contains(string(resp.Payload), "decode envelope") {
		t.Fatalf("decode failure resp=%+v", resp)
	}
}

// scriptConn replays queued messages, then reports a normal close.
type scriptConn struct {
	mu      sync.Mutex
	in      [][]byte
	out     [][]byte
	closed  bool
	blockCh chan struct{}
}

func (c *scriptConn) NextReader() (int, io.Reader, error) {
	c.mu.Lock()
	if len(c.in) == 0 {
		block := c.blockCh
		c.mu.Unlock()
		if block != nil {
			<-block
			return 0, nil, errors.New("use of closed connection")
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	msg := c.in[0]
	c.in = c.in[1:]
	c.mu.Unlock()
	return websocket.BinaryMessage, bytes.NewReader(msg), nil
}

func (c *scriptConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, data)
	return nil
}

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && c.blockCh != nil {
		close(c.blockCh)
	}
	c.closed = true
	return nil
}

func (c *scriptConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestServeConnAnswersEachMessage(t *testing.T) {
	c := ProtobufCodec{}
	m := NewMux()
	m.HandleFunc("echo", func(_ context.Context, req Envelope) (Envelope, error) {
		return Envelope{Operation: req.Operation, Key: req.Key}, nil
	})
	srv := NewServer("test", c, m, 64)

	small, _ := c.Marshal(&Envelope{Operation: "echo", Key: 7})
	big, _ := c.Marshal(&Envelope{Operation: "echo", Payload: bytes.Repeat([]byte{1}, 200)})
	conn := &scriptConn{in: [][]byte{small, big, small}}

	srv.ServeConn(context.Background(), conn)

	if len(conn.out) != 3 {
		t.Fatalf("wrote %d responses", len(conn.out))
	}
	var first, second, third Envelope
	_ = c.Unmarshal(conn.out[0], &first)
	_ = c.Unmarshal(conn.out[1], &second)
	_ = c.Unmarshal(conn.out[2], &third)
	if first.Key != 7 || third.Key != 7 {
		t.Fatalf("echo responses %+v %+v", first, third)
	}
	if !second.IsError() || !strings.Contains(string(second.Payload), ErrMessageTooLarge.Error()) {
		t.Fatalf("oversize response=%+v", second)
	}
}

func TestServeConnStopsOnCancel(t *testing.T) {
	conn := &scriptConn{blockCh: make(chan struct{})}
	srv := NewServer("test", ProtobufCodec{}, NewMux(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.ServeConn(ctx, conn)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not stop")
	}
	if !conn.isClosed() {
		t.Fatal("connection not closed on cancel")
	}
}
