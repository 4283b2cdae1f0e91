package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	p := Policy{Delay: 3 * time.Second, MaxRetries: 2}
	tests := []struct {
		name      string
		err       error
		kind      Kind
		transient bool
		resolve   bool
	}{
		{"not found", &StatusError{Status: http.StatusNotFound}, KindNotFound, false, true},
		{"internal", &StatusError{Status: http.StatusInternalServerError}, KindInternal, true, false},
		{"wrapped internal", fmt.Errorf("call: %w", &StatusError{Status: 500, Err: websocket.ErrBadHandshake}), KindInternal, true, false},
		{"deadline", context.DeadlineExceeded, KindTimeout, false, true},
		{"net timeout", fmt.Errorf("read: %w", timeoutErr{}), KindTimeout, false, true},
		{"bad handshake", websocket.ErrBadHandshake, KindProtocol, false, true},
		{"protocol", fmt.Errorf("x: %w", ErrProtocol), KindProtocol, false, true},
		{"protocol close", &websocket.CloseError{Code: websocket.CloseProtocolError}, KindProtocol, false, true},
		{"closed", net.ErrClosed, KindConnection, false, true},
		{"eof", fmt.Errorf("receive: %w", io.EOF), KindConnection, false, true},
		{"cancelled", context.Canceled, KindConnection, false, true},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindConnection, false, true},
		{"joined", errors.Join(context.Canceled, errors.New("other")), KindConnection, false, true},
		{"unknown", errors.New("strange"), KindUnknown, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Classify(tt.err)
			if d.Kind != tt.kind || d.Transient != tt.transient || d.Resolve != tt.resolve {
				t.Fatalf("got %+v, want kind=%v transient=%v resolve=%v", d, tt.kind, tt.transient, tt.resolve)
			}
			if d.Delay != 3*time.Second {
				t.Fatalf("delay=%v", d.Delay)
			}
		})
	}
}

// echoServer upgrades every request and echoes binary messages back with a
// prefix naming the server.
func echoServer(t *testing.T, name string, reject *atomic.Int32) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reject != nil && reject.Add(-1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte(name+":"), msg...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type switchResolver struct {
	mu    sync.Mutex
	addr  string
	calls int
}

func (r *switchResolver) Resolve(context.Context, int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.addr, nil
}

func (r *switchResolver) set(addr string) {
	r.mu.Lock()
	r.addr = addr
	r.mu.Unlock()
}

func TestFactoryReusesValidClient(t *testing.T) {
	a := echoServer(t, "a", nil)
	b := echoServer(t, "b", nil)
	res := &switchResolver{addr: wsURL(a)}
	f := NewFactory(res, Policy{MaxRetries: 1})
	defer f.Close()
	ctx := context.Background()

	c1, err := f.GetClient(ctx, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := f.GetClient(ctx, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 || res.calls != 1 {
		t.Fatalf("client not reused (resolves=%d)", res.calls)
	}

	// Same address after re-resolve keeps the client.
	c3, err := f.GetClient(ctx, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if c3 != c1 {
		t.Fatal("client replaced although address is unchanged")
	}

	// A moved partition invalidates it.
	res.set(wsURL(b))
	c4, err := f.GetClient(ctx, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if c4 == c1 || c1.Valid(wsURL(a)) {
		t.Fatal("stale client kept")
	}
	resp, err := c4.SendReceive(ctx, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "b:x" {
		t.Fatalf("resp=%q", resp)
	}
}

// stallResolver never answers for partition 0 until release is closed.
type stallResolver struct {
	addr    string
	release chan struct{}
}

func (r *stallResolver) Resolve(ctx context.Context, partitionID int) (string, error) {
	if partitionID == 0 {
		select {
		case <-r.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.addr, nil
}

func TestSlowPartitionDoesNotBlockOthers(t *testing.T) {
	srv := echoServer(t, "a", nil)
	res := &stallResolver{addr: wsURL(srv), release: make(chan struct{})}
	f := NewFactory(res, Policy{MaxRetries: 1})
	defer f.Close()

	stalled := make(chan error, 1)
	go func() {
		_, err := f.GetClient(context.Background(), 0, false)
		stalled <- err
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c, err := f.GetClient(ctx, 1, false)
	if err != nil {
		t.Fatalf("partition 1 blocked by partition 0: %v", err)
	}
	if resp, err := c.SendReceive(ctx, []byte("x")); err != nil || string(resp) != "a:x" {
		t.Fatalf("resp=%q err=%v", resp, err)
	}

	// a second caller of the stalled partition gives up with its own ctx
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	if _, err := f.GetClient(waitCtx, 0, false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiting caller err=%v", err)
	}

	close(res.release)
	select {
	case err := <-stalled:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled partition never completed")
	}
}

func TestClientValidity(t *testing.T) {
	srv := echoServer(t, "a", nil)
	c, err := Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Valid(wsURL(srv)) {
		t.Fatal("fresh client invalid")
	}
	if c.Valid("ws://elsewhere/partitions/1/ws") {
		t.Fatal("client valid for another address")
	}
	_ = c.Close()
	if c.Valid(wsURL(srv)) {
		t.Fatal("closed client valid")
	}
	if _, err := c.SendReceive(context.Background(), []byte("x")); err == nil {
		t.Fatal("send on closed client succeeded")
	}
}

func TestDialHandshakeStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Dial(context.Background(), wsURL(srv))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("err=%v", err)
	}
	if DefaultPolicy().Classify(err).Kind != KindNotFound {
		t.Fatalf("classified as %v", KindOf(err))
	}
}

func TestInvokeRetriesTransientFailure(t *testing.T) {
	var reject atomic.Int32
	reject.Store(2)
	srv := echoServer(t, "a", &reject)
	res := &switchResolver{addr: wsURL(srv)}
	f := NewFactory(res, Policy{MaxRetries: 3})
	defer f.Close()

	resp, err := f.Invoke(context.Background(), 0, []byte("hi"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(resp) != "a:hi" {
		t.Fatalf("resp=%q", resp)
	}
	// 500s retry against the same address.
	if res.calls != 1 {
		t.Fatalf("resolved %d times", res.calls)
	}
}

func TestInvokeGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	res := &switchResolver{addr: wsURL(srv)}
	f := NewFactory(res, Policy{MaxRetries: 2})

	_, err := f.Invoke(context.Background(), 0, []byte("hi"))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v", err)
	}
	// Initial resolve plus one per non-transient retry.
	if res.calls != 3 {
		t.Fatalf("resolved %d times", res.calls)
	}
}

func TestInvokeHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	f := NewFactory(&switchResolver{addr: wsURL(srv)}, Policy{Delay: time.Hour, MaxRetries: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := f.Invoke(ctx, 0, nil); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("Invoke ignored cancellation")
	}
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver("localhost", "3000")
	addr, err := r.Resolve(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if addr != "ws://localhost:3000/partitions/2/ws" {
		t.Fatalf("addr=%s", addr)
	}
}
