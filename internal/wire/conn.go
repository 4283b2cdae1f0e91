package wire

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go-inventory-predict/internal/metrics"
	"go-inventory-predict/pkg/logger"

	"github.com/fasthttp/websocket"
)

// DefaultMaxMessageSize bounds one reassembled request.
const DefaultMaxMessageSize = 100 * 1024

// Conn is the part of a websocket connection the server loop needs. Both
// the fasthttp websocket and the fiber contrib connection satisfy it.
type Conn interface {
	NextReader() (messageType int, r io.Reader, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Server runs the request/response loop of envelope connections.
type Server struct {
	codec   Codec
	handler Handler
	maxSize int64
	name    string
}

func NewServer(name string, codec Codec, handler Handler, maxSize int) *Server {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Server{codec: codec, handler: handler, maxSize: int64(maxSize), name: name}
}

// ServeConn answers envelopes on conn until the peer closes, the
// transport fails or ctx is cancelled. A close frame is acknowledged by the
// websocket library before NextReader reports it.
func (s *Server) ServeConn(ctx context.Context, conn Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, r, err := conn.NextReader()
		if err != nil {
			s.logReadError(ctx, err)
			return
		}

		var resp []byte
		raw, err := readMessage(r, s.maxSize)
		switch {
		case errors.Is(err, ErrMessageTooLarge):
			metrics.WireMessages.WithLabelValues("", "too_large").Inc()
			resp = s.encodeError(err)
		case err != nil:
			s.logReadError(ctx, err)
			return
		default:
			resp = s.Process(ctx, raw)
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, resp); err != nil {
			if ctx.Err() == nil {
				logger.Warn("wire write failed", "server", s.name, "error", err)
			}
			return
		}
	}
}

func (s *Server) logReadError(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		logger.Debug("wire connection cancelled", "server", s.name)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Debug("wire connection closed by peer", "server", s.name)
	default:
		logger.Warn("wire connection ended", "server", s.name, "error", err)
	}
}

// Process decodes one request, dispatches it and returns the encoded
// response. Failures become error envelopes.
func (s *Server) Process(ctx context.Context, raw []byte) []byte {
	var req Envelope
	if err := s.codec.Unmarshal(raw, &req); err != nil {
		metrics.WireMessages.WithLabelValues("", "decode_error").Inc()
		return s.encodeError(fmt.Errorf("decode envelope: %w", err))
	}

	resp, err := s.handler.ServeEnvelope(ctx, req)
	if err != nil {
		metrics.WireMessages.WithLabelValues(normalizeOp(req.Operation), "error").Inc()
		logger.Debug("wire handler failed", "server", s.name, "operation", req.Operation, "error", err)
		return s.encodeError(err)
	}
	metrics.WireMessages.WithLabelValues(normalizeOp(req.Operation), "ok").Inc()

	out, err := s.codec.Marshal(&resp)
	if err != nil {
		return s.encodeError(fmt.Errorf("encode response: %w", err))
	}
	return out
}

func (s *Server) encodeError(err error) []byte {
	env := ErrorEnvelope(err)
	out, mErr := s.codec.Marshal(&env)
	if mErr != nil {
		logger.Error("encode error envelope", "server", s.name, "error", mErr)
		return nil
	}
	return out
}

func readMessage(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrMessageTooLarge, limit)
	}
	return b, nil
}
