// Package rpc is the gateway side of the partition protocol: resolving a
// partition's endpoint, keeping one websocket client per partition and
// retrying failed calls according to a fixed policy.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
)

// Kind tags a failure for the retry policy.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindProtocol
	KindNotFound
	KindInternal
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// ErrProtocol marks a malformed exchange with the remote endpoint.
var ErrProtocol = errors.New("protocol violation")

// StatusError is an HTTP status returned by the remote endpoint, typically
// on a failed websocket handshake.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remote status %d", e.Status)
	}
	return fmt.Sprintf("remote status %d: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Decision tells the caller how to retry.
type Decision struct {
	Kind      Kind
	Transient bool
	// Resolve asks for a fresh endpoint before the next attempt.
	Resolve bool
	Delay   time.Duration
}

type rule struct {
	transient bool
	resolve   bool
}

// Only KindInternal keeps the current address.
var rules = map[Kind]rule{
	KindTimeout:    {transient: false, resolve: true},
	KindProtocol:   {transient: false, resolve: true},
	KindNotFound:   {transient: false, resolve: true},
	KindInternal:   {transient: true, resolve: false},
	KindConnection: {transient: false, resolve: true},
	KindUnknown:    {transient: false, resolve: true},
}

// Policy classifies failures. Every decision carries the same backoff.
type Policy struct {
	Delay      time.Duration
	MaxRetries int
}

const DefaultRetryDelay = 3 * time.Second

func DefaultPolicy() Policy {
	return Policy{Delay: DefaultRetryDelay, MaxRetries: 5}
}

func (p Policy) Classify(err error) Decision {
	k := KindOf(err)
	r := rules[k]
	return Decision{Kind: k, Transient: r.transient, Resolve: r.resolve, Delay: p.Delay}
}

// KindOf inspects err's whole chain, joined errors included. Causes are
// checked in order: remote status, timeout, protocol, connection.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var status *StatusError
	if errors.As(err, &status) {
		switch {
		case status.Status == http.StatusNotFound:
			return KindNotFound
		case status.Status >= http.StatusInternalServerError:
			return KindInternal
		}
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return KindTimeout
	}

	var ce *websocket.CloseError
	hasClose := errors.As(err, &ce)
	if errors.Is(err, ErrProtocol) || errors.Is(err, websocket.ErrBadHandshake) ||
		(hasClose && (ce.Code == websocket.CloseProtocolError || ce.Code == websocket.CloseUnsupportedData)) {
		return KindProtocol
	}

	if hasClose {
		return KindConnection
	}
	for _, target := range connectionErrors {
		if errors.Is(err, target) {
			return KindConnection
		}
	}
	var op *net.OpError
	if errors.As(err, &op) {
		return KindConnection
	}
	return KindUnknown
}

var connectionErrors = []error{
	context.Canceled,
	net.ErrClosed,
	io.EOF,
	io.ErrUnexpectedEOF,
	websocket.ErrCloseSent,
}
