// Package transport provides broker connectivity for device messaging.
//
// This file defines the client contract and the transport error type.
// Transport failures are fatal to an operation, unlike per-message
// payload failures which are isolated and dropped; the typed error
// lets callers tell the two apart with errors.As.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opengrid-io/fleetkit/types"
)

// QoSAtLeastOnce is the delivery level for all device messaging.
// Dumps and verdict texts must not be silently lost; duplicates are
// tolerated downstream.
const QoSAtLeastOnce byte = 1

// Handler receives one raw broker message. Implementations must not
// block: delivery callbacks run on the transport's dispatch goroutine,
// so handlers enqueue and return.
type Handler func(msg types.RawMessage)

// Client is the broker connection used by operations.
type Client interface {
	// Connect establishes the broker session.
	Connect(ctx context.Context) error
	// Subscribe registers a handler for a topic filter. Filters may
	// use MQTT wildcards.
	Subscribe(ctx context.Context, filter string, handler Handler) error
	// Unsubscribe removes topic filters, stopping their deliveries.
	Unsubscribe(ctx context.Context, filters ...string) error
	// Publish sends one message at QoSAtLeastOnce.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Disconnect closes the session, flushing in-flight messages.
	Disconnect()
}

// Config holds broker connection parameters.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://10.0.0.5:1883".
	BrokerURL string
	// ClientID identifies this session to the broker.
	ClientID string
	// Username and Password are optional credentials.
	Username string
	Password string
	// ConnectTimeout bounds the initial connect. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout bounds broker connects when Config leaves
// ConnectTimeout zero.
const DefaultConnectTimeout = 10 * time.Second

// Error is a classified transport failure.
// It preserves the underlying error in the chain for errors.As.
type Error struct {
	// Op is the operation that failed ("connect", "subscribe",
	// "publish", "unsubscribe").
	Op string
	// Broker is the broker URL involved.
	Broker string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Broker != "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Broker, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified transport error.
func NewError(op, broker string, err error) *Error {
	return &Error{Op: op, Broker: broker, Err: err}
}

// IsTransportError reports whether err is a transport failure.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
