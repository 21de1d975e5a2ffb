package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/opengrid-io/fleetkit/types"
)

// StubClient is an in-process Client for tests and dry runs. Published
// messages are captured instead of sent; Deliver routes a message to
// matching subscriptions as a broker would.
type StubClient struct {
	mu        sync.Mutex
	connected bool
	subs      []stubSub
	published []PublishedMessage

	// ConnectErr, SubscribeErr and PublishErr inject failures.
	ConnectErr   error
	SubscribeErr error
	PublishErr   error
}

type stubSub struct {
	filter  string
	handler Handler
}

// PublishedMessage is one captured publish.
type PublishedMessage struct {
	Topic   string
	Payload []byte
}

// NewStubClient creates a disconnected stub.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Connect marks the stub connected, or fails with ConnectErr.
func (s *StubClient) Connect(_ context.Context) error {
	if s.ConnectErr != nil {
		return NewError("connect", "stub", s.ConnectErr)
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Subscribe registers a handler for a topic filter.
func (s *StubClient) Subscribe(_ context.Context, filter string, handler Handler) error {
	if s.SubscribeErr != nil {
		return NewError("subscribe", "stub", s.SubscribeErr)
	}
	s.mu.Lock()
	s.subs = append(s.subs, stubSub{filter: filter, handler: handler})
	s.mu.Unlock()
	return nil
}

// Unsubscribe drops all subscriptions matching the given filters.
func (s *StubClient) Unsubscribe(_ context.Context, filters ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.subs[:0]
	for _, sub := range s.subs {
		remove := false
		for _, f := range filters {
			if sub.filter == f {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
	return nil
}

// Publish captures the message, or fails with PublishErr.
func (s *StubClient) Publish(_ context.Context, topic string, payload []byte) error {
	if s.PublishErr != nil {
		return NewError("publish", "stub", s.PublishErr)
	}
	s.mu.Lock()
	s.published = append(s.published, PublishedMessage{Topic: topic, Payload: payload})
	s.mu.Unlock()
	return nil
}

// Disconnect marks the stub disconnected.
func (s *StubClient) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// Connected reports the stub's connection state.
func (s *StubClient) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Subscribed returns the filters of active subscriptions in order.
func (s *StubClient) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub.filter
	}
	return out
}

// Published returns captured publishes in order.
func (s *StubClient) Published() []PublishedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PublishedMessage, len(s.published))
	copy(out, s.published)
	return out
}

// Deliver routes a message to matching subscriptions, stamped now.
func (s *StubClient) Deliver(topic string, payload []byte) {
	s.DeliverAt(time.Now(), topic, payload)
}

// DeliverAt routes a message with an explicit arrival time, letting
// tests drive deadline logic deterministically.
func (s *StubClient) DeliverAt(at time.Time, topic string, payload []byte) {
	s.mu.Lock()
	matched := make([]Handler, 0, len(s.subs))
	for _, sub := range s.subs {
		if MatchTopic(sub.filter, topic) {
			matched = append(matched, sub.handler)
		}
	}
	s.mu.Unlock()

	msg := types.RawMessage{ReceivedAt: at, Topic: topic, Payload: payload}
	for _, h := range matched {
		h(msg)
	}
}

// MatchTopic reports whether an MQTT topic filter matches a concrete
// topic. "+" matches exactly one level, "#" matches the remainder and
// must be the last level.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")

	for i, fp := range fparts {
		if fp == "#" {
			return true
		}
		if i >= len(tparts) {
			return false
		}
		if fp != "+" && fp != tparts[i] {
			return false
		}
	}
	return len(fparts) == len(tparts)
}
