// Package route classifies incoming broker messages into typed events.
//
// Topics follow <namespace>/<device-id>/<category>[/<subtype>...] with
// categories measurement, status, error, command, coredump/header,
// coredump/chunk/<index>, coredump/complete. Matching is deliberately
// lenient: category checks use substring presence and suffix equality
// rather than a full topic grammar, since device firmware varies in
// topic segment depth.
package route

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opengrid-io/fleetkit/types"
)

// DefaultNamespace is the topic namespace used when none is
// configured.
const DefaultNamespace = "opengrid"

// ParseError reports a malformed payload on an otherwise recognized
// topic. The message is dropped; the operation continues.
type ParseError struct {
	// Topic is the topic the malformed payload arrived on.
	Topic string
	// Err is the underlying error.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("payload parse error on %s: %v", e.Topic, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError returns true if the error is a payload parse error.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// Router classifies raw messages for one topic namespace.
// Stateless and safe for concurrent use.
type Router struct {
	namespace string
}

// NewRouter creates a router for the given topic namespace.
func NewRouter(namespace string) *Router {
	return &Router{namespace: namespace}
}

// Namespace returns the topic namespace this router matches against.
func (r *Router) Namespace() string {
	return r.namespace
}

// Classify maps a raw message to a typed event. The returned event is
// always usable: on payload parse failure it carries
// types.EventUnrecognized and the error describes the failure. Errors
// are reports, never reasons to abort the delivery path.
func (r *Router) Classify(msg types.RawMessage) (types.Event, error) {
	ev := types.Event{
		Kind:       types.EventUnrecognized,
		Device:     r.deviceFromTopic(msg.Topic),
		Topic:      msg.Topic,
		ReceivedAt: msg.ReceivedAt,
	}

	switch {
	case strings.Contains(msg.Topic, "/coredump/header"):
		header, err := parseHeader(msg.Payload)
		if err != nil {
			return ev, &ParseError{Topic: msg.Topic, Err: err}
		}
		ev.Kind = types.EventHeader
		ev.Header = header

	case strings.Contains(msg.Topic, "/coredump/chunk/"):
		chunk, err := parseChunk(msg.Payload)
		if err != nil {
			return ev, &ParseError{Topic: msg.Topic, Err: err}
		}
		ev.Kind = types.EventChunk
		ev.Chunk = chunk

	case strings.Contains(msg.Topic, "/coredump/complete"):
		complete, err := parseComplete(msg.Payload)
		if err != nil {
			return ev, &ParseError{Topic: msg.Topic, Err: err}
		}
		ev.Kind = types.EventComplete
		ev.Complete = complete

	case strings.HasSuffix(msg.Topic, "/measurement"):
		ev.Kind = types.EventTelemetry

	case strings.HasSuffix(msg.Topic, "/status"):
		ev.Kind = types.EventStatus
		ev.Text = string(msg.Payload)

	case strings.HasSuffix(msg.Topic, "/error"):
		ev.Kind = types.EventError
		ev.Text = string(msg.Payload)
	}

	return ev, nil
}

// deviceFromTopic extracts the device identifier: the first segment
// after the namespace prefix. Topics outside the namespace fall back to
// positional extraction so foreign-but-shaped traffic still carries a
// device for audit purposes.
func (r *Router) deviceFromTopic(topic string) string {
	rest := strings.TrimPrefix(topic, r.namespace+"/")
	if rest == topic {
		parts := strings.SplitN(topic, "/", 3)
		if len(parts) >= 2 {
			return parts[1]
		}
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

// parseChunk extracts the load-bearing chunk fields. chunk_index and
// data are required; total_chunks defaults to zero when absent (devices
// may under-report early and correct later).
func parseChunk(payload []byte) (*types.ChunkPayload, error) {
	fields, err := parseObject(payload)
	if err != nil {
		return nil, err
	}

	index, ok := toInt(fields["chunk_index"])
	if !ok {
		return nil, fmt.Errorf("chunk missing chunk_index: %v", fields["chunk_index"])
	}

	encoded, ok := fields["data"].(string)
	if !ok {
		return nil, errors.New("chunk missing data field")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("chunk data is not valid base64: %w", err)
	}

	total, _ := toInt(fields["total_chunks"])

	return &types.ChunkPayload{
		Index: index,
		Total: total,
		Data:  data,
	}, nil
}

// parseComplete is lenient: missing counters default to zero. The
// completion message is corroborating evidence, never the authority on
// completeness.
func parseComplete(payload []byte) (*types.CompletePayload, error) {
	fields, err := parseObject(payload)
	if err != nil {
		return nil, err
	}

	totalChunks, _ := toInt(fields["total_chunks"])
	totalSize, _ := toInt64(fields["total_size"])

	return &types.CompletePayload{
		TotalChunks: totalChunks,
		TotalSize:   totalSize,
	}, nil
}

// parseHeader keeps the full object so the sibling metadata file
// preserves whatever the firmware published.
func parseHeader(payload []byte) (map[string]any, error) {
	return parseObject(payload)
}

func parseObject(payload []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return fields, nil
}
