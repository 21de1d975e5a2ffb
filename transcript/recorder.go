package transcript

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opengrid-io/fleetkit/types"
)

// Recorder appends captured messages to a transcript file.
type Recorder struct {
	f     *os.File
	count int
}

// Create opens a new transcript at path and writes the capture header.
// An existing file is truncated.
func Create(path, opID, namespace string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating transcript: %w", err)
	}

	header := Header{
		Type:       HeaderType,
		Version:    Version,
		OpID:       opID,
		Namespace:  namespace,
		RecordedAt: time.Now().UTC(),
	}
	if err := EncodeFrame(f, &header); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	return &Recorder{f: f}, nil
}

// Record appends one raw message frame.
func (r *Recorder) Record(msg types.RawMessage) error {
	rec := Record{
		Type:       MessageType,
		ReceivedAt: msg.ReceivedAt,
		Topic:      msg.Topic,
		Payload:    msg.Payload,
	}
	if err := EncodeFrame(r.f, &rec); err != nil {
		return err
	}
	r.count++
	return nil
}

// Count returns how many messages have been recorded.
func (r *Recorder) Count() int {
	return r.count
}

// Close flushes and closes the transcript file.
func (r *Recorder) Close() error {
	return r.f.Close()
}

// Reader iterates a transcript stream.
type Reader struct {
	dec    *FrameDecoder
	header *Header
}

// NewReader wraps a transcript stream. The header frame is read
// lazily on the first call to Header or Next.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: NewFrameDecoder(r)}
}

// Header returns the capture header.
func (r *Reader) Header() (*Header, error) {
	if r.header != nil {
		return r.header, nil
	}

	payload, err := r.dec.ReadFrame()
	if err != nil {
		if err == io.EOF {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "transcript is empty"}
		}
		return nil, err
	}
	decoded, err := DecodeFrame(payload)
	if err != nil {
		return nil, err
	}
	h, ok := decoded.(*Header)
	if !ok {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "transcript does not start with a header frame"}
	}
	r.header = h
	return h, nil
}

// Next returns the next recorded message. io.EOF signals a clean end;
// IsTruncated classifies a transcript cut off mid-frame.
func (r *Reader) Next() (*Record, error) {
	if r.header == nil {
		if _, err := r.Header(); err != nil {
			return nil, err
		}
	}

	payload, err := r.dec.ReadFrame()
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeFrame(payload)
	if err != nil {
		return nil, err
	}
	rec, ok := decoded.(*Record)
	if !ok {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "unexpected header frame mid-transcript"}
	}
	return rec, nil
}
