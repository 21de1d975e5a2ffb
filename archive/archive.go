// Package archive persists operation artifacts to a storage backend.
//
// Artifacts are the byproducts of an operation: reconstructed dumps,
// header metadata, run reports, transcripts. The primary copy is
// always written locally by the operation itself; a Store is the
// optional offsite copy, so store failures are reported but never
// change a verdict.
package archive

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opengrid-io/fleetkit/iox"
)

// Store writes named artifacts to a backend.
type Store interface {
	// Put writes one artifact. The name must be a relative path
	// without ".." segments.
	Put(ctx context.Context, name, contentType string, data []byte) error
	// Location describes where artifacts land, for reports.
	Location() string
}

// ValidateName rejects names that would escape the archive root.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name is empty")
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("artifact name %q is absolute", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("artifact name %q contains ..", name)
		}
	}
	return nil
}

// FSStore writes artifacts under a local directory.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

// Put writes the artifact atomically under the root.
func (s *FSStore) Put(_ context.Context, name, _ string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	path := s.root + "/" + name
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("archive write %s: %w", name, err)
	}
	return nil
}

// Location returns the root directory.
func (s *FSStore) Location() string {
	return s.root
}

// StubStore records Put calls for testing.
type StubStore struct {
	mu    sync.Mutex
	Files []StubRecord

	// PutErr injects a failure for every Put.
	PutErr error
}

// StubRecord is a recorded artifact write.
type StubRecord struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewStubStore creates a new stub store.
func NewStubStore() *StubStore {
	return &StubStore{}
}

// Put implements Store by recording the call.
func (s *StubStore) Put(_ context.Context, name, contentType string, data []byte) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files = append(s.Files, StubRecord{Name: name, ContentType: contentType, Data: data})
	return nil
}

// Location identifies the stub in reports.
func (s *StubStore) Location() string {
	return "stub"
}

// Recorded returns recorded writes in order.
func (s *StubStore) Recorded() []StubRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubRecord, len(s.Files))
	copy(out, s.Files)
	return out
}

// Verify implementations satisfy Store.
var (
	_ Store = (*FSStore)(nil)
	_ Store = (*StubStore)(nil)
	_ Store = (*S3Store)(nil)
)
