package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"coredump_aabbcc.bin", false},
		{"ops/2025-06-01/coredump_aabbcc.bin", false},
		{"", true},
		{"/etc/passwd", true},
		{"../outside.bin", true},
		{"nested/../../outside.bin", true},
	}

	for _, tt := range tests {
		err := ValidateName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestFSStore_Put(t *testing.T) {
	root := t.TempDir()
	s := NewFSStore(root)

	if err := s.Put(context.Background(), "ops/coredump_aabbcc.bin", "application/octet-stream", []byte{1, 2, 3}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "ops", "coredump_aabbcc.bin"))
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if len(data) != 3 || data[0] != 1 {
		t.Errorf("artifact content = %v", data)
	}

	if s.Location() != root {
		t.Errorf("Location = %q, want %q", s.Location(), root)
	}
}

func TestFSStore_RejectsEscapingNames(t *testing.T) {
	s := NewFSStore(t.TempDir())
	if err := s.Put(context.Background(), "../escape.bin", "", []byte("x")); err == nil {
		t.Fatal("expected error for escaping name")
	}
}

func TestStubStore_Records(t *testing.T) {
	s := NewStubStore()

	if err := s.Put(context.Background(), "report.json", "application/json", []byte("{}")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec := s.Recorded()
	if len(rec) != 1 {
		t.Fatalf("recorded %d writes, want 1", len(rec))
	}
	if rec[0].Name != "report.json" || rec[0].ContentType != "application/json" {
		t.Errorf("recorded %+v", rec[0])
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		path       string
		wantBucket string
		wantPrefix string
	}{
		{"fleet-dumps", "fleet-dumps", ""},
		{"fleet-dumps/site-a", "fleet-dumps", "site-a"},
		{"fleet-dumps/site-a/devices", "fleet-dumps", "site-a/devices"},
	}

	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.path)
		if bucket != tt.wantBucket || prefix != tt.wantPrefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)",
				tt.path, bucket, prefix, tt.wantBucket, tt.wantPrefix)
		}
	}
}

func TestS3Config_Validate(t *testing.T) {
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty bucket accepted")
	}
	cfg.Bucket = "fleet-dumps"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

// fakeS3 captures PutObject calls.
type fakeS3 struct {
	keys  []string
	types []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	f.types = append(f.types, *in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_KeyComposition(t *testing.T) {
	fake := &fakeS3{}
	s := newS3StoreWithClient(fake, S3Config{Bucket: "fleet-dumps", Prefix: "site-a/"})

	if err := s.Put(context.Background(), "coredump_aabbcc.bin", "application/octet-stream", []byte{1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if len(fake.keys) != 1 || fake.keys[0] != "site-a/coredump_aabbcc.bin" {
		t.Errorf("keys = %v, want [site-a/coredump_aabbcc.bin]", fake.keys)
	}
	if fake.types[0] != "application/octet-stream" {
		t.Errorf("content type = %q", fake.types[0])
	}
	if s.Location() != "s3://fleet-dumps/site-a/" {
		t.Errorf("Location = %q", s.Location())
	}
}

func TestS3Store_NoPrefix(t *testing.T) {
	fake := &fakeS3{}
	s := newS3StoreWithClient(fake, S3Config{Bucket: "fleet-dumps"})

	if err := s.Put(context.Background(), "report.json", "application/json", nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if fake.keys[0] != "report.json" {
		t.Errorf("key = %q, want report.json", fake.keys[0])
	}
	if s.Location() != "s3://fleet-dumps" {
		t.Errorf("Location = %q", s.Location())
	}
}
