package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestDirStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	data := []byte("fake png bytes")
	ref, err := s.Put(ctx, data, "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(ref, ".png") {
		t.Fatalf("expected .png ref, got %q", ref)
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestDirStore_RejectsPathRefs(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{"../etc/passwd", "a/b.png", `a\b.png`} {
		if _, err := s.Get(ctx, ref); err == nil {
			t.Fatalf("ref %q must be rejected", ref)
		}
	}
}
