package blob

import (
	"io"
	"strings"
	"testing"
)

func TestStore_PutIsContentAddressed(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	first, err := store.Put("john_smith_cv.pdf", strings.NewReader("cv bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := store.Put("renamed.pdf", strings.NewReader("cv bytes"))
	if err != nil {
		t.Fatalf("Put again: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical content to share a key: %q vs %q", first, second)
	}
	if !strings.HasSuffix(first, ".pdf") {
		t.Fatalf("expected key to keep the extension, got %q", first)
	}
}

func TestStore_OpenRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	key, err := store.Put("cv.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	reader, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Delete("ab/doesnotexist.pdf"); err != nil {
		t.Fatalf("expected missing delete to succeed, got %v", err)
	}
}

func TestStore_RejectsTraversalKeys(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Open("../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
}

func TestStore_RejectsEmptyUpload(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Put("cv.pdf", strings.NewReader("")); err == nil {
		t.Fatalf("expected empty upload to be rejected")
	}
}
