package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store keeps CV attachments on the local filesystem, addressed by content
// hash so re-uploads of the same file deduplicate naturally. Keys look like
// "ab/cdef0123...45.pdf" relative to the root directory.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create blob store root: %w", err)
	}
	return &Store{root: trimmed}, nil
}

// Put stores the content and returns its object key.
func (s *Store) Put(fileName string, content io.Reader) (string, error) {
	if s == nil {
		return "", fmt.Errorf("blob store is nil")
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("upload is empty")
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := path.Join(digest[:2], digest[2:]+normalizeExtension(fileName))

	target := filepath.Join(s.root, filepath.FromSlash(key))
	if _, err := os.Stat(target); err == nil {
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize blob: %w", err)
	}

	return key, nil
}

// PutFile stores an existing file on disk.
func (s *Store) PutFile(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()
	return s.Put(filepath.Base(filePath), file)
}

// Open returns a reader for a stored object.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	resolved, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return file, nil
}

// URLPath returns the serving path for a stored object.
func (s *Store) URLPath(key string) string {
	return "/files/cv/" + strings.TrimPrefix(key, "/")
}

// Delete removes a stored object. Deleting a missing object is not an error.
func (s *Store) Delete(key string) error {
	resolved, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

func (s *Store) resolve(key string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(key))
	if cleaned == "/" || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

func normalizeExtension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	switch ext {
	case ".pdf", ".doc", ".docx", ".txt", ".html", ".htm", ".rtf", ".odt":
		return ext
	default:
		return ""
	}
}
