package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore is the opaque image store consumed by submission moderation.
// Put returns a stable reference; the store never interprets the bytes.
type BlobStore interface {
	Put(data io.Reader, contentType string) (string, error)
	Open(ref string) (io.ReadCloser, error)
	Delete(ref string) error
}

// FileBlobStore keeps blobs as flat files under a single directory,
// named by a generated reference.
type FileBlobStore struct {
	dir string
}

func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob store init: %w", err)
	}
	return &FileBlobStore{dir: dir}, nil
}

func (fs *FileBlobStore) Put(data io.Reader, contentType string) (string, error) {
	ref := uuid.NewString() + extensionFor(contentType)

	f, err := os.Create(filepath.Join(fs.dir, ref))
	if err != nil {
		return "", fmt.Errorf("blob store: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("blob store: %w", err)
	}
	return ref, nil
}

func (fs *FileBlobStore) Open(ref string) (io.ReadCloser, error) {
	// refs are generated server-side, but never trust them as paths
	if ref != filepath.Base(ref) {
		return nil, fmt.Errorf("blob store: invalid reference %q", ref)
	}
	return os.Open(filepath.Join(fs.dir, ref))
}

func (fs *FileBlobStore) Delete(ref string) error {
	if ref != filepath.Base(ref) {
		return fmt.Errorf("blob store: invalid reference %q", ref)
	}
	return os.Remove(filepath.Join(fs.dir, ref))
}

func (fs *FileBlobStore) Dir() string {
	return fs.dir
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
