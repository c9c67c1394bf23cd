package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore implements messaging.AttachmentStore against a flat,
// content-addressed directory outside any project's Git working tree:
// attachments are shared across projects by sha256, so two sends of the
// same file never duplicate bytes on disk.
type BlobStore struct {
	root string
}

// NewBlobStore roots the store at <storageRoot>/attachments.
func NewBlobStore(storageRoot string) *BlobStore {
	return &BlobStore{root: filepath.Join(storageRoot, "attachments")}
}

func (b *BlobStore) blobPath(sha256Hex, ext string) string {
	prefix := sha256Hex
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	name := sha256Hex
	if ext != "" {
		name = sha256Hex + "." + ext
	}
	return filepath.Join(b.root, prefix, name)
}

// Has reports whether content with the given sha256 is already stored,
// trying every extension previously seen under that prefix.
func (b *BlobStore) Has(ctx context.Context, sha256Hex string) (bool, error) {
	dir := filepath.Dir(b.blobPath(sha256Hex, ""))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading blob directory: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), sha256Hex) {
			return true, nil
		}
	}
	return false, nil
}

// Put stores content under its sha256 and returns the path relative to
// the storage root (attachments/<sha[:2]>/<sha>.<ext>), for recording
// against a message's attachment list.
func (b *BlobStore) Put(ctx context.Context, sha256Hex string, ext string, data []byte) (string, error) {
	full := b.blobPath(sha256Hex, ext)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	rel, err := filepath.Rel(b.root, full)
	if err != nil {
		return full, nil
	}
	return filepath.Join("attachments", rel), nil
}
