package messaging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	// Registered for their image.RegisterFormat side effect so
	// image.Decode can sniff and decode whatever format the sender
	// actually attached; only png is re-encoded to explicitly.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// AttachmentPolicy holds the server-side settings that govern how a raw
// attachment path becomes an inline, file, or missing entry.
type AttachmentPolicy struct {
	InlineMaxBytes     int64
	ConvertImages      bool
	KeepOriginalImages bool
	StrictAttachments  bool
}

// AttachmentStore abstracts the content-addressed attachments/ directory so
// the messaging package doesn't need to know the archive's filesystem
// layout.
type AttachmentStore interface {
	// Has reports whether content with the given sha256 is already stored.
	Has(ctx context.Context, sha256Hex string) (bool, error)
	// Put stores content under its sha256 and returns the archive-relative
	// path it was written to.
	Put(ctx context.Context, sha256Hex string, ext string, data []byte) (string, error)
}

// BuildAttachment reads attachmentPath from disk and classifies it:
// inline (data URI) when within the size threshold, a content-addressed
// file reference otherwise, or a missing placeholder when the path
// cannot be read.
//
// Size classification is inclusive of the threshold: a payload exactly
// inline_image_max_bytes long is still embedded inline.
//
// convertOverride carries a per-call convert_images argument; nil defers
// to policy.ConvertImages.
func BuildAttachment(ctx context.Context, store AttachmentStore, policy AttachmentPolicy, attachmentPath string, convertOverride *bool) (Attachment, error) {
	data, err := os.ReadFile(attachmentPath)
	if err != nil {
		if policy.StrictAttachments {
			return Attachment{}, fmt.Errorf("reading attachment %s: %w", attachmentPath, err)
		}
		return Attachment{Type: AttachmentMissing, OriginalPath: attachmentPath}, nil
	}

	mediaType := http.DetectContentType(data)
	ext := strings.TrimPrefix(filepath.Ext(attachmentPath), ".")
	if ext == "" {
		ext = extensionForMediaType(mediaType)
	}

	convertImages := policy.ConvertImages
	if convertOverride != nil {
		convertImages = *convertOverride
	}

	var originalPath string
	if convertImages && needsImageConversion(mediaType) {
		converted, ok := convertImageToPNG(data)
		if ok {
			if policy.KeepOriginalImages {
				originalPath, err = putAttachment(ctx, store, data, ext)
				if err != nil {
					return Attachment{}, fmt.Errorf("storing original attachment: %w", err)
				}
			}
			data = converted
			mediaType = "image/png"
			ext = "png"
		}
	}

	sum := sha256.Sum256(data)
	shaHex := hex.EncodeToString(sum[:])

	if int64(len(data)) <= policy.InlineMaxBytes {
		return Attachment{
			Type:         AttachmentInline,
			MediaType:    mediaType,
			Bytes:        int64(len(data)),
			SHA256:       shaHex,
			DataURI:      fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data)),
			OriginalPath: originalPath,
		}, nil
	}

	path, err := putAttachment(ctx, store, data, ext)
	if err != nil {
		return Attachment{}, fmt.Errorf("storing attachment: %w", err)
	}

	return Attachment{
		Type:         AttachmentFile,
		MediaType:    mediaType,
		Bytes:        int64(len(data)),
		SHA256:       shaHex,
		Path:         path,
		OriginalPath: originalPath,
	}, nil
}

// putAttachment stores data under its content hash, skipping the write
// when an identical blob is already in the store.
func putAttachment(ctx context.Context, store AttachmentStore, data []byte, ext string) (string, error) {
	sum := sha256.Sum256(data)
	shaHex := hex.EncodeToString(sum[:])
	exists, err := store.Has(ctx, shaHex)
	if err != nil {
		return "", fmt.Errorf("checking attachment store: %w", err)
	}
	if exists {
		return fmt.Sprintf("attachments/%s/%s.%s", shaHex[:2], shaHex, ext), nil
	}
	return store.Put(ctx, shaHex, ext, data)
}

// needsImageConversion reports whether mediaType is an image format that
// isn't already safe to render in a browser or mail client.
func needsImageConversion(mediaType string) bool {
	switch mediaType {
	case "image/png", "image/jpeg", "image/gif":
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

// convertImageToPNG decodes data using any registered image format and
// re-encodes it as PNG. It reports ok=false rather than an error when the
// bytes can't be decoded as an image, so an unrecognized or corrupt
// attachment is stored unconverted instead of rejected outright.
func convertImageToPNG(data []byte) (converted []byte, ok bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func extensionForMediaType(mediaType string) string {
	switch {
	case strings.Contains(mediaType, "png"):
		return "png"
	case strings.Contains(mediaType, "jpeg"):
		return "jpg"
	case strings.Contains(mediaType, "gif"):
		return "gif"
	case strings.Contains(mediaType, "webp"):
		return "webp"
	case strings.Contains(mediaType, "pdf"):
		return "pdf"
	default:
		return "bin"
	}
}
