// Package assets stores uploaded map backgrounds and returns the reference
// clients load them from.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// objectName builds a collision-free object name with an extension that
// matches the content type.
func objectName(prefix, mimeType string) string {
	ext := ""
	if mt := mimetype.Lookup(mimeType); mt != nil {
		ext = mt.Extension()
	}
	return strings.TrimSuffix(prefix, "/") + "/" + uuid.NewString() + ext
}

// LocalHost writes assets into a directory served by the HTTP server.
type LocalHost struct {
	dir     string
	baseURL string
}

func NewLocalHost(dir, baseURL string) (*LocalHost, error) {
	if dir == "" {
		return nil, errors.New("asset dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "maps"), 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &LocalHost{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (h *LocalHost) Dir() string {
	return h.dir
}

func (h *LocalHost) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := objectName("maps", mimeType)
	if err := os.WriteFile(filepath.Join(h.dir, filepath.FromSlash(name)), data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	return h.baseURL + "/" + name, nil
}

// BucketHost writes assets to the Firebase default storage bucket.
type BucketHost struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewBucketHost(ctx context.Context, app *firebase.App, bucketName string) (*BucketHost, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Storage client: %v", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("error opening bucket %s: %v", bucketName, err)
	}
	return &BucketHost{bucket: bucket, bucketName: bucketName}, nil
}

func (h *BucketHost) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	name := objectName("maps", mimeType)
	w := h.bucket.Object(name).NewWriter(ctx)
	w.ContentType = mimeType
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return PublicURL(h.bucketName, name), nil
}

func PublicURL(bucketName, object string) string {
	return "https://storage.googleapis.com/" + bucketName + "/" + object
}
