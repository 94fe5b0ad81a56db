package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
)

// downloadTokenKey is the object metadata key Firebase reads download tokens from
const downloadTokenKey = "firebaseStorageDownloadTokens"

// Bucket implements Objects on a Cloud Storage bucket
type Bucket struct {
	handle       *gcs.BucketHandle
	name         string
	downloadBase string
	logger       *slog.Logger
}

// Ensure Bucket implements Objects interface
var _ Objects = (*Bucket)(nil)

// NewBucket wraps a bucket handle
func NewBucket(handle *gcs.BucketHandle, name string, logger *slog.Logger) *Bucket {
	if logger == nil {
		logger = slog.Default()
	}
	base := DownloadBaseURL
	if host := os.Getenv("FIREBASE_STORAGE_EMULATOR_HOST"); host != "" {
		base = "http://" + host
	}
	return &Bucket{handle: handle, name: name, downloadBase: base, logger: logger}
}

// NewFirebaseBucket opens the named bucket, or the app's default bucket when
// name is empty, through the Firebase Admin SDK.
func NewFirebaseBucket(ctx context.Context, app *firebase.App, name string, logger *slog.Logger) (*Bucket, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage client: %w", err)
	}

	var handle *gcs.BucketHandle
	if name == "" {
		handle, err = client.DefaultBucket()
	} else {
		handle, err = client.Bucket(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}

	return NewBucket(handle, handle.BucketName(), logger), nil
}

// Name returns the bucket name
func (b *Bucket) Name() string {
	return b.name
}

// Upload implements Objects
func (b *Bucket) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, progress chan<- Progress) (string, error) {
	if progress != nil {
		defer close(progress)
	}

	token := uuid.NewString()
	w := b.handle.Object(objectPath).NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(path.Ext(objectPath))
	w.Metadata = map[string]string{downloadTokenKey: token}
	w.ProgressFunc = func(n int64) {
		sendProgress(progress, Progress{BytesTransferred: n, TotalBytes: size})
	}

	written, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	total := size
	if total <= 0 {
		total = written
	}
	sendProgress(progress, Progress{BytesTransferred: written, TotalBytes: total})

	b.logger.Info("object uploaded", "bucket", b.name, "path", objectPath, "bytes", written)
	return downloadURL(b.downloadBase, b.name, objectPath, token), nil
}

// URL implements Objects. Objects uploaded without a download token get one.
func (b *Bucket) URL(ctx context.Context, objectPath string) (string, error) {
	obj := b.handle.Object(objectPath)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("failed to get URL for %s: %w", objectPath, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get URL for %s: %w", objectPath, err)
	}

	token, _, _ := strings.Cut(attrs.Metadata[downloadTokenKey], ",")
	if token == "" {
		token = uuid.NewString()
		metadata := map[string]string{downloadTokenKey: token}
		for k, v := range attrs.Metadata {
			if k != downloadTokenKey {
				metadata[k] = v
			}
		}
		if _, err := obj.Update(ctx, gcs.ObjectAttrsToUpdate{Metadata: metadata}); err != nil {
			return "", fmt.Errorf("failed to add download token to %s: %w", objectPath, err)
		}
	}
	return downloadURL(b.downloadBase, b.name, objectPath, token), nil
}

// Delete implements Objects
func (b *Bucket) Delete(ctx context.Context, objectPath string) error {
	if err := b.handle.Object(objectPath).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete %s: %w", objectPath, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", objectPath, err)
	}
	return nil
}
