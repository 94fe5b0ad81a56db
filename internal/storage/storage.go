// Package storage is the Object Storage layer over Cloud Storage for Firebase.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for operations on a missing object
var ErrNotFound = errors.New("object not found")

// Progress reports how far an upload has come. TotalBytes is zero when unknown.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
}

// Percent returns the completed share in [0, 100], or -1 when the total is unknown
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		return -1
	}
	return float64(p.BytesTransferred) / float64(p.TotalBytes) * 100
}

// Objects is the Object Storage contract
type Objects interface {
	// Upload stores r at objectPath and returns its download URL. When
	// progress is non-nil it receives updates and is closed when Upload returns.
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, progress chan<- Progress) (string, error)
	URL(ctx context.Context, objectPath string) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// GenerateFilePath builds a collision-resistant object path of the form
// <dir>/<userID>_<unix millis>_<random><ext>.
func GenerateFilePath(userID, dir, ext string) string {
	return generateFilePath(userID, dir, ext, time.Now())
}

func generateFilePath(userID, dir, ext string, now time.Time) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	name := fmt.Sprintf("%s_%d_%s%s", userID, now.UnixMilli(), random, strings.ToLower(ext))
	return path.Join(strings.Trim(dir, "/"), name)
}

// DownloadBaseURL is the public Firebase Storage download endpoint
const DownloadBaseURL = "https://firebasestorage.googleapis.com"

// downloadURL formats a token-authorized Firebase download URL
func downloadURL(base, bucket, objectPath, token string) string {
	u := fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media", strings.TrimRight(base, "/"), bucket, url.PathEscape(objectPath))
	if token != "" {
		u += "&token=" + url.QueryEscape(token)
	}
	return u
}

// sendProgress delivers p without blocking the upload
func sendProgress(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}
