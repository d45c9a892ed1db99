// Package storage keeps uploaded session recordings on local disk or in an
// S3-compatible bucket.
//
// Paths are forward-slash separated and relative to the store root.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxRecordingSize is the largest accepted upload.
const MaxRecordingSize = 50 << 20

var (
	ErrTooLarge        = errors.New("storage: recording too large")
	ErrUnsupportedType = errors.New("storage: unsupported audio type")
	ErrInvalidPath     = errors.New("storage: invalid path")
)

// FileStore stores opaque blobs. Implementations are safe for concurrent
// use.
type FileStore interface {
	// Put creates or replaces path.
	Put(ctx context.Context, path string, body io.Reader, contentType string) error
	// Open returns an error wrapping os.ErrNotExist for missing paths.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete is a no-op for missing paths.
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

var audioTypes = map[string]string{
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".webm": "audio/webm",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".caf":  "audio/x-caf",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

// AudioContentType returns the MIME type for a recording file name.
func AudioContentType(filename string) (ext, contentType string, err error) {
	ext = strings.ToLower(path.Ext(filename))
	ct, ok := audioTypes[ext]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return ext, ct, nil
}

// RecordingPath names a recording: <userID>/<UTC timestamp>-<random><ext>.
func RecordingPath(userID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%s-%s%s",
		userID, at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8], ext)
}

// Recording describes a stored upload.
type Recording struct {
	Path        string    `json:"path"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Duration    int64     `json:"durationMs,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SaveRecording validates and stores one upload for userID. Bodies over
// MaxRecordingSize are rejected without storing anything.
func SaveRecording(ctx context.Context, fs FileStore, userID, filename string, body io.Reader, at time.Time) (Recording, error) {
	if userID == "" || strings.ContainsAny(userID, `/\`) {
		return Recording{}, fmt.Errorf("%w: user %q", ErrInvalidPath, userID)
	}
	ext, ct, err := AudioContentType(filename)
	if err != nil {
		return Recording{}, err
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, MaxRecordingSize+1))
	if err != nil {
		return Recording{}, fmt.Errorf("storage: read upload: %w", err)
	}
	if n > MaxRecordingSize {
		return Recording{}, ErrTooLarge
	}
	rec := Recording{
		Path:        RecordingPath(userID, at, ext),
		ContentType: ct,
		Size:        n,
		CreatedAt:   at.UTC(),
	}
	if err := fs.Put(ctx, rec.Path, bytes.NewReader(buf.Bytes()), ct); err != nil {
		return Recording{}, fmt.Errorf("storage: put %s: %w", rec.Path, err)
	}
	return rec, nil
}

// clean rejects absolute paths and parent references.
func clean(p string) (string, error) {
	c := path.Clean(p)
	if p == "" || c == "." || path.IsAbs(c) || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}
