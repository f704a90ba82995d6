// Package export writes a collection snapshot to object storage as
// newline-delimited JSON.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"firedocs/backend/internal/logging"
	"firedocs/backend/internal/store"
	"firedocs/backend/internal/utils"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

var ErrNoStorage = errors.New("storage is not configured")

// ObjectWriter opens a writer for a named object. Close commits it unless
// ctx was canceled first, in which case nothing is stored.
type ObjectWriter interface {
	NewWriter(ctx context.Context, name string) io.WriteCloser
}

type Lister interface {
	List(ctx context.Context, collection string) ([]store.Document, error)
}

// BucketWriter writes objects into a Cloud Storage bucket.
type BucketWriter struct {
	Bucket *storage.BucketHandle
}

func NewBucketWriter(client *storage.Client, bucket string) *BucketWriter {
	return &BucketWriter{Bucket: client.Bucket(bucket)}
}

func (b *BucketWriter) NewWriter(ctx context.Context, name string) io.WriteCloser {
	w := b.Bucket.Object(name).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	return w
}

type Result struct {
	Object string `json:"object"`
	Count  int    `json:"count"`
}

type Exporter struct {
	docs Lister
	dst  ObjectWriter
	log  *slog.Logger
	now  func() time.Time
	// suffix keeps exports started in the same second apart.
	suffix func() string
}

func New(docs Lister, dst ObjectWriter, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Exporter{docs: docs, dst: dst, log: logger, now: time.Now, suffix: shortID}
}

// Export lists collection and streams it to
// exports/<collection>/<timestamp>-<suffix>.ndjson. A failed export leaves
// no object behind.
func (e *Exporter) Export(ctx context.Context, collection string) (Result, error) {
	if e == nil || e.dst == nil {
		return Result{}, ErrNoStorage
	}

	docs, err := e.docs.List(ctx, collection)
	if err != nil {
		return Result{}, err
	}

	name := ObjectName(collection, e.now(), e.suffix())
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := e.dst.NewWriter(wctx, name)
	enc := json.NewEncoder(w)
	for i, d := range docs {
		if err := enc.Encode(d); err != nil {
			cancel()
			_ = w.Close()
			e.log.ErrorContext(ctx, "error exporting document", "collection", collection, "index", i, "error", err)
			return Result{}, fmt.Errorf("encode document %d: %w", i, err)
		}
	}
	if err := w.Close(); err != nil {
		e.log.ErrorContext(ctx, "error writing export", "collection", collection, "object", name, "error", err)
		return Result{}, err
	}

	e.log.InfoContext(ctx, "collection exported", "collection", collection, "object", name, "count", len(docs))
	return Result{Object: name, Count: len(docs)}, nil
}

// ObjectName slugs the collection name so it is a single path segment.
func ObjectName(collection string, t time.Time, suffix string) string {
	dir := utils.Slugify(collection)
	if dir == "" {
		dir = "collection"
	}
	return fmt.Sprintf("exports/%s/%s-%s.ndjson", dir, t.UTC().Format("20060102T150405Z"), suffix)
}

func shortID() string {
	return uuid.NewString()[:8]
}
