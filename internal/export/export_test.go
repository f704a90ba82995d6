package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"firedocs/backend/internal/docstore"
	"firedocs/backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memObject commits on Close unless its context was canceled, like a
// storage.Writer.
type memObject struct {
	bytes.Buffer
	ctx       context.Context
	committed bool
	err       error
}

func (o *memObject) Close() error {
	if err := o.ctx.Err(); err != nil {
		return err
	}
	if o.err != nil {
		return o.err
	}
	o.committed = true
	return nil
}

type memBucket struct {
	objects  map[string]*memObject
	closeErr error
}

func (b *memBucket) NewWriter(ctx context.Context, name string) io.WriteCloser {
	if b.objects == nil {
		b.objects = map[string]*memObject{}
	}
	o := &memObject{ctx: ctx, err: b.closeErr}
	b.objects[name] = o
	return o
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	s := store.New(docstore.NewMemory())
	for _, d := range []store.Document{{"id": "a", "n": 1}, {"id": "b", "n": 2}} {
		_, err := s.Insert(ctx, "videos", d)
		require.NoError(t, err)
	}
	bucket := &memBucket{}
	e := New(s, bucket, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	e.suffix = func() string { return "abcd1234" }

	res, err := e.Export(ctx, "videos")
	require.NoError(t, err)

	assert.Equal(t, Result{Object: "exports/videos/20260304T050607Z-abcd1234.ndjson", Count: 2}, res)
	obj := bucket.objects[res.Object]
	require.NotNil(t, obj)
	assert.True(t, obj.committed)
	lines := strings.Split(strings.TrimSpace(obj.String()), "\n")
	assert.Equal(t, []string{`{"id":"a","n":1}`, `{"id":"b","n":2}`}, lines)
}

func TestExportEmptyCollection(t *testing.T) {
	bucket := &memBucket{}
	e := New(store.New(docstore.NewMemory()), bucket, nil)

	res, err := e.Export(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, bucket.objects[res.Object].String())
}

func TestExportErrors(t *testing.T) {
	var nilExporter *Exporter
	_, err := nilExporter.Export(context.Background(), "videos")
	assert.ErrorIs(t, err, ErrNoStorage)

	_, err = New(store.New(docstore.NewMemory()), nil, nil).Export(context.Background(), "videos")
	assert.ErrorIs(t, err, ErrNoStorage)

	writeErr := errors.New("bucket gone")
	e := New(store.New(docstore.NewMemory()), &memBucket{closeErr: writeErr}, nil)
	_, err = e.Export(context.Background(), "videos")
	assert.ErrorIs(t, err, writeErr)
}

func TestExportEncodeFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	s := store.New(docstore.NewMemory())
	for _, d := range []store.Document{{"id": "a", "n": 1}, {"id": "b", "n": math.NaN()}} {
		_, err := s.Insert(ctx, "videos", d)
		require.NoError(t, err)
	}
	bucket := &memBucket{}

	_, err := New(s, bucket, nil).Export(ctx, "videos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode document 1")

	require.Len(t, bucket.objects, 1)
	for name, obj := range bucket.objects {
		assert.False(t, obj.committed, name)
	}
}

func TestExportSameSecondNamesDiffer(t *testing.T) {
	ctx := context.Background()
	bucket := &memBucket{}
	e := New(store.New(docstore.NewMemory()), bucket, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	first, err := e.Export(ctx, "videos")
	require.NoError(t, err)
	second, err := e.Export(ctx, "videos")
	require.NoError(t, err)

	assert.NotEqual(t, first.Object, second.Object)
	assert.Len(t, bucket.objects, 2)
}

func TestObjectName(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	assert.Equal(t, "exports/user-profiles/20260304T040607Z-x1.ndjson", ObjectName("User_Profiles", at, "x1"))
	assert.Equal(t, "exports/collection/20260304T040607Z-x1.ndjson", ObjectName("日本", at, "x1"))
	assert.Len(t, shortID(), 8)
}
