package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firedocs/backend/internal/config"
	"firedocs/backend/internal/docstore"
	"firedocs/backend/internal/export"
	"firedocs/backend/internal/middleware"
	"firedocs/backend/internal/store"

	"firebase.google.com/go/v4/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bucket struct {
	objects map[string]*bytes.Buffer
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (b *bucket) NewWriter(_ context.Context, name string) io.WriteCloser {
	buf := &bytes.Buffer{}
	b.objects[name] = buf
	return nopCloser{buf}
}

type verifier struct{}

func (verifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	switch tok {
	case "admin":
		return &auth.Token{UID: "a", Claims: map[string]interface{}{"admin": true}}, nil
	case "user":
		return &auth.Token{UID: "u", Claims: map[string]interface{}{}}, nil
	}
	return nil, errors.New("bad token")
}

type fixture struct {
	handler http.Handler
	store   *store.Store
	bucket  *bucket
}

func newFixture(t *testing.T, env string, v middleware.TokenVerifier, withStorage bool) fixture {
	t.Helper()
	s := store.New(docstore.NewMemory())
	b := &bucket{objects: map[string]*bytes.Buffer{}}

	var dst export.ObjectWriter
	if withStorage {
		dst = b
	}
	reg := prometheus.NewRegistry()
	h := NewRouter(RouterDeps{
		Cfg:        config.Config{Env: env},
		AuthClient: v,
		Store:      s,
		Exporter:   export.New(s, dst, nil),
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return fixture{handler: h, store: s, bucket: b}
}

func (f fixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, config.EnvDevelopment, nil, false)

	rec, body := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	rec, _ = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	f := newFixture(t, config.EnvDevelopment, nil, false)
	const base = "/v1/collections/users/documents"

	rec, body := f.do(t, http.MethodPost, base, `{"id":"u1","name":"Ann","age":30}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u1", body["id"])

	rec, body = f.do(t, http.MethodPost, base, `{"name":"Bob","age":25}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, body["id"])

	rec, body = f.do(t, http.MethodGet, base+"/u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ann", body["name"])

	rec, _ = f.do(t, http.MethodPatch, base+"/u1", `{"name":"Anne"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPatch, base+"/u1/fields", `{"updates":[{"field":"age","value":31}]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPatch, base+"/u1/fields",
		`{"updates":[{"field":"age","value":32},{"field":"city","value":"Oslo"}]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := f.store.Get(context.Background(), "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Anne", doc["name"])
	assert.Equal(t, int64(32), doc["age"])
	assert.Equal(t, "Oslo", doc["city"])

	rec, body = f.do(t, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["documents"], 2)

	rec, body = f.do(t, http.MethodGet, base+"?field=age&op=%3E&value=30&type=number", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["documents"], 1)
	assert.Equal(t, "Anne", body["documents"].([]any)[0].(map[string]any)["name"])

	rec, body = f.do(t, http.MethodGet, base+"?field=name&op=in&value=Bob,Zed", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["documents"], 1)

	rec, body = f.do(t, http.MethodGet, base+"?orderBy=age&direction=desc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	docs := body["documents"].([]any)
	require.Len(t, docs, 2)
	assert.Equal(t, "Anne", docs[0].(map[string]any)["name"])
	assert.Equal(t, "Bob", docs[1].(map[string]any)["name"])
}

func TestDocumentErrors(t *testing.T) {
	f := newFixture(t, config.EnvDevelopment, nil, false)
	const base = "/v1/collections/users/documents"

	tests := []struct {
		name, method, path, body string
		status                   int
	}{
		{"get missing", http.MethodGet, base + "/nope", "", http.StatusNotFound},
		{"update missing", http.MethodPatch, base + "/nope", `{"a":1}`, http.StatusNotFound},
		{"field on missing", http.MethodPatch, base + "/nope/fields", `{"updates":[{"field":"a","value":1}]}`, http.StatusNotFound},
		{"insert not object", http.MethodPost, base, `[1,2]`, http.StatusBadRequest},
		{"insert numeric id", http.MethodPost, base, `{"id":7}`, http.StatusBadRequest},
		{"bad operator", http.MethodGet, base + "?field=a&op=~&value=1", "", http.StatusBadRequest},
		{"bad type", http.MethodGet, base + "?field=a&value=1&type=date", "", http.StatusBadRequest},
		{"bad number", http.MethodGet, base + "?field=a&value=x&type=number", "", http.StatusBadRequest},
		{"filter with order", http.MethodGet, base + "?field=a&value=1&orderBy=a", "", http.StatusBadRequest},
		{"bad direction", http.MethodGet, base + "?orderBy=a&direction=up", "", http.StatusBadRequest},
		{"no field updates", http.MethodPatch, base + "/x/fields", `{"updates":[]}`, http.StatusBadRequest},
		{"three field updates", http.MethodPatch, base + "/x/fields",
			`{"updates":[{"field":"a","value":1},{"field":"b","value":2},{"field":"c","value":3}]}`, http.StatusBadRequest},
		{"empty field name", http.MethodPatch, base + "/x/fields", `{"updates":[{"field":"","value":1}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestBatchUpdate(t *testing.T) {
	f := newFixture(t, config.EnvDevelopment, nil, false)
	ctx := context.Background()
	_, err := f.store.Insert(ctx, "items", store.Document{"id": "a", "n": int64(1)})
	require.NoError(t, err)
	_, err = f.store.Insert(ctx, "items", store.Document{"id": "b", "n": int64(2)})
	require.NoError(t, err)

	rec, body := f.do(t, http.MethodPost, "/v1/collections/items/batch-update",
		`{"documents":[{"id":"a","n":10},{"id":"ghost","n":0},{"id":"b","n":20}]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["updated"])

	doc, err := f.store.Get(ctx, "items", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(20), doc["n"])
	_, err = f.store.Get(ctx, "items", "ghost")
	assert.True(t, store.IsNotFound(err))

	rec, body = f.do(t, http.MethodPost, "/v1/collections/items/batch-update",
		`{"documents":[{"id":"a","n":11},{"n":0}]}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, float64(1), body["updated"])
}

func TestExport(t *testing.T) {
	t.Run("no storage", func(t *testing.T) {
		f := newFixture(t, config.EnvDevelopment, nil, false)
		rec, _ := f.do(t, http.MethodPost, "/v1/collections/items/export", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("writes collection", func(t *testing.T) {
		f := newFixture(t, config.EnvDevelopment, nil, true)
		_, err := f.store.Insert(context.Background(), "items", store.Document{"id": "a"})
		require.NoError(t, err)

		rec, body := f.do(t, http.MethodPost, "/v1/collections/items/export", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), body["count"])
		object := body["object"].(string)
		assert.True(t, strings.HasPrefix(object, "exports/items/"))
		require.Contains(t, f.bucket.objects, object)
		assert.JSONEq(t, `{"id":"a"}`, f.bucket.objects[object].String())
	})
}

func TestAuth(t *testing.T) {
	f := newFixture(t, config.EnvProduction, verifier{}, true)
	const base = "/v1/collections/items/documents"

	rec, _ := f.do(t, http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, base, "", "bogus")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, base, "", "user")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/v1/collections/items/export", "", "user")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/v1/collections/items/export", "", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProductionWithoutAuthIsClosed(t *testing.T) {
	f := newFixture(t, config.EnvProduction, nil, false)

	rec, _ := f.do(t, http.MethodGet, "/v1/collections/items/documents", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
