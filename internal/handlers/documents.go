package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"firedocs/backend/internal/docstore"
	"firedocs/backend/internal/export"
	"firedocs/backend/internal/httpjson"
	"firedocs/backend/internal/logging"
	"firedocs/backend/internal/store"
	"firedocs/backend/internal/utils"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Documents struct {
	store    *store.Store
	exporter *export.Exporter
	log      *slog.Logger
}

func NewDocuments(s *store.Store, exporter *export.Exporter, logger *slog.Logger) *Documents {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Documents{store: s, exporter: exporter, log: logger}
}

// List serves plain, filtered (field/op/value) and ordered (orderBy) listings.
func (h *Documents) List(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	q := r.URL.Query()

	var (
		docs []store.Document
		err  error
	)
	switch {
	case q.Get("field") != "" && q.Get("orderBy") != "":
		httpjson.Error(w, http.StatusBadRequest, "field and orderBy cannot be combined")
		return
	case q.Get("field") != "":
		op := store.Operator(q.Get("op"))
		if op == "" {
			op = store.OpEqual
		}
		var value any
		value, err = filterValue(op, q.Get("value"), q.Get("type"))
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		docs, err = h.store.ListBy(r.Context(), collection, q.Get("field"), op, value)
	case q.Get("orderBy") != "":
		docs, err = h.store.ListOrderBy(r.Context(), collection, q.Get("orderBy"), docstore.Direction(q.Get("direction")))
	default:
		docs, err = h.store.List(r.Context(), collection)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Documents) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, doc)
}

func (h *Documents) Insert(w http.ResponseWriter, r *http.Request) {
	body, err := httpjson.ReadDocument(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := h.store.Insert(r.Context(), chi.URLParam(r, "collection"), store.Document(body))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, map[string]any{"id": id})
}

// Update merges the body into the document named by the path.
func (h *Documents) Update(w http.ResponseWriter, r *http.Request) {
	body, err := httpjson.ReadDocument(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	doc := store.Document(body)
	doc[store.IDField] = chi.URLParam(r, "id")

	if err := h.store.Update(r.Context(), chi.URLParam(r, "collection"), doc); err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"ok": true})
}

type fieldUpdate struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type updateFieldsReq struct {
	Updates []fieldUpdate `json:"updates"`
}

func (h *Documents) UpdateFields(w http.ResponseWriter, r *http.Request) {
	var req updateFieldsReq
	if err := httpjson.Read(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	for _, u := range req.Updates {
		if u.Field == "" {
			httpjson.Error(w, http.StatusBadRequest, "field is required")
			return
		}
	}

	values := make([]any, len(req.Updates))
	for i, u := range req.Updates {
		v, err := httpjson.Numbers(u.Value)
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		values[i] = v
	}

	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	var err error
	switch len(req.Updates) {
	case 1:
		err = h.store.UpdateField(r.Context(), collection, id, req.Updates[0].Field, values[0])
	case 2:
		err = h.store.UpdateFields(r.Context(), collection, id,
			req.Updates[0].Field, values[0], req.Updates[1].Field, values[1])
	default:
		httpjson.Error(w, http.StatusBadRequest, "updates must hold one or two fields")
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"ok": true})
}

type batchUpdateReq struct {
	Documents []map[string]any `json:"documents"`
}

func (h *Documents) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req batchUpdateReq
	if err := httpjson.Read(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	docs := make([]store.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		v, err := httpjson.Numbers(d)
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		docs = append(docs, store.Document(v.(map[string]any)))
	}

	updated, err := h.store.UpdateAll(r.Context(), chi.URLParam(r, "collection"), docs)
	if err != nil {
		httpjson.Write(w, statusFor(err), map[string]any{"error": errorMessage(err), "updated": updated})
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"updated": updated})
}

func (h *Documents) Export(w http.ResponseWriter, r *http.Request) {
	res, err := h.exporter.Export(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		h.log.ErrorContext(r.Context(), "export failed", "collection", chi.URLParam(r, "collection"), "error", err)
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, res)
}

func (h *Documents) fail(w http.ResponseWriter, err error) {
	httpjson.Error(w, statusFor(err), errorMessage(err))
}

func statusFor(err error) int {
	switch {
	case store.IsNotFound(err):
		return http.StatusNotFound
	case store.IsInvalid(err):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrNoStorage):
		return http.StatusServiceUnavailable
	case status.Code(err) == codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

// Backend errors are not echoed to clients; they are already logged.
func errorMessage(err error) string {
	switch statusFor(err) {
	case http.StatusNotFound:
		return "not found"
	case http.StatusInternalServerError:
		return "internal error"
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st.Message()
	}
	return err.Error()
}

// filterValue converts a query-string value. List operators take a
// comma-separated value.
func filterValue(op store.Operator, raw, typ string) (any, error) {
	switch op {
	case store.OpIn, store.OpNotIn, store.OpArrayContainsAny:
		parts := strings.Split(raw, ",")
		vals := make([]any, 0, len(parts))
		for _, p := range parts {
			v, err := scalar(strings.TrimSpace(p), typ)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return vals, nil
	}
	return scalar(raw, typ)
}

func scalar(raw, typ string) (any, error) {
	switch typ {
	case "", "string":
		return raw, nil
	case "number":
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.New("value is not a number")
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("value is not a bool")
		}
		return b, nil
	case "timestamp":
		ts, err := utils.ParseTime(raw)
		if err != nil {
			return nil, errors.New("value is not a timestamp")
		}
		return ts, nil
	}
	return nil, errors.New("type must be string, number, bool or timestamp")
}
