// Package store is the document store facade. Each method is one round trip
// to the backend; failures are logged with context and returned unchanged.
package store

import (
	"context"
	"log/slog"
	"time"

	"firedocs/backend/internal/docstore"
	"firedocs/backend/internal/logging"
	"firedocs/backend/internal/metrics"

	"google.golang.org/api/iterator"
)

// Document is an arbitrary record. An "id" key, when present, names the
// document it is written to.
type Document map[string]any

const IDField = "id"

type Operator string

const (
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpLess             Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpGreater          Operator = ">"
	OpGreaterOrEqual   Operator = ">="
	OpIn               Operator = "in"
	OpNotIn            Operator = "not-in"
	OpArrayContains    Operator = "array-contains"
	OpArrayContainsAny Operator = "array-contains-any"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual,
		OpIn, OpNotIn, OpArrayContains, OpArrayContainsAny:
		return true
	}
	return false
}

type Store struct {
	ds      docstore.DocStore
	log     *slog.Logger
	metrics *metrics.Store
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Store) Option {
	return func(s *Store) { s.metrics = m }
}

func New(ds docstore.DocStore, opts ...Option) *Store {
	s := &Store{ds: ds, log: logging.Discard()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the data of collection/id.
func (s *Store) Get(ctx context.Context, collection, id string) (doc Document, err error) {
	defer s.observe("get", time.Now(), &err)

	if id == "" {
		s.log.ErrorContext(ctx, "error get document", "collection", collection, "error", ErrMissingID)
		return nil, ErrMissingID
	}
	snap, err := s.ds.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "error get document", "collection", collection, "id", id, "error", err)
		return nil, err
	}
	if !snap.Exists {
		s.log.ErrorContext(ctx, "error get document", "collection", collection, "id", id, "error", ErrNotFound)
		return nil, ErrNotFound
	}
	s.log.DebugContext(ctx, "document read", "collection", collection, "id", snap.ID)
	return Document(snap.Data), nil
}

// Insert writes doc under doc["id"] when that is a non-empty string,
// replacing any existing document, and under a generated id otherwise.
// It returns the id written.
func (s *Store) Insert(ctx context.Context, collection string, doc Document) (id string, err error) {
	defer s.observe("insert", time.Now(), &err)

	id, err = documentID(doc)
	if err != nil {
		s.log.ErrorContext(ctx, "error adding document", "collection", collection, "document", doc, "error", err)
		return "", err
	}

	col := s.ds.Collection(collection)
	var ref docstore.Doc
	if id != "" {
		ref = col.Doc(id)
	} else {
		ref = col.NewDoc()
	}
	if err := ref.Set(ctx, doc); err != nil {
		s.log.ErrorContext(ctx, "error adding document", "collection", collection, "document", doc, "error", err)
		return "", err
	}
	s.log.DebugContext(ctx, "document written", "collection", collection, "id", ref.ID())
	return ref.ID(), nil
}

// Update merges the top-level keys of doc into the existing document
// doc["id"]. Keys are field paths. The document must exist.
func (s *Store) Update(ctx context.Context, collection string, doc Document) (err error) {
	defer s.observe("update", time.Now(), &err)

	id, err := documentID(doc)
	if err == nil && id == "" {
		err = ErrMissingID
	}
	if err != nil {
		s.log.ErrorContext(ctx, "error updating document", "collection", collection, "document", doc, "error", err)
		return err
	}

	updates := make([]docstore.Update, 0, len(doc))
	for k, v := range doc {
		updates = append(updates, docstore.Update{Path: k, Value: v})
	}
	if err := s.ds.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		s.log.ErrorContext(ctx, "error updating document", "collection", collection, "document", doc, "error", err)
		return err
	}
	s.log.DebugContext(ctx, "document updated", "collection", collection, "id", id)
	return nil
}

func (s *Store) UpdateField(ctx context.Context, collection, id, field string, value any) (err error) {
	defer s.observe("update_field", time.Now(), &err)

	if err := s.updatePaths(ctx, collection, id, docstore.Update{Path: field, Value: value}); err != nil {
		s.log.ErrorContext(ctx, "error updating field", "collection", collection, "id", id, "field", field, "error", err)
		return err
	}
	s.log.DebugContext(ctx, "document field updated", "collection", collection, "id", id, "field", field)
	return nil
}

func (s *Store) UpdateFields(ctx context.Context, collection, id, field string, value any, field2 string, value2 any) (err error) {
	defer s.observe("update_fields", time.Now(), &err)

	err = s.updatePaths(ctx, collection, id,
		docstore.Update{Path: field, Value: value},
		docstore.Update{Path: field2, Value: value2},
	)
	if err != nil {
		s.log.ErrorContext(ctx, "error updating fields", "collection", collection, "id", id,
			"field", field, "field2", field2, "error", err)
		return err
	}
	s.log.DebugContext(ctx, "document fields updated", "collection", collection, "id", id,
		"field", field, "field2", field2)
	return nil
}

func (s *Store) updatePaths(ctx context.Context, collection, id string, us ...docstore.Update) error {
	if id == "" {
		return ErrMissingID
	}
	return s.ds.Collection(collection).Doc(id).Update(ctx, us)
}

// List returns the data of every document in collection.
func (s *Store) List(ctx context.Context, collection string) (docs []Document, err error) {
	defer s.observe("list", time.Now(), &err)

	docs, err = collect(s.ds.Collection(collection).Query().Documents(ctx))
	if err != nil {
		s.log.ErrorContext(ctx, "error list", "collection", collection, "error", err)
		return nil, err
	}
	return docs, nil
}

// ListBy returns the documents whose field satisfies op against value.
func (s *Store) ListBy(ctx context.Context, collection, field string, op Operator, value any) (docs []Document, err error) {
	defer s.observe("list_by", time.Now(), &err)

	if !op.Valid() {
		err = ErrInvalidOperator
	} else {
		q := s.ds.Collection(collection).Query().Where(field, string(op), value)
		docs, err = collect(q.Documents(ctx))
	}
	if err != nil {
		s.log.ErrorContext(ctx, "error list by", "collection", collection, "field", field,
			"op", string(op), "value", value, "error", err)
		return nil, err
	}
	return docs, nil
}

// ListOrderBy returns the documents that have field, sorted by it. An empty
// direction sorts ascending.
func (s *Store) ListOrderBy(ctx context.Context, collection, field string, dir docstore.Direction) (docs []Document, err error) {
	defer s.observe("list_order_by", time.Now(), &err)

	if dir == "" {
		dir = docstore.Asc
	}
	if dir != docstore.Asc && dir != docstore.Desc {
		err = ErrInvalidDirection
	} else {
		docs, err = collect(s.ds.Collection(collection).Query().OrderBy(field, dir).Documents(ctx))
	}
	if err != nil {
		s.log.ErrorContext(ctx, "error list order by", "collection", collection, "field", field,
			"direction", string(dir), "error", err)
		return nil, err
	}
	return docs, nil
}

// UpdateAll updates each existing document in docs, in order, one
// transaction per item. Documents that do not exist are skipped. The first
// failure stops the loop and is returned with the number already updated.
func (s *Store) UpdateAll(ctx context.Context, collection string, docs []Document) (updated int, err error) {
	defer s.observe("update_all", time.Now(), &err)

	for i, item := range docs {
		id, err := documentID(item)
		if err == nil && id == "" {
			err = ErrMissingID
		}
		if err == nil {
			var applied bool
			applied, err = s.updateExisting(ctx, collection, id, item)
			if applied {
				updated++
			}
		}
		if err != nil {
			s.log.ErrorContext(ctx, "error during update many", "collection", collection,
				"index", i, "id", id, "updated", updated, "error", err)
			return updated, err
		}
	}
	s.log.DebugContext(ctx, "documents updated", "collection", collection,
		"updated", updated, "total", len(docs))
	return updated, nil
}

func (s *Store) updateExisting(ctx context.Context, collection, id string, item Document) (bool, error) {
	updates := make([]docstore.Update, 0, len(item))
	for k, v := range item {
		if k == IDField {
			continue
		}
		updates = append(updates, docstore.Update{Path: k, Value: v})
	}

	var applied bool
	err := s.ds.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		applied = false
		ref := s.ds.Collection(collection).Doc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if !snap.Exists || len(updates) == 0 {
			return nil
		}
		applied = true
		return tx.Update(ref, updates)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) observe(op string, start time.Time, err *error) {
	s.metrics.Observe(op, start, *err)
}

func documentID(doc Document) (string, error) {
	v, ok := doc[IDField]
	if !ok || v == nil {
		return "", nil
	}
	id, ok := v.(string)
	if !ok {
		return "", ErrInvalidID
	}
	return id, nil
}

func collect(it docstore.SnapshotIterator) ([]Document, error) {
	defer it.Stop()

	out := []Document{}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Document(snap.Data))
	}
}
