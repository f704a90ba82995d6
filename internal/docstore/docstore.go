// Package docstore is the narrow slice of the Firestore API the rest of the
// module talks to. NewFirestore adapts the real client; NewMemory is an
// in-process stand-in with the same observable semantics.
package docstore

import (
	"context"
	"time"
)

type DocStore interface {
	Collection(name string) Collection
	RunTransaction(context.Context, func(context.Context, Transaction) error) error
	Close() error
}

type Collection interface {
	Doc(id string) Doc
	// NewDoc returns a reference with a backend-generated id.
	NewDoc() Doc
	Query() Query
}

type Doc interface {
	ID() string
	Get(context.Context) (Snapshot, error)
	Set(context.Context, map[string]any) error
	Update(context.Context, []Update) error
}

type Query interface {
	Where(path, op string, value any) Query
	OrderBy(path string, dir Direction) Query
	Documents(context.Context) SnapshotIterator
}

// SnapshotIterator yields iterator.Done when exhausted.
type SnapshotIterator interface {
	Next() (Snapshot, error)
	Stop()
}

// Transaction reads must happen before writes.
type Transaction interface {
	// Get reports a missing document as a snapshot with Exists false.
	Get(Doc) (Snapshot, error)
	Update(Doc, []Update) error
}

type Snapshot struct {
	ID         string
	Exists     bool
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// Update sets the field at Path. Dots in Path address nested fields.
type Update struct {
	Path  string
	Value any
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)
