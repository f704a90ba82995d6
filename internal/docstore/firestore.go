package docstore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errInvalidPath = status.Error(codes.InvalidArgument, "docstore: invalid collection or document path")

type FirestoreDocStore struct {
	Client *firestore.Client
}

func NewFirestore(client *firestore.Client) *FirestoreDocStore {
	return &FirestoreDocStore{Client: client}
}

func (ds *FirestoreDocStore) Collection(name string) Collection {
	return &firestoreCollection{collection: ds.Client.Collection(name)}
}

func (ds *FirestoreDocStore) RunTransaction(ctx context.Context, fn func(context.Context, Transaction) error) error {
	return ds.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTransaction{tx: tx})
	})
}

func (ds *FirestoreDocStore) Close() error {
	if ds == nil || ds.Client == nil {
		return nil
	}
	return ds.Client.Close()
}

type firestoreCollection struct {
	collection *firestore.CollectionRef
}

// The SDK hands back nil refs for malformed paths; those surface as
// errInvalidPath on first use instead of a nil dereference.
func (c *firestoreCollection) Doc(id string) Doc {
	if c.collection == nil {
		return &firestoreDoc{id: id}
	}
	return &firestoreDoc{id: id, ref: c.collection.Doc(id)}
}

func (c *firestoreCollection) NewDoc() Doc {
	if c.collection == nil {
		return &firestoreDoc{}
	}
	ref := c.collection.NewDoc()
	return &firestoreDoc{id: ref.ID, ref: ref}
}

func (c *firestoreCollection) Query() Query {
	if c.collection == nil {
		return &firestoreQuery{err: errInvalidPath}
	}
	return &firestoreQuery{query: c.collection.Query}
}

type firestoreDoc struct {
	id  string
	ref *firestore.DocumentRef
}

func (d *firestoreDoc) ID() string { return d.id }

func (d *firestoreDoc) Get(ctx context.Context) (Snapshot, error) {
	if d.ref == nil {
		return Snapshot{ID: d.id}, errInvalidPath
	}
	snap, err := d.ref.Get(ctx)
	if err != nil {
		return Snapshot{ID: d.id}, err
	}
	return toSnapshot(snap), nil
}

func (d *firestoreDoc) Set(ctx context.Context, data map[string]any) error {
	if d.ref == nil {
		return errInvalidPath
	}
	_, err := d.ref.Set(ctx, data)
	return err
}

func (d *firestoreDoc) Update(ctx context.Context, us []Update) error {
	if d.ref == nil {
		return errInvalidPath
	}
	_, err := d.ref.Update(ctx, toFirestoreUpdates(us))
	return err
}

type firestoreQuery struct {
	query firestore.Query
	err   error
}

func (q *firestoreQuery) Where(path, op string, value any) Query {
	if q.err != nil {
		return q
	}
	return &firestoreQuery{query: q.query.Where(path, op, value)}
}

func (q *firestoreQuery) OrderBy(path string, dir Direction) Query {
	if q.err != nil {
		return q
	}
	if dir == Desc {
		return &firestoreQuery{query: q.query.OrderBy(path, firestore.Desc)}
	}
	return &firestoreQuery{query: q.query.OrderBy(path, firestore.Asc)}
}

func (q *firestoreQuery) Documents(ctx context.Context) SnapshotIterator {
	if q.err != nil {
		return &memIterator{err: q.err}
	}
	return &firestoreIterator{it: q.query.Documents(ctx)}
}

type firestoreIterator struct {
	it *firestore.DocumentIterator
}

func (i *firestoreIterator) Next() (Snapshot, error) {
	snap, err := i.it.Next()
	if err != nil {
		return Snapshot{}, err
	}
	return toSnapshot(snap), nil
}

func (i *firestoreIterator) Stop() { i.it.Stop() }

type firestoreTransaction struct {
	tx *firestore.Transaction
}

func (t *firestoreTransaction) Get(d Doc) (Snapshot, error) {
	fd := d.(*firestoreDoc)
	if fd.ref == nil {
		return Snapshot{ID: fd.id}, errInvalidPath
	}
	snap, err := t.tx.Get(fd.ref)
	if status.Code(err) == codes.NotFound {
		return Snapshot{ID: fd.id}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return toSnapshot(snap), nil
}

func (t *firestoreTransaction) Update(d Doc, us []Update) error {
	fd := d.(*firestoreDoc)
	if fd.ref == nil {
		return errInvalidPath
	}
	return t.tx.Update(fd.ref, toFirestoreUpdates(us))
}

func toSnapshot(snap *firestore.DocumentSnapshot) Snapshot {
	return Snapshot{
		ID:         snap.Ref.ID,
		Exists:     snap.Exists(),
		Data:       snap.Data(),
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}
}

func toFirestoreUpdates(us []Update) []firestore.Update {
	fus := make([]firestore.Update, 0, len(us))
	for _, u := range us {
		fus = append(fus, firestore.Update{Path: u.Path, Value: u.Value})
	}
	return fus
}
