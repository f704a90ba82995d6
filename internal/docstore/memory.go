package docstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errReadAfterWrite = errors.New("docstore: read after write in transaction")

type memRecord struct {
	data    map[string]any
	created time.Time
	updated time.Time
}

// MemoryDocStore keeps documents in process memory. It is safe for
// concurrent use; transactions are serialized.
type MemoryDocStore struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	collections map[string]map[string]*memRecord
	now         func() time.Time
}

func NewMemory() *MemoryDocStore {
	return &MemoryDocStore{
		collections: map[string]map[string]*memRecord{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryDocStore) Collection(name string) Collection {
	return &memCollection{store: s, name: name}
}

func (s *MemoryDocStore) Close() error { return nil }

func (s *MemoryDocStore) RunTransaction(ctx context.Context, fn func(context.Context, Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTransaction{}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range tx.writes {
		if err := s.updateLocked(w.doc.collection, w.doc.id, w.updates); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryDocStore) getLocked(collection, id string) (Snapshot, error) {
	rec, ok := s.collections[collection][id]
	if !ok {
		return Snapshot{ID: id}, status.Errorf(codes.NotFound, "%s/%s not found", collection, id)
	}
	return Snapshot{
		ID:         id,
		Exists:     true,
		Data:       copyMap(rec.data),
		CreateTime: rec.created,
		UpdateTime: rec.updated,
	}, nil
}

func (s *MemoryDocStore) setLocked(collection, id string, data map[string]any) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = map[string]*memRecord{}
		s.collections[collection] = docs
	}
	now := s.now()
	created := now
	if rec, ok := docs[id]; ok {
		created = rec.created
	}
	docs[id] = &memRecord{data: data, created: created, updated: now}
}

func (s *MemoryDocStore) updateLocked(collection, id string, us []Update) error {
	rec, ok := s.collections[collection][id]
	if !ok {
		return status.Errorf(codes.NotFound, "no document to update: %s/%s", collection, id)
	}
	if len(us) == 0 {
		return status.Error(codes.InvalidArgument, "no updates")
	}
	data := copyMap(rec.data)
	for _, u := range us {
		parts, err := splitPath(u.Path)
		if err != nil {
			return err
		}
		v, err := normalize(u.Value)
		if err != nil {
			return err
		}
		setPath(data, parts, v)
	}
	rec.data = data
	rec.updated = s.now()
	return nil
}

type memCollection struct {
	store *MemoryDocStore
	name  string
}

func (c *memCollection) Doc(id string) Doc {
	return &memDoc{store: c.store, collection: c.name, id: id}
}

func (c *memCollection) NewDoc() Doc {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	return c.Doc(id)
}

func (c *memCollection) Query() Query {
	return &memQuery{store: c.store, collection: c.name}
}

type memDoc struct {
	store      *MemoryDocStore
	collection string
	id         string
}

func (d *memDoc) ID() string { return d.id }

func (d *memDoc) Get(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{ID: d.id}, err
	}
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	return d.store.getLocked(d.collection, d.id)
}

func (d *memDoc) Set(ctx context.Context, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.id == "" {
		return status.Error(codes.InvalidArgument, "empty document id")
	}
	norm, err := normalizeMap(data)
	if err != nil {
		return err
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	d.store.setLocked(d.collection, d.id, norm)
	return nil
}

func (d *memDoc) Update(ctx context.Context, us []Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	return d.store.updateLocked(d.collection, d.id, us)
}

type pendingWrite struct {
	doc     *memDoc
	updates []Update
}

type memTransaction struct {
	writes []pendingWrite
}

func (t *memTransaction) Get(d Doc) (Snapshot, error) {
	if len(t.writes) > 0 {
		return Snapshot{}, errReadAfterWrite
	}
	md := d.(*memDoc)
	md.store.mu.RLock()
	defer md.store.mu.RUnlock()
	snap, err := md.store.getLocked(md.collection, md.id)
	if status.Code(err) == codes.NotFound {
		return Snapshot{ID: md.id}, nil
	}
	return snap, err
}

func (t *memTransaction) Update(d Doc, us []Update) error {
	t.writes = append(t.writes, pendingWrite{doc: d.(*memDoc), updates: us})
	return nil
}

type memFilter struct {
	path  []string
	op    string
	value any
}

type memOrder struct {
	path []string
	dir  Direction
}

type memQuery struct {
	store      *MemoryDocStore
	collection string
	filters    []memFilter
	orders     []memOrder
	err        error
}

func (q *memQuery) clone() *memQuery {
	c := *q
	c.filters = append([]memFilter(nil), q.filters...)
	c.orders = append([]memOrder(nil), q.orders...)
	return &c
}

func (q *memQuery) Where(path, op string, value any) Query {
	c := q.clone()
	parts, err := splitPath(path)
	if err != nil && c.err == nil {
		c.err = err
	}
	if !validOp(op) && c.err == nil {
		c.err = status.Errorf(codes.InvalidArgument, "invalid operator %q", op)
	}
	v, err := normalize(value)
	if err != nil && c.err == nil {
		c.err = err
	}
	switch op {
	case "in", "not-in", "array-contains-any":
		if list, ok := v.([]any); (!ok || len(list) == 0) && c.err == nil {
			c.err = status.Errorf(codes.InvalidArgument, "operator %q needs a non-empty list", op)
		}
	}
	c.filters = append(c.filters, memFilter{path: parts, op: op, value: v})
	return c
}

func (q *memQuery) OrderBy(path string, dir Direction) Query {
	c := q.clone()
	parts, err := splitPath(path)
	if err != nil && c.err == nil {
		c.err = err
	}
	c.orders = append(c.orders, memOrder{path: parts, dir: dir})
	return c
}

func (q *memQuery) Documents(ctx context.Context) SnapshotIterator {
	if q.err != nil {
		return &memIterator{err: q.err}
	}
	if err := ctx.Err(); err != nil {
		return &memIterator{err: err}
	}

	q.store.mu.RLock()
	var snaps []Snapshot
	for id, rec := range q.store.collections[q.collection] {
		if !q.matches(rec.data) {
			continue
		}
		snaps = append(snaps, Snapshot{
			ID:         id,
			Exists:     true,
			Data:       copyMap(rec.data),
			CreateTime: rec.created,
			UpdateTime: rec.updated,
		})
	}
	q.store.mu.RUnlock()

	sort.SliceStable(snaps, func(a, b int) bool {
		for _, o := range q.orders {
			va, _ := lookup(snaps[a].Data, o.path)
			vb, _ := lookup(snaps[b].Data, o.path)
			c := compareValues(va, vb)
			if c == 0 {
				continue
			}
			if o.dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return snaps[a].ID < snaps[b].ID
	})
	return &memIterator{snaps: snaps}
}

func (q *memQuery) matches(data map[string]any) bool {
	for _, o := range q.orders {
		if _, ok := lookup(data, o.path); !ok {
			return false
		}
	}
	for _, f := range q.filters {
		v, ok := lookup(data, f.path)
		if !ok || !matchFilter(v, f.op, f.value) {
			return false
		}
	}
	return true
}

type memIterator struct {
	snaps []Snapshot
	idx   int
	err   error
}

func (i *memIterator) Next() (Snapshot, error) {
	if i.err != nil {
		return Snapshot{}, i.err
	}
	if i.idx >= len(i.snaps) {
		return Snapshot{}, iterator.Done
	}
	s := i.snaps[i.idx]
	i.idx++
	return s, nil
}

func (i *memIterator) Stop() { i.snaps = nil }

func validOp(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=", "in", "not-in", "array-contains", "array-contains-any":
		return true
	}
	return false
}

func matchFilter(v any, op string, want any) bool {
	switch op {
	case "==":
		return equalValues(v, want)
	case "!=":
		return v != nil && !equalValues(v, want)
	case "<", "<=", ">", ">=":
		if typeRank(v) != typeRank(want) {
			return false
		}
		c := compareValues(v, want)
		switch op {
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		default:
			return c >= 0
		}
	case "array-contains":
		arr, ok := v.([]any)
		return ok && containsValue(arr, want)
	case "array-contains-any":
		arr, ok := v.([]any)
		candidates, ok2 := want.([]any)
		if !ok || !ok2 {
			return false
		}
		for _, c := range candidates {
			if containsValue(arr, c) {
				return true
			}
		}
		return false
	case "in":
		candidates, ok := want.([]any)
		return ok && containsValue(candidates, v)
	case "not-in":
		candidates, ok := want.([]any)
		return ok && v != nil && !containsValue(candidates, v)
	}
	return false
}

func containsValue(arr []any, v any) bool {
	for _, x := range arr {
		if equalValues(x, v) {
			return true
		}
	}
	return false
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "empty field path")
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, status.Errorf(codes.InvalidArgument, "invalid field path %q", path)
		}
	}
	return parts, nil
}

func lookup(data map[string]any, path []string) (any, bool) {
	var cur any = data
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(data map[string]any, path []string, v any) {
	m := data
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

// Firestore value ordering: null, bool, number, timestamp, string, bytes, array, map.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	case []byte:
		return 5
	case []any:
		return 6
	case map[string]any:
		return 7
	}
	return 8
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case int64, float64:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case time.Time:
		return x.Compare(b.(time.Time))
	case string:
		return strings.Compare(x, b.(string))
	case []byte:
		return strings.Compare(string(x), string(b.([]byte)))
	case []any:
		y := b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compareValues(x[i], y[i]); c != 0 {
				return c
			}
		}
		return len(x) - len(y)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func equalValues(a, b any) bool {
	if typeRank(a) != typeRank(b) {
		return false
	}
	switch x := a.(type) {
	case int64, float64:
		return toFloat(a) == toFloat(b)
	case time.Time:
		return x.Equal(b.(time.Time))
	case []any:
		y := b.([]any)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValues(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y := b.(map[string]any)
		if len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !equalValues(xv, yv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// normalize converts values to the shapes Firestore hands back on read.
// Values Firestore cannot store fail with InvalidArgument.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64, time.Time, []byte:
		return x, nil
	case map[string]any:
		return normalizeMap(x)
	case []any:
		return normalizeList(len(x), func(i int) any { return x[i] })
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return *x, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, status.Errorf(codes.InvalidArgument, "uint value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Slice, reflect.Array:
		return normalizeList(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v, nil
}

func normalizeList(n int, at func(int) any) ([]any, error) {
	out := make([]any, n)
	for i := range out {
		v, err := normalize(at(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		n, err := normalize(v)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = copyValue(x[i])
		}
		return out
	}
	return v
}
