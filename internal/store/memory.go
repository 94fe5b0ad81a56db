package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDocuments is an in-process Documents implementation. It evaluates
// conditions and sorts with Firestore's semantics for scalar values and is
// used for offline mode and tests.
type MemoryDocuments struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	now         func() time.Time
}

// Ensure MemoryDocuments implements Documents and Transactor
var (
	_ Documents  = (*MemoryDocuments)(nil)
	_ Transactor = (*MemoryDocuments)(nil)
)

// NewMemoryDocuments creates an empty MemoryDocuments
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{
		collections: make(map[string]map[string]map[string]any),
		now:         time.Now,
	}
}

// Create implements Documents
func (m *MemoryDocuments) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := newID()
	m.put(collection, id, data)
	return id, nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// put stores a stamped copy of data. Callers hold mu.
func (m *MemoryDocuments) put(collection, id string, data map[string]any) {
	now := m.now().UTC()
	doc := cloneMap(data)
	doc[FieldCreatedAt] = now
	doc[FieldUpdatedAt] = now

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.collections[collection] = coll
	}
	coll[id] = doc
}

// Read implements Documents
func (m *MemoryDocuments) Read(ctx context.Context, collection, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &Record{ID: id, Data: cloneMap(doc)}, nil
}

// Update implements Documents
func (m *MemoryDocuments) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range partial {
		doc[k] = v
	}
	doc[FieldUpdatedAt] = m.now().UTC()
	return nil
}

// Delete implements Documents
func (m *MemoryDocuments) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

// List implements Documents
func (m *MemoryDocuments) List(ctx context.Context, collection string) ([]Record, error) {
	return m.Query(ctx, collection, nil, nil)
}

// Query implements Documents
func (m *MemoryDocuments) Query(ctx context.Context, collection string, conditions []Condition, sorts []Sort) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(conditions); err != nil {
		return nil, err
	}

	m.mu.RLock()
	records := m.match(collection, conditions, sorts)
	m.mu.RUnlock()

	sortRecords(records, sorts)
	return records, nil
}

// RunTransaction implements Transactor. It holds the write lock while fn
// runs, so other writers wait for it.
func (m *MemoryDocuments) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{m: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, w := range tx.writes {
		m.put(w.collection, w.id, w.data)
	}
	return nil
}

type pendingWrite struct {
	collection, id string
	data           map[string]any
}

// memoryTx buffers creates until the transaction commits
type memoryTx struct {
	m      *MemoryDocuments
	writes []pendingWrite
}

func (t *memoryTx) Query(collection string, conditions []Condition) ([]Record, error) {
	if len(t.writes) > 0 {
		return nil, fmt.Errorf("read after write in transaction")
	}
	if err := validate(conditions); err != nil {
		return nil, err
	}
	records := t.m.match(collection, conditions, nil)
	sortRecords(records, nil)
	return records, nil
}

func (t *memoryTx) Create(collection string, data map[string]any) (string, error) {
	id := newID()
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, data: cloneMap(data)})
	return id, nil
}

// match copies the documents passing conditions. Callers hold mu.
func (m *MemoryDocuments) match(collection string, conditions []Condition, sorts []Sort) []Record {
	records := []Record{}
	for id, doc := range m.collections[collection] {
		if matchesAll(doc, conditions) && hasFields(doc, sorts) {
			records = append(records, Record{ID: id, Data: cloneMap(doc)})
		}
	}
	return records
}

func sortRecords(records []Record, sorts []Sort) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, s := range sorts {
			c := compare(records[i].Data[s.Field], records[j].Data[s.Field])
			if c == 0 {
				continue
			}
			if s.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return records[i].ID < records[j].ID
	})
}

// hasFields mirrors Firestore dropping documents that lack an ordered field
func hasFields(doc map[string]any, sorts []Sort) bool {
	for _, s := range sorts {
		if _, ok := doc[s.Field]; !ok {
			return false
		}
	}
	return true
}

func matchesAll(doc map[string]any, conditions []Condition) bool {
	for _, c := range conditions {
		if !matches(doc, c) {
			return false
		}
	}
	return true
}

func matches(doc map[string]any, c Condition) bool {
	v, present := doc[c.Field]
	switch c.Operator {
	case OpEqual:
		return present && compare(v, c.Value) == 0
	case OpNotEqual:
		return present && compare(v, c.Value) != 0
	case OpLess:
		return present && sameKind(v, c.Value) && compare(v, c.Value) < 0
	case OpLessOrEqual:
		return present && sameKind(v, c.Value) && compare(v, c.Value) <= 0
	case OpGreater:
		return present && sameKind(v, c.Value) && compare(v, c.Value) > 0
	case OpGreaterOrEqual:
		return present && sameKind(v, c.Value) && compare(v, c.Value) >= 0
	case OpIn:
		return present && containsValue(c.Value, v)
	case OpNotIn:
		return present && !containsValue(c.Value, v)
	case OpArrayContains:
		return present && containsValue(v, c.Value)
	case OpArrayContainsAny:
		if !present {
			return false
		}
		for _, want := range toSlice(c.Value) {
			if containsValue(v, want) {
				return true
			}
		}
		return false
	}
	return false
}

func containsValue(list, v any) bool {
	for _, item := range toSlice(list) {
		if compare(item, v) == 0 {
			return true
		}
	}
	return false
}

func toSlice(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// typeRank orders values of different types the way Firestore does
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func sameKind(a, b any) bool {
	return typeRank(a) == typeRank(b)
}

// compare returns -1, 0 or 1
func compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		return x.Compare(b.(time.Time))
	case string:
		return strings.Compare(x, b.(string))
	}
	if ra == 2 {
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
