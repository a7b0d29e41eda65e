// Package memory provides an in-memory implementation of the persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sampletrack/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	items          map[string]domain.Item
	locations      map[string]domain.Location
	records        map[string]domain.StorageRecord
	containerTypes map[string]domain.ContainerType
	containers     map[string]domain.Container
	links          map[string]domain.ContainerLink
	tests          map[string]domain.Test
	allocations    map[string]domain.TestAllocation
	history        []domain.HistoryEntry
}

func newMemoryState() memoryState {
	return memoryState{
		items:          make(map[string]domain.Item),
		locations:      make(map[string]domain.Location),
		records:        make(map[string]domain.StorageRecord),
		containerTypes: make(map[string]domain.ContainerType),
		containers:     make(map[string]domain.Container),
		links:          make(map[string]domain.ContainerLink),
		tests:          make(map[string]domain.Test),
		allocations:    make(map[string]domain.TestAllocation),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.items {
		cloned.items[k] = cloneItem(v)
	}
	for k, v := range s.locations {
		cloned.locations[k] = v
	}
	for k, v := range s.records {
		cloned.records[k] = cloneRecord(v)
	}
	for k, v := range s.containerTypes {
		cloned.containerTypes[k] = v
	}
	for k, v := range s.containers {
		cloned.containers[k] = cloneContainer(v)
	}
	for k, v := range s.links {
		cloned.links[k] = v
	}
	for k, v := range s.tests {
		cloned.tests[k] = v
	}
	for k, v := range s.allocations {
		cloned.allocations[k] = cloneAllocation(v)
	}
	// history is append-only, entries are never mutated in place
	cloned.history = append([]domain.HistoryEntry(nil), s.history...)
	return cloned
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneItem(i domain.Item) domain.Item {
	cp := i
	cp.ParentItemID = cloneString(i.ParentItemID)
	return cp
}

func cloneRecord(r domain.StorageRecord) domain.StorageRecord {
	cp := r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cp.ExpiresAt = &t
	}
	return cp
}

func cloneContainer(c domain.Container) domain.Container {
	cp := c
	cp.TypeID = cloneString(c.TypeID)
	if c.Capacity != nil {
		v := *c.Capacity
		cp.Capacity = &v
	}
	return cp
}

func cloneAllocation(a domain.TestAllocation) domain.TestAllocation {
	cp := a
	cp.SourceAllocationID = cloneString(a.SourceAllocationID)
	cp.TransferredToID = cloneString(a.TransferredToID)
	return cp
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// Store provides an in-memory transactional store. Transactions run against a
// cloned state that replaces the committed state only on success, so writers
// are fully serialized.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RulesEngine returns the engine evaluated before each commit.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{reader: reader{state: s.state.clone()}, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	res, err := domain.EvaluateCommit(ctx, s.engine, tx, tx.changes)
	if err != nil {
		return res, err
	}
	s.state = tx.state
	return res, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.Reader) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(reader{state: snapshot})
}

type reader struct {
	state memoryState
}

type transaction struct {
	reader
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func newID() string { return uuid.NewString() }

func sortByCreated[T any](out []T, key func(T) domain.Base) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := key(out[i]), key(out[j])
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// --- reads ---

func (r reader) GetItem(id string) (domain.Item, error) {
	item, ok := r.state.items[id]
	if !ok {
		return domain.Item{}, domain.ErrNotFound{Entity: domain.EntityItem, ID: id}
	}
	return cloneItem(item), nil
}

func (r reader) ListItems() ([]domain.Item, error) {
	out := make([]domain.Item, 0, len(r.state.items))
	for _, item := range r.state.items {
		out = append(out, cloneItem(item))
	}
	sortByCreated(out, func(i domain.Item) domain.Base { return i.Base })
	return out, nil
}

func (r reader) ListChildItems(parentID string) ([]domain.Item, error) {
	var out []domain.Item
	for _, item := range r.state.items {
		if item.ParentItemID != nil && *item.ParentItemID == parentID {
			out = append(out, cloneItem(item))
		}
	}
	sortByCreated(out, func(i domain.Item) domain.Base { return i.Base })
	return out, nil
}

func (r reader) ItemBarcodeExists(barcode string) (bool, error) {
	for _, item := range r.state.items {
		if item.Barcode == barcode {
			return true, nil
		}
	}
	return false, nil
}

func (r reader) GetLocation(id string) (domain.Location, error) {
	loc, ok := r.state.locations[id]
	if !ok {
		return domain.Location{}, domain.ErrNotFound{Entity: domain.EntityLocation, ID: id}
	}
	return loc, nil
}

func (r reader) GetStorageRecord(id string) (domain.StorageRecord, error) {
	rec, ok := r.state.records[id]
	if !ok {
		return domain.StorageRecord{}, domain.ErrNotFound{Entity: domain.EntityStorageRecord, ID: id}
	}
	return cloneRecord(rec), nil
}

func (r reader) ListStorageRecordsByItem(itemID string) ([]domain.StorageRecord, error) {
	var out []domain.StorageRecord
	for _, rec := range r.state.records {
		if rec.ItemID == itemID {
			out = append(out, cloneRecord(rec))
		}
	}
	sortByCreated(out, func(r domain.StorageRecord) domain.Base { return r.Base })
	return out, nil
}

func (r reader) CountStorageRecordsByLocation(locationID string) (int, error) {
	n := 0
	for _, rec := range r.state.records {
		if rec.LocationID == locationID {
			n++
		}
	}
	return n, nil
}

func (r reader) GetContainerType(id string) (domain.ContainerType, error) {
	ct, ok := r.state.containerTypes[id]
	if !ok {
		return domain.ContainerType{}, domain.ErrNotFound{Entity: domain.EntityContainerType, ID: id}
	}
	return ct, nil
}

func (r reader) GetContainer(id string) (domain.Container, error) {
	c, ok := r.state.containers[id]
	if !ok {
		return domain.Container{}, domain.ErrNotFound{Entity: domain.EntityContainer, ID: id}
	}
	return cloneContainer(c), nil
}

func (r reader) ContainerBarcodeExists(barcode string) (bool, error) {
	for _, c := range r.state.containers {
		if c.Barcode == barcode {
			return true, nil
		}
	}
	return false, nil
}

func (r reader) CountContainers() (int, error) { return len(r.state.containers), nil }

func (r reader) CountContainersByType(typeID string) (int, error) {
	n := 0
	for _, c := range r.state.containers {
		if c.TypeID != nil && *c.TypeID == typeID {
			n++
		}
	}
	return n, nil
}

func (r reader) CountContainersByLocation(locationID string) (int, error) {
	n := 0
	for _, c := range r.state.containers {
		if c.LocationID == locationID {
			n++
		}
	}
	return n, nil
}

func (r reader) ListContainerLinks(containerID string) ([]domain.ContainerLink, error) {
	var out []domain.ContainerLink
	for _, l := range r.state.links {
		if l.ContainerID == containerID {
			out = append(out, l)
		}
	}
	sortByCreated(out, func(l domain.ContainerLink) domain.Base { return l.Base })
	return out, nil
}

func (r reader) FindContainerLinkByRecord(recordID string) (domain.ContainerLink, bool, error) {
	for _, l := range r.state.links {
		if l.StorageRecordID == recordID {
			return l, true, nil
		}
	}
	return domain.ContainerLink{}, false, nil
}

func (r reader) GetTest(id string) (domain.Test, error) {
	t, ok := r.state.tests[id]
	if !ok {
		return domain.Test{}, domain.ErrNotFound{Entity: domain.EntityTest, ID: id}
	}
	return t, nil
}

func (r reader) GetTestAllocation(id string) (domain.TestAllocation, error) {
	a, ok := r.state.allocations[id]
	if !ok {
		return domain.TestAllocation{}, domain.ErrNotFound{Entity: domain.EntityTestAllocation, ID: id}
	}
	return cloneAllocation(a), nil
}

func (r reader) ListAllocationsByItem(itemID string) ([]domain.TestAllocation, error) {
	var out []domain.TestAllocation
	for _, a := range r.state.allocations {
		if a.ItemID == itemID {
			out = append(out, cloneAllocation(a))
		}
	}
	sortByCreated(out, func(a domain.TestAllocation) domain.Base { return a.Base })
	return out, nil
}

func (r reader) ListAllocationsByTest(testID string) ([]domain.TestAllocation, error) {
	var out []domain.TestAllocation
	for _, a := range r.state.allocations {
		if a.TestID == testID {
			out = append(out, cloneAllocation(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r reader) ListHistory(q domain.HistoryQuery) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	for _, e := range r.state.history {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// --- items ---

func (tx *transaction) CreateItem(item domain.Item) (domain.Item, error) {
	if item.ID == "" {
		item.ID = newID()
	}
	if _, exists := tx.state.items[item.ID]; exists {
		return domain.Item{}, fmt.Errorf("item %q already exists", item.ID)
	}
	exists, err := tx.ItemBarcodeExists(item.Barcode)
	if err != nil {
		return domain.Item{}, err
	}
	if exists {
		return domain.Item{}, domain.ConflictError{Entity: domain.EntityItem, Field: "barcode", Value: item.Barcode}
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	tx.state.items[item.ID] = cloneItem(item)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: cloneItem(item)})
	return cloneItem(item), nil
}

func (tx *transaction) UpdateItem(id string, mutator func(*domain.Item) error) (domain.Item, error) {
	current, ok := tx.state.items[id]
	if !ok {
		return domain.Item{}, domain.ErrNotFound{Entity: domain.EntityItem, ID: id}
	}
	before := cloneItem(current)
	if err := mutator(&current); err != nil {
		return domain.Item{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.items[id] = cloneItem(current)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: cloneItem(current)})
	return cloneItem(current), nil
}

func (tx *transaction) DeleteItem(id string) error {
	current, ok := tx.state.items[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityItem, ID: id}
	}
	delete(tx.state.items, id)
	tx.recordChange(domain.Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: cloneItem(current)})
	return nil
}

// --- locations ---

func (tx *transaction) CreateLocation(loc domain.Location) (domain.Location, error) {
	if loc.ID == "" {
		loc.ID = newID()
	}
	for _, existing := range tx.state.locations {
		if existing.Name == loc.Name {
			return domain.Location{}, domain.ConflictError{Entity: domain.EntityLocation, Field: "name", Value: loc.Name}
		}
	}
	loc.CreatedAt = tx.now
	loc.UpdatedAt = tx.now
	tx.state.locations[loc.ID] = loc
	tx.recordChange(domain.Change{Entity: domain.EntityLocation, Action: domain.ActionCreate, After: loc})
	return loc, nil
}

func (tx *transaction) DeleteLocation(id string) error {
	current, ok := tx.state.locations[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityLocation, ID: id}
	}
	delete(tx.state.locations, id)
	tx.recordChange(domain.Change{Entity: domain.EntityLocation, Action: domain.ActionDelete, Before: current})
	return nil
}

// --- storage records ---

func (tx *transaction) CreateStorageRecord(rec domain.StorageRecord) (domain.StorageRecord, error) {
	if rec.ID == "" {
		rec.ID = newID()
	}
	if _, exists := tx.state.records[rec.ID]; exists {
		return domain.StorageRecord{}, fmt.Errorf("storage record %q already exists", rec.ID)
	}
	if _, ok := tx.state.items[rec.ItemID]; !ok {
		return domain.StorageRecord{}, domain.ErrNotFound{Entity: domain.EntityItem, ID: rec.ItemID}
	}
	if _, ok := tx.state.locations[rec.LocationID]; !ok {
		return domain.StorageRecord{}, domain.ErrNotFound{Entity: domain.EntityLocation, ID: rec.LocationID}
	}
	rec.CreatedAt = tx.now
	rec.UpdatedAt = tx.now
	tx.state.records[rec.ID] = cloneRecord(rec)
	tx.recordChange(domain.Change{Entity: domain.EntityStorageRecord, Action: domain.ActionCreate, After: cloneRecord(rec)})
	return cloneRecord(rec), nil
}

func (tx *transaction) UpdateStorageRecord(id string, mutator func(*domain.StorageRecord) error) (domain.StorageRecord, error) {
	current, ok := tx.state.records[id]
	if !ok {
		return domain.StorageRecord{}, domain.ErrNotFound{Entity: domain.EntityStorageRecord, ID: id}
	}
	before := cloneRecord(current)
	if err := mutator(&current); err != nil {
		return domain.StorageRecord{}, err
	}
	if _, ok := tx.state.locations[current.LocationID]; !ok {
		return domain.StorageRecord{}, domain.ErrNotFound{Entity: domain.EntityLocation, ID: current.LocationID}
	}
	current.ID = id
	current.ItemID = before.ItemID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.records[id] = cloneRecord(current)
	tx.recordChange(domain.Change{Entity: domain.EntityStorageRecord, Action: domain.ActionUpdate, Before: before, After: cloneRecord(current)})
	return cloneRecord(current), nil
}

func (tx *transaction) DeleteStorageRecord(id string) error {
	current, ok := tx.state.records[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityStorageRecord, ID: id}
	}
	delete(tx.state.records, id)
	tx.recordChange(domain.Change{Entity: domain.EntityStorageRecord, Action: domain.ActionDelete, Before: cloneRecord(current)})
	return nil
}

// --- container types and containers ---

func (tx *transaction) CreateContainerType(ct domain.ContainerType) (domain.ContainerType, error) {
	if ct.ID == "" {
		ct.ID = newID()
	}
	for _, existing := range tx.state.containerTypes {
		if existing.Name == ct.Name {
			return domain.ContainerType{}, domain.ConflictError{Entity: domain.EntityContainerType, Field: "name", Value: ct.Name}
		}
	}
	ct.CreatedAt = tx.now
	ct.UpdatedAt = tx.now
	tx.state.containerTypes[ct.ID] = ct
	tx.recordChange(domain.Change{Entity: domain.EntityContainerType, Action: domain.ActionCreate, After: ct})
	return ct, nil
}

func (tx *transaction) DeleteContainerType(id string) error {
	current, ok := tx.state.containerTypes[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityContainerType, ID: id}
	}
	delete(tx.state.containerTypes, id)
	tx.recordChange(domain.Change{Entity: domain.EntityContainerType, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) CreateContainer(c domain.Container) (domain.Container, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if exists, _ := tx.ContainerBarcodeExists(c.Barcode); exists {
		return domain.Container{}, domain.ConflictError{Entity: domain.EntityContainer, Field: "barcode", Value: c.Barcode}
	}
	if _, ok := tx.state.locations[c.LocationID]; !ok {
		return domain.Container{}, domain.ErrNotFound{Entity: domain.EntityLocation, ID: c.LocationID}
	}
	if c.TypeID != nil {
		if _, ok := tx.state.containerTypes[*c.TypeID]; !ok {
			return domain.Container{}, domain.ErrNotFound{Entity: domain.EntityContainerType, ID: *c.TypeID}
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.containers[c.ID] = cloneContainer(c)
	tx.recordChange(domain.Change{Entity: domain.EntityContainer, Action: domain.ActionCreate, After: cloneContainer(c)})
	return cloneContainer(c), nil
}

func (tx *transaction) DeleteContainer(id string) error {
	current, ok := tx.state.containers[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityContainer, ID: id}
	}
	delete(tx.state.containers, id)
	tx.recordChange(domain.Change{Entity: domain.EntityContainer, Action: domain.ActionDelete, Before: cloneContainer(current)})
	return nil
}

// --- container links ---

func (tx *transaction) CreateContainerLink(l domain.ContainerLink) (domain.ContainerLink, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	if _, exists, _ := tx.FindContainerLinkByRecord(l.StorageRecordID); exists {
		return domain.ContainerLink{}, domain.ConflictError{Entity: domain.EntityContainerLink, Field: "storage_record_id", Value: l.StorageRecordID}
	}
	if _, ok := tx.state.records[l.StorageRecordID]; !ok {
		return domain.ContainerLink{}, domain.ErrNotFound{Entity: domain.EntityStorageRecord, ID: l.StorageRecordID}
	}
	if _, ok := tx.state.containers[l.ContainerID]; !ok {
		return domain.ContainerLink{}, domain.ErrNotFound{Entity: domain.EntityContainer, ID: l.ContainerID}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.links[l.ID] = l
	tx.recordChange(domain.Change{Entity: domain.EntityContainerLink, Action: domain.ActionCreate, After: l})
	return l, nil
}

func (tx *transaction) UpdateContainerLink(id string, mutator func(*domain.ContainerLink) error) (domain.ContainerLink, error) {
	current, ok := tx.state.links[id]
	if !ok {
		return domain.ContainerLink{}, domain.ErrNotFound{Entity: domain.EntityContainerLink, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.ContainerLink{}, err
	}
	current.ID = id
	current.StorageRecordID = before.StorageRecordID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.links[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityContainerLink, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteContainerLink(id string) error {
	current, ok := tx.state.links[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityContainerLink, ID: id}
	}
	delete(tx.state.links, id)
	tx.recordChange(domain.Change{Entity: domain.EntityContainerLink, Action: domain.ActionDelete, Before: current})
	return nil
}

// --- tests and allocations ---

func (tx *transaction) CreateTest(t domain.Test) (domain.Test, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	for _, existing := range tx.state.tests {
		if existing.Number == t.Number {
			return domain.Test{}, domain.ConflictError{Entity: domain.EntityTest, Field: "number", Value: t.Number}
		}
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tests[t.ID] = t
	tx.recordChange(domain.Change{Entity: domain.EntityTest, Action: domain.ActionCreate, After: t})
	return t, nil
}

func (tx *transaction) UpdateTest(id string, mutator func(*domain.Test) error) (domain.Test, error) {
	current, ok := tx.state.tests[id]
	if !ok {
		return domain.Test{}, domain.ErrNotFound{Entity: domain.EntityTest, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Test{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.tests[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityTest, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) CreateTestAllocation(a domain.TestAllocation) (domain.TestAllocation, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.allocations[a.ID]; exists {
		return domain.TestAllocation{}, fmt.Errorf("test allocation %q already exists", a.ID)
	}
	if _, ok := tx.state.items[a.ItemID]; !ok {
		return domain.TestAllocation{}, domain.ErrNotFound{Entity: domain.EntityItem, ID: a.ItemID}
	}
	if _, ok := tx.state.tests[a.TestID]; !ok {
		return domain.TestAllocation{}, domain.ErrNotFound{Entity: domain.EntityTest, ID: a.TestID}
	}
	for _, existing := range tx.state.allocations {
		if existing.Identifier == a.Identifier {
			return domain.TestAllocation{}, domain.ConflictError{Entity: domain.EntityTestAllocation, Field: "identifier", Value: a.Identifier}
		}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.allocations[a.ID] = cloneAllocation(a)
	tx.recordChange(domain.Change{Entity: domain.EntityTestAllocation, Action: domain.ActionCreate, After: cloneAllocation(a)})
	return cloneAllocation(a), nil
}

func (tx *transaction) UpdateTestAllocation(id string, mutator func(*domain.TestAllocation) error) (domain.TestAllocation, error) {
	current, ok := tx.state.allocations[id]
	if !ok {
		return domain.TestAllocation{}, domain.ErrNotFound{Entity: domain.EntityTestAllocation, ID: id}
	}
	before := cloneAllocation(current)
	if err := mutator(&current); err != nil {
		return domain.TestAllocation{}, err
	}
	current.ID = id
	current.ItemID = before.ItemID
	current.Identifier = before.Identifier
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.allocations[id] = cloneAllocation(current)
	tx.recordChange(domain.Change{Entity: domain.EntityTestAllocation, Action: domain.ActionUpdate, Before: before, After: cloneAllocation(current)})
	return cloneAllocation(current), nil
}

// --- history ---

func (tx *transaction) AppendHistory(e domain.HistoryEntry) (domain.HistoryEntry, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = tx.now
	}
	if e.Amount != nil {
		amount := *e.Amount
		e.Amount = &amount
	}
	tx.state.history = append(tx.state.history, e)
	tx.recordChange(domain.Change{Entity: domain.EntityHistoryEntry, Action: domain.ActionCreate, After: e})
	return e, nil
}
