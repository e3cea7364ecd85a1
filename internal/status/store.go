// Package status holds the observable status of every calculation, keyed by
// (target type, id). Producers write through Set; any number of observers
// read with Get or follow changes with Subscribe.
package status

import (
	"sort"
	"sync"

	"github.com/agbru/policycalc/internal/calc"
)

// Key addresses one status record.
type Key struct {
	TargetType calc.TargetType `json:"targetType"`
	ID         string          `json:"id"`
}

// KeyOf builds the key for id under target.
func KeyOf(target calc.TargetType, id string) Key {
	return Key{TargetType: target, ID: id}
}

func (k Key) String() string { return string(k.TargetType) + ":" + k.ID }

// Store is the reactive status cache consumed by the orchestrator and the
// read side.
type Store interface {
	Get(key Key) (calc.Status, bool)
	Set(key Key, st calc.Status)
	Subscribe(key Key) *Subscription
	Delete(key Key)
	Clear()
	Keys() []Key
}

// Subscription delivers the latest status of one key. Intermediate values may
// be skipped when the reader is slower than the writer; the last value is
// always delivered.
type Subscription struct {
	key   Key
	ch    chan calc.Status
	store *MemoryStore
	once  sync.Once
}

// Key returns the subscribed key.
func (s *Subscription) Key() Key { return s.key }

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan calc.Status { return s.ch }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.store.unsubscribe(s)
	})
}

// offer replaces any undelivered value with st. Callers hold the store lock,
// so offers to one subscription never race each other.
func (s *Subscription) offer(st calc.Status) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- st
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[Key]calc.Status
	subs     map[Key]map[*Subscription]struct{}
	onSet    []func(Key, calc.Status)
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[Key]calc.Status),
		subs:     make(map[Key]map[*Subscription]struct{}),
	}
}

// OnSet registers fn to run after every Set, outside the store lock.
func (m *MemoryStore) OnSet(fn func(Key, calc.Status)) {
	m.mu.Lock()
	m.onSet = append(m.onSet, fn)
	m.mu.Unlock()
}

func (m *MemoryStore) Get(key Key) (calc.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[key]
	return st, ok
}

func (m *MemoryStore) Set(key Key, st calc.Status) {
	m.mu.Lock()
	m.statuses[key] = st
	for sub := range m.subs[key] {
		sub.offer(st)
	}
	hooks := m.onSet
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(key, st)
	}
}

// Subscribe returns a subscription primed with the current value, if any.
func (m *MemoryStore) Subscribe(key Key) *Subscription {
	sub := &Subscription{key: key, ch: make(chan calc.Status, 1), store: m}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[key] == nil {
		m.subs[key] = make(map[*Subscription]struct{})
	}
	m.subs[key][sub] = struct{}{}
	if st, ok := m.statuses[key]; ok {
		sub.offer(st)
	}
	return sub
}

func (m *MemoryStore) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subs[sub.key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.subs, sub.key)
		}
	}
	close(sub.ch)
}

// Delete removes the record. Subscribers stay registered and see the next Set.
func (m *MemoryStore) Delete(key Key) {
	m.mu.Lock()
	delete(m.statuses, key)
	m.mu.Unlock()
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.statuses = make(map[Key]calc.Status)
	m.mu.Unlock()
}

// Keys returns every stored key in a stable order.
func (m *MemoryStore) Keys() []Key {
	m.mu.Lock()
	keys := make([]Key, 0, len(m.statuses))
	for k := range m.statuses {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statuses)
}
