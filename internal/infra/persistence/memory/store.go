// Package memory provides an in-memory implementation of the document store
// used for tests, ephemeral environments, and as the state engine behind the
// snapshotting SQLite and Postgres stores.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"homeworkcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain store interface.
var _ domain.DocumentStore = (*Store)(nil)

type (
	// Template aliases domain.Template for in-memory persistence operations.
	Template = domain.Template
	// DailyDocument aliases domain.DailyDocument.
	DailyDocument = domain.DailyDocument
	// DailyKey aliases domain.DailyKey.
	DailyKey = domain.DailyKey
	// DailyPatch aliases domain.DailyPatch.
	DailyPatch = domain.DailyPatch
	// SubscribeFunc aliases domain.SubscribeFunc.
	SubscribeFunc = domain.SubscribeFunc
)

type memoryState struct {
	templates map[string]Template
	daily     map[string]DailyDocument
}

// Snapshot captures a point-in-time clone of the store state for external
// persistence.
type Snapshot struct {
	Templates map[string]Template      `json:"templates"`
	Daily     map[string]DailyDocument `json:"daily"`
}

func newMemoryState() memoryState {
	return memoryState{
		templates: make(map[string]Template),
		daily:     make(map[string]DailyDocument),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Templates: make(map[string]Template, len(state.templates)),
		Daily:     make(map[string]DailyDocument, len(state.daily)),
	}
	for k, v := range state.templates {
		s.Templates[k] = v.Clone()
	}
	for k, v := range state.daily {
		s.Daily[k] = v.Clone()
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Templates {
		state.templates[k] = v.Clone()
	}
	for k, v := range s.Daily {
		if v.RemovedKeys == nil {
			v.RemovedKeys = domain.NewTombstoneSet()
		}
		state.daily[k] = v.Clone()
	}
	return state
}

// Store provides an in-memory document store with change subscriptions.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	subs   map[string]map[int]SubscribeFunc
	nextID int
	nowFn  func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		subs:  make(map[string]map[int]SubscribeFunc),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. Existing
// subscribers are not notified; hydration happens before subscriptions exist.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// GetTemplate returns the template stored for kid.
func (s *Store) GetTemplate(_ context.Context, kid string) (Template, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.state.templates[kid]
	if !ok {
		return Template{}, false, nil
	}
	return tpl.Clone(), true, nil
}

// PutTemplate stores or overwrites a kid's template.
func (s *Store) PutTemplate(_ context.Context, tpl Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.templates[tpl.KidName] = tpl.Clone()
	return nil
}

// GetDaily returns the daily document addressed by key.
func (s *Store) GetDaily(_ context.Context, key DailyKey) (DailyDocument, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.state.daily[key.String()]
	if !ok {
		return DailyDocument{}, false, nil
	}
	return doc.Clone(), true, nil
}

// PutDaily creates or overwrites the full document at its composite key.
func (s *Store) PutDaily(_ context.Context, doc DailyDocument) error {
	key := doc.Key()
	cp := doc.Clone()
	cp.ID = key.String()
	if cp.RemovedKeys == nil {
		cp.RemovedKeys = domain.NewTombstoneSet()
	}

	s.mu.Lock()
	s.state.daily[key.String()] = cp
	subs := s.subscribersLocked(key.String())
	s.mu.Unlock()

	notify(subs, cp.Clone(), true)
	return nil
}

// UpdateDaily merge-patches the named fields of an existing document.
func (s *Store) UpdateDaily(_ context.Context, key DailyKey, patch DailyPatch) error {
	s.mu.Lock()
	doc, ok := s.state.daily[key.String()]
	if !ok {
		s.mu.Unlock()
		return domain.NotFoundError{Collection: domain.CollectionDaily, Key: key.String()}
	}
	updated := doc.Clone()
	patch.Apply(&updated)
	s.state.daily[key.String()] = updated
	subs := s.subscribersLocked(key.String())
	s.mu.Unlock()

	notify(subs, updated.Clone(), true)
	return nil
}

// ListDailyByDate returns every document for the given date ordered by kid name.
func (s *Store) ListDailyByDate(_ context.Context, date string) ([]DailyDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DailyDocument
	for _, doc := range s.state.daily {
		if doc.Date == date {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KidName < out[j].KidName })
	return out, nil
}

// SubscribeDaily registers fn for changes on key. fn observes the current
// state immediately, then every subsequent successful write.
func (s *Store) SubscribeDaily(_ context.Context, key DailyKey, fn SubscribeFunc) (func(), error) {
	k := key.String()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[k] == nil {
		s.subs[k] = make(map[int]SubscribeFunc)
	}
	s.subs[k][id] = fn
	doc, ok := s.state.daily[k]
	if ok {
		doc = doc.Clone()
	}
	s.mu.Unlock()

	fn(doc, ok)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if m, ok := s.subs[k]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(s.subs, k)
			}
		}
	}, nil
}

// subscribersLocked snapshots the callbacks registered for key. Caller holds mu.
func (s *Store) subscribersLocked(key string) []SubscribeFunc {
	m := s.subs[key]
	if len(m) == 0 {
		return nil
	}
	out := make([]SubscribeFunc, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

// notify pushes the full document snapshot to each subscriber outside the
// store lock.
func notify(subs []SubscribeFunc, doc DailyDocument, ok bool) {
	for _, fn := range subs {
		fn(doc.Clone(), ok)
	}
}
