// Package store provides in-memory implementations of the engine's
// persistence interfaces, used by tests and dev mode. The SQLite
// implementation in store/sqlite is the production path.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hostelhub/outpass-engine/directory"
	"github.com/hostelhub/outpass-engine/mess"
	"github.com/hostelhub/outpass-engine/outpass"
)

// =============================================================================
// MEMORY STORE - PassStore + PauseStore + Directory in one box
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	passes   map[string]*outpass.Pass
	byToken  map[string]string // token -> pass id
	pauses   map[string]mess.PauseRecord
	students map[string]directory.Student // keyed by roll and by id
	events   []outpass.ScanEvent
}

func NewMemory() *Memory {
	return &Memory{
		passes:   make(map[string]*outpass.Pass),
		byToken:  make(map[string]string),
		pauses:   make(map[string]mess.PauseRecord),
		students: make(map[string]directory.Student),
	}
}

// Compile-time interface checks.
var (
	_ outpass.PassStore   = (*Memory)(nil)
	_ mess.PauseStore     = (*Memory)(nil)
	_ directory.Directory = (*Memory)(nil)
)

func clone(p *outpass.Pass) *outpass.Pass {
	cp := *p
	return &cp
}

// =============================================================================
// PASS STORE
// =============================================================================

func (m *Memory) CreatePass(_ context.Context, p *outpass.Pass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes[p.ID] = clone(p)
	if p.Token != "" {
		m.byToken[p.Token] = p.ID
	}
	return nil
}

func (m *Memory) GetPass(_ context.Context, id string) (*outpass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.passes[id]
	if !ok {
		return nil, outpass.ErrPassNotFound
	}
	return clone(p), nil
}

func (m *Memory) GetPassByToken(_ context.Context, token string) (*outpass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[token]
	if !ok {
		return nil, outpass.ErrPassNotFound
	}
	p, ok := m.passes[id]
	if !ok || p.Token != token {
		// Stale index entry: the token has been superseded by regeneration.
		return nil, outpass.ErrPassNotFound
	}
	return clone(p), nil
}

func (m *Memory) ListByStudent(_ context.Context, studentRef string, statuses ...outpass.Status) ([]*outpass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*outpass.Pass
	for _, p := range m.passes {
		if p.StudentRef != studentRef {
			continue
		}
		if matchesStatus(p.Status, statuses) {
			result = append(result, clone(p))
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (m *Memory) ListByStatus(_ context.Context, statuses ...outpass.Status) ([]*outpass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*outpass.Pass
	for _, p := range m.passes {
		if matchesStatus(p.Status, statuses) {
			result = append(result, clone(p))
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (m *Memory) CountInQuota(_ context.Context, studentRef string, period outpass.QuotaPeriod, statuses ...outpass.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.passes {
		if p.StudentRef == studentRef && p.Quota == period && matchesStatus(p.Status, statuses) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) UpdatePassIf(_ context.Context, p *outpass.Pass, expectStatus outpass.Status, expectToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.passes[p.ID]
	if !ok {
		return outpass.ErrPassNotFound
	}
	if current.Status != expectStatus || current.Token != expectToken {
		return outpass.ErrConflictingTransition
	}
	if current.Token != "" && current.Token != p.Token {
		delete(m.byToken, current.Token)
	}
	m.passes[p.ID] = clone(p)
	if p.Token != "" {
		m.byToken[p.Token] = p.ID
	}
	return nil
}

func (m *Memory) AppendScanEvent(_ context.Context, ev outpass.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) RecentScanEvents(_ context.Context, since time.Time, limit int) ([]outpass.ScanEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []outpass.ScanEvent
	for _, ev := range m.events {
		if !ev.At.Before(since) {
			result = append(result, ev)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].At.After(result[j].At) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) CountByStatus(_ context.Context, status outpass.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.passes {
		if p.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountReturnedSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.passes {
		if p.Status == outpass.StatusReturned && p.ActualIn != nil && !p.ActualIn.Before(since) {
			count++
		}
	}
	return count, nil
}

func matchesStatus(s outpass.Status, statuses []outpass.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func sortNewestFirst(passes []*outpass.Pass) {
	sort.Slice(passes, func(i, j int) bool {
		return passes[i].UpdatedAt.After(passes[j].UpdatedAt)
	})
}

// =============================================================================
// PAUSE STORE
// =============================================================================

func (m *Memory) UpsertPause(_ context.Context, rec mess.PauseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.PausedMeals = append([]mess.Meal(nil), rec.PausedMeals...)
	rec.ResumedMeals = append([]mess.Meal(nil), rec.ResumedMeals...)
	m.pauses[rec.StudentRef] = rec
	return nil
}

func (m *Memory) GetPause(_ context.Context, studentRef string) (*mess.PauseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.pauses[studentRef]
	if !ok {
		return nil, mess.ErrNoPause
	}
	cp := rec
	cp.PausedMeals = append([]mess.Meal(nil), rec.PausedMeals...)
	cp.ResumedMeals = append([]mess.Meal(nil), rec.ResumedMeals...)
	return &cp, nil
}

func (m *Memory) DeletePause(_ context.Context, studentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pauses, studentRef)
	return nil
}

// =============================================================================
// STUDENT DIRECTORY
// =============================================================================

// AddStudent seeds a directory entry, addressable by roll and by id.
func (m *Memory) AddStudent(s directory.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.Roll] = s
	if s.ID != "" {
		m.students[s.ID] = s
	}
}

// SaveStudent upserts a directory entry. Write side of the directory,
// mirrors the sqlite store.
func (m *Memory) SaveStudent(_ context.Context, s directory.Student) error {
	m.AddStudent(s)
	return nil
}

func (m *Memory) FindByKey(_ context.Context, key string) (*directory.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[key]
	if !ok {
		return nil, directory.ErrStudentNotFound
	}
	cp := s
	return &cp, nil
}
