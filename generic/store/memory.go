// Package store provides in-process implementations of the generic store contracts.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	entries  map[generic.EntryID]generic.TimeEntry
	byKey    map[generic.EntryKey]generic.EntryID
	projects map[generic.PrincipalID][]generic.ProjectCode
	names    map[generic.ProjectCode]string
	now      func() time.Time
}

var (
	_ generic.EntryStore      = (*Memory)(nil)
	_ generic.ProjectRegistry = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[generic.EntryID]generic.TimeEntry),
		byKey:    make(map[generic.EntryKey]generic.EntryID),
		projects: make(map[generic.PrincipalID][]generic.ProjectCode),
		names:    make(map[generic.ProjectCode]string),
		now:      time.Now,
	}
}

// Select returns matching entries ordered by date, then project.
func (m *Memory) Select(_ context.Context, filter generic.EntryFilter) ([]generic.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.TimeEntry
	for _, e := range m.entries {
		if filter.Matches(e) {
			result = append(result, e)
		}
	}
	sortEntries(result)
	return result, nil
}

// Insert adds a row, enforcing (principal, project, date) uniqueness.
func (m *Memory) Insert(_ context.Context, entry generic.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byKey[entry.Key()]; exists {
		return generic.NewStoreError("insert", generic.ErrDuplicateEntry)
	}
	if entry.ID == "" {
		entry.ID = generic.EntryID(uuid.NewString())
	}
	now := m.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	m.entries[entry.ID] = entry
	m.byKey[entry.Key()] = entry.ID
	return nil
}

// Update overwrites hours and state in place.
func (m *Memory) Update(_ context.Context, id generic.EntryID, hours generic.Hours, state generic.EntryState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return generic.NewStoreError("update", generic.ErrEntryNotFound)
	}
	e.Hours = hours
	e.State = state
	e.UpdatedAt = m.now().UTC()
	m.entries[id] = e
	return nil
}

// Delete removes matching rows.
func (m *Memory) Delete(_ context.Context, filter generic.EntryFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.entries {
		if !filter.Matches(e) {
			continue
		}
		delete(m.entries, id)
		delete(m.byKey, e.Key())
		removed++
	}
	return removed, nil
}

// =============================================================================
// PROJECT REGISTRY
// =============================================================================

// AssignProject books a project for a principal, optionally naming it.
func (m *Memory) AssignProject(principal generic.PrincipalID, code generic.ProjectCode, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.projects[principal] {
		if existing == code {
			return
		}
	}
	m.projects[principal] = append(m.projects[principal], code)
	if name != "" {
		m.names[code] = name
	}
}

func (m *Memory) ProjectsFor(_ context.Context, principal generic.PrincipalID) ([]generic.ProjectCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.ProjectCode, len(m.projects[principal]))
	copy(result, m.projects[principal])
	return result, nil
}

func (m *Memory) ProjectNames(_ context.Context) (map[generic.ProjectCode]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[generic.ProjectCode]string, len(m.names))
	for k, v := range m.names {
		result[k] = v
	}
	return result, nil
}

func sortEntries(entries []generic.TimeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].Project < entries[j].Project
	})
}
