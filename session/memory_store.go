package session

import (
	"context"
	"sync"
	"time"
)

const defaultJanitorInterval = time.Minute

type memoryEntry struct {
	payload   []byte
	subjectID string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests. Entries hold the same encoded payload a remote backend would, and a
// background janitor reclaims expired entries the way a TTL-capable cache
// does; readers additionally filter on expiry so a not-yet-collected entry
// is never served.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	bySubject map[string]map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once

	now func() time.Time
}

// NewMemoryStore starts a store whose janitor runs every interval
// (defaultJanitorInterval when interval <= 0).
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}

	s := &MemoryStore{
		entries:   make(map[string]memoryEntry),
		bySubject: make(map[string]map[string]struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	go s.janitor(interval)

	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reap()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) reap() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for token, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			s.removeLocked(token, entry.subjectID)
		}
	}
}

func (s *MemoryStore) removeLocked(token, subjectID string) {
	delete(s.entries, token)
	if tokens, ok := s.bySubject[subjectID]; ok {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(s.bySubject, subjectID)
		}
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, record *Record, ttl time.Duration) error {
	payload, err := Encode(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[record.Token]; ok && prev.subjectID != record.SubjectID {
		s.removeLocked(record.Token, prev.subjectID)
	}

	s.entries[record.Token] = memoryEntry{
		payload:   payload,
		subjectID: record.SubjectID,
		expiresAt: s.now().Add(ttl),
	}

	tokens, ok := s.bySubject[record.SubjectID]
	if !ok {
		tokens = make(map[string]struct{})
		s.bySubject[record.SubjectID] = tokens
	}
	tokens[record.Token] = struct{}{}

	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, token string) (*Record, error) {
	s.mu.RLock()
	entry, ok := s.entries[token]
	s.mu.RUnlock()

	if !ok || !entry.expiresAt.After(s.now()) {
		return nil, ErrNotFound
	}

	record, err := Decode(entry.payload)
	if err != nil {
		return nil, err
	}
	record.Token = token

	return record, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[token]; ok {
		s.removeLocked(token, entry.subjectID)
	}
	return nil
}

// ListBySubject implements Store.
func (s *MemoryStore) ListBySubject(_ context.Context, subjectID string) ([]*Record, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*Record
	for token := range s.bySubject[subjectID] {
		entry, ok := s.entries[token]
		if !ok || !entry.expiresAt.After(now) {
			continue
		}
		record, err := Decode(entry.payload)
		if err != nil {
			return nil, err
		}
		record.Token = token
		records = append(records, record)
	}

	return records, nil
}

// RefreshTTL implements Store.
func (s *MemoryStore) RefreshTTL(_ context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok || !entry.expiresAt.After(s.now()) {
		return ErrNotFound
	}

	entry.expiresAt = s.now().Add(ttl)
	s.entries[token] = entry
	return nil
}

// Close stops the janitor. The store stays readable afterwards, which keeps
// shutdown ordering forgiving for callers draining in-flight requests.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
