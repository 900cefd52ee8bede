package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. One mutex covers entries and log so a
// transition is observed whole or not at all.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*KyEntry
	logs    map[string][]ApprovalLogRecord // entryID -> records, oldest first
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*KyEntry),
		logs:    make(map[string][]ApprovalLogRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) CreateEntry(ctx context.Context, entry KyEntry) (KyEntry, error) {
	if err := ctx.Err(); err != nil {
		return KyEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, exists := s.entries[entry.ID]; exists {
		return KyEntry{}, ErrEntryExists
	}
	now := s.now().UTC()
	entry.IsApproved = false
	entry.CreatedAt = now
	entry.UpdatedAt = now
	stored := entry
	s.entries[entry.ID] = &stored
	return entry, nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, id string) (KyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return KyEntry{}, ErrEntryNotFound
	}
	return *entry, ctx.Err()
}

func (s *MemoryStore) Transition(ctx context.Context, in TransitionInput) (TransitionResult, error) {
	if err := in.Validate(); err != nil {
		return TransitionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return TransitionResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[in.EntryID]
	if !ok || entry.ProjectID != in.ProjectID {
		return TransitionResult{}, ErrEntryNotFound
	}

	var prev *ApprovalLogRecord
	if list := s.logs[in.EntryID]; len(list) > 0 {
		prev = &list[len(list)-1]
	}
	now := s.now()
	rec := NewRecord(uuid.NewString(), in, prev, now)

	entry.IsApproved = in.Action == ActionApprove
	entry.UpdatedAt = rec.CreatedAt
	s.logs[in.EntryID] = append(s.logs[in.EntryID], rec)
	return TransitionResult{Entry: *entry, Record: rec}, nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, id string) error {
	if err := ValidateEntryID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if entry.IsApproved {
		return ErrApprovedEntryImmutable
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) ListLog(ctx context.Context, entryID string) ([]ApprovalLogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ApprovalLogRecord{}, s.logs[entryID]...), ctx.Err()
}
