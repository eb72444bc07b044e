// Package decisionlog records every bandit and role decision for later audit.
package decisionlog

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the operation that produced an entry.
type Kind string

const (
	KindSelect Kind = "select"
	KindUpdate Kind = "update"
	KindInfer  Kind = "infer"
)

// Entry is one recorded decision. Bandit fields are zero for inferences and
// role fields are empty for bandit calls.
type Entry struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	ArmCount   int               `json:"arm_count,omitempty"`
	Arm        int               `json:"arm"`
	Reward     float64           `json:"reward,omitempty"`
	Explored   bool              `json:"explored,omitempty"`
	Role       string            `json:"role,omitempty"`
	Evidence   map[string]string `json:"evidence,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Store persists decision entries.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Filter limits List queries.
type Filter struct {
	Kind  Kind
	Since time.Time
	Limit int
}

// Stamp fills the ID and timestamp of entry when they are unset.
func Stamp(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	entry.RecordedAt = entry.RecordedAt.UTC()
	return entry
}

// MemoryStore keeps entries in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore returns an in-memory decision log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an entry.
func (s *MemoryStore) Record(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Stamp(entry))
	return nil
}

// List returns filtered entries, newest first. Entries with the same
// timestamp come back in reverse recording order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if !filter.Since.IsZero() && e.RecordedAt.Before(filter.Since) {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func encodeEvidence(evidence map[string]string) (string, error) {
	if len(evidence) == 0 {
		return "", nil
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeEvidence(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
