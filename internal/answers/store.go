// internal/answers/store.go
package answers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the mutable answer set for one application run. It satisfies
// schemas.AnswerStore for the dispatcher while letting resolvers add records
// as they find material. Later Puts overwrite earlier ones, so a re-read of
// the answers file after user edits takes effect on retry.
type Store struct {
	mu      sync.RWMutex
	records map[string]schemas.AnswerRecord
	order   []string
}

var _ schemas.AnswerStore = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]schemas.AnswerRecord)}
}

// Get implements schemas.AnswerStore.
func (s *Store) Get(fieldID string) (schemas.AnswerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fieldID]
	return rec, ok
}

// Has reports whether a record exists for the field id.
func (s *Store) Has(fieldID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[fieldID]
	return ok
}

// Put inserts or replaces the record for its field id, stamping the time
// when unset. Records without a field id are dropped.
func (s *Store) Put(rec schemas.AnswerRecord) {
	if rec.FieldID == "" {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.FieldID]; !exists {
		s.order = append(s.order, rec.FieldID)
	}
	s.records[rec.FieldID] = rec
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Payload returns the records keyed by display name for artifact output.
// Display-name collisions between different fields are disambiguated with
// the field id.
func (s *Store) Payload() map[string]schemas.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload := make(map[string]schemas.AnswerRecord, len(s.records))
	for _, fieldID := range s.order {
		rec := s.records[fieldID]
		key := strings.TrimSpace(rec.DisplayName)
		if key == "" {
			key = rec.FieldID
		}
		if existing, ok := payload[key]; ok && existing.FieldID != rec.FieldID {
			key = fmt.Sprintf("%s (%s)", key, rec.FieldID)
		}
		payload[key] = rec
	}
	return payload
}
