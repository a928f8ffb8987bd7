package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/m2tx/function_calling/internal/model"
)

// DefaultMemoryCapacity bounds a MemoryDispatchRepository created with a
// non-positive capacity.
const DefaultMemoryCapacity = 1000

// MemoryDispatchRepository keeps the most recent records in process memory.
// Once full, saving a new ID evicts the oldest record.
// Records are stored as JSON so callers never share maps with the store.
type MemoryDispatchRepository struct {
	mu       sync.RWMutex
	capacity int
	records  map[string][]byte
	order    []string
}

func NewMemoryDispatchRepository(capacity int) *MemoryDispatchRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryDispatchRepository{
		capacity: capacity,
		records:  make(map[string][]byte),
	}
}

func (r *MemoryDispatchRepository) Save(_ context.Context, record model.DispatchRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("repository: encode dispatch %q: %w", record.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.ID]; !ok {
		for len(r.order) >= r.capacity {
			delete(r.records, r.order[0])
			r.order = r.order[1:]
		}
		r.order = append(r.order, record.ID)
	}
	r.records[record.ID] = data

	return nil
}

func (r *MemoryDispatchRepository) Load(_ context.Context, id string) (*model.DispatchRecord, error) {
	r.mu.RLock()
	data, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var record model.DispatchRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("repository: decode dispatch %q: %w", id, err)
	}

	return &record, nil
}

func (r *MemoryDispatchRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return nil
	}
	delete(r.records, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	return nil
}

// Len reports the number of stored records.
func (r *MemoryDispatchRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
