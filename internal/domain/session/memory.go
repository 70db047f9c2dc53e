package session

import (
	"context"
	"sort"
	"sync"

	"github.com/turtacn/ContactScope/pkg/types/common"
)

// MemoryRepository keeps sessions in process memory. It is used when no
// database is configured and in tests. With a positive capacity the oldest
// sessions are evicted first.
type MemoryRepository struct {
	mu       sync.RWMutex
	capacity int
	byID     map[common.ID]*Session
	order    []common.ID
}

// NewMemoryRepository creates an empty repository. capacity <= 0 means
// unbounded.
func NewMemoryRepository(capacity int) *MemoryRepository {
	return &MemoryRepository{
		capacity: capacity,
		byID:     make(map[common.ID]*Session),
	}
}

func (r *MemoryRepository) Save(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[s.ID]; !ok {
		r.order = append(r.order, s.ID)
	}
	r.byID[s.ID] = s
	for r.capacity > 0 && len(r.order) > r.capacity {
		delete(r.byID, r.order[0])
		r.order = r.order[1:]
	}
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id common.ID) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, NotFound(id)
	}
	return s, nil
}

// List returns headers newest first.
func (r *MemoryRepository) List(ctx context.Context, page common.Pagination) ([]Header, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	page = page.Normalize(20, 100)

	r.mu.RLock()
	all := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := int64(len(all))
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	out := make([]Header, 0, end-start)
	for _, s := range all[start:end] {
		out = append(out, s.Header())
	}
	return out, total, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id common.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return NotFound(id)
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored sessions.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
