package batch

import (
	"sync"

	"atelier/internal/domain"
	"atelier/internal/pipeline"
)

// ItemStore is the shared work item collection. All writes are keyed
// upserts by item id, so two items settling at the same moment can never
// overwrite each other's fields; the collection is never iterated or
// cleared while pipelines are active.
type ItemStore struct {
	mu    sync.RWMutex
	order []int
	items map[int]domain.WorkItem
}

func NewItemStore(items []domain.WorkItem) *ItemStore {
	s := &ItemStore{
		order: make([]int, 0, len(items)),
		items: make(map[int]domain.WorkItem, len(items)),
	}
	for _, item := range items {
		s.order = append(s.order, item.ID)
		s.items[item.ID] = item
	}
	return s
}

// Apply upserts the fields carried by one pipeline update.
func (s *ItemStore) Apply(u pipeline.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[u.ItemID]
	if !ok {
		return
	}
	item.Status = u.Status
	item.Progress = u.Progress
	item.ErrorMessage = u.ErrorMessage
	item.ImageResult = u.ImageResult
	item.VideoResult = u.VideoResult
	s.items[u.ItemID] = item
}

// Put replaces one item wholesale, keyed by its id.
func (s *ItemStore) Put(item domain.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		s.order = append(s.order, item.ID)
	}
	s.items[item.ID] = item
}

func (s *ItemStore) Get(id int) (domain.WorkItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Snapshot returns the items in planning order.
func (s *ItemStore) Snapshot() []domain.WorkItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WorkItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}
