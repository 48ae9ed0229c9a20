package api

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultStoreSize bounds how many answers are kept for GET.
const DefaultStoreSize = 1024

// AnswerStore keeps recent answers in memory. Once full, the oldest entry is
// evicted.
type AnswerStore struct {
	mu      sync.Mutex
	limit   int
	answers map[string]Answer
	order   []string
}

func NewAnswerStore(limit int) *AnswerStore {
	if limit <= 0 {
		limit = DefaultStoreSize
	}
	return &AnswerStore{
		limit:   limit,
		answers: make(map[string]Answer),
	}
}

func (s *AnswerStore) Save(a Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.answers[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.answers[a.ID] = a
	for len(s.answers) > s.limit && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.answers, oldest)
	}
}

func (s *AnswerStore) Get(id string) (Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[id]
	return a, ok
}

func (s *AnswerStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.answers[id]; !ok {
		return false
	}
	delete(s.answers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *AnswerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

func newAnswerID() string {
	return "ans_" + uuid.NewString()
}
