package resolution

import "sync"

// Session accumulates the "not a duplicate" decisions made while resolving
// one draft. It is passed explicitly to the matcher rather than held as
// shared state, so concurrent flows never see each other's dismissals. The
// ids collected here become the created record's notDuplicateOf list.
type Session struct {
	mu        sync.Mutex
	dismissed map[int64]struct{}
	order     []int64
}

func NewSession() *Session {
	return &Session{dismissed: make(map[int64]struct{})}
}

// Dismiss records that the draft is not a duplicate of the given record.
func (s *Session) Dismiss(candidateID int64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.dismissed[candidateID]; seen {
		return
	}
	s.dismissed[candidateID] = struct{}{}
	s.order = append(s.order, candidateID)
}

// Dismissed reports whether the record was already dismissed in this session.
func (s *Session) Dismissed(candidateID int64) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.dismissed[candidateID]
	return seen
}

// IDs returns the dismissed ids in dismissal order.
func (s *Session) IDs() []int64 {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(s.order))
	copy(ids, s.order)
	return ids
}

// Len returns the number of dismissals.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
