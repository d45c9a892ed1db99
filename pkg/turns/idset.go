package turns

// idSet remembers the most recent ids up to a fixed capacity. The oldest id
// is forgotten first.
type idSet struct {
	ring []string
	next int
	ids  map[string]struct{}
}

func newIDSet(capacity int) *idSet {
	return &idSet{ring: make([]string, capacity), ids: make(map[string]struct{}, capacity)}
}

func (s *idSet) has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *idSet) add(id string) {
	if s.has(id) {
		return
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
}
