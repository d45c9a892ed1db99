package vecstore

import (
	"cmp"
	"math"
	"slices"
	"sync"
)

// Memory is a brute-force cosine index. Each user holds at most a few
// thousand records, so a linear scan per search is enough.
type Memory struct {
	mu      sync.RWMutex
	vectors map[string]entry
	owners  map[string]map[string]struct{}
}

type entry struct {
	owner  string
	vector []float32
}

var _ Index = (*Memory)(nil)

// NewMemory returns an empty index.
func NewMemory() *Memory {
	return &Memory{
		vectors: make(map[string]entry),
		owners:  make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Insert(id, owner string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(id)
	m.vectors[id] = entry{owner: owner, vector: slices.Clone(vector)}
	ids := m.owners[owner]
	if ids == nil {
		ids = make(map[string]struct{})
		m.owners[owner] = ids
	}
	ids[id] = struct{}{}
	return nil
}

func (m *Memory) Search(owner string, query []float32, topK int, minSimilarity float32) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	var matches []Match
	for id := range m.owners[owner] {
		s := CosineSimilarity(query, m.vectors[id].vector)
		if s >= minSimilarity {
			matches = append(matches, Match{ID: id, Similarity: s})
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	m.remove(id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) remove(id string) {
	e, ok := m.vectors[id]
	if !ok {
		return
	}
	delete(m.vectors, id)
	if ids := m.owners[e.owner]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.owners, e.owner)
		}
	}
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *Memory) Close() error { return nil }

// CosineSimilarity returns a value in [-1, 1]. Mismatched lengths and zero
// vectors score -1.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return -1
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return float32(max(-1, min(1, s)))
}
