package vecstore

import (
	"math"
	"sort"
	"sync"
)

// Memory is a brute-force in-memory [Index]. Every scan walks all stored
// vectors, which is fine for the candidate-pool sizes this pipeline uses
// (hundreds to low thousands).
//
// It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{vectors: make(map[string][]float32)}
}

func (m *Memory) Insert(id string, vector []float32) error {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	m.vectors[id] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Nearest(query []float32, k int) ([]Match, error) {
	return m.scan(query, k, false)
}

func (m *Memory) Farthest(query []float32, k int) ([]Match, error) {
	return m.scan(query, k, true)
}

// scan ranks all stored vectors against the query. descending selects
// farthest-first ordering.
func (m *Memory) scan(query []float32, k int, descending bool) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 || k <= 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(m.vectors))
	for id, vec := range m.vectors {
		matches = append(matches, Match{ID: id, Distance: CosineDistance(query, vec)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if descending {
			return matches[i].Distance > matches[j].Distance
		}
		return matches[i].Distance < matches[j].Distance
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *Memory) Close() error {
	return nil
}

// CosineDistance computes the cosine distance between two vectors:
// 0 for identical direction, 2 for opposite. Mismatched lengths and
// zero-norm vectors rank as maximally distant.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 2
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp against floating point drift.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return float32(1 - sim)
}
