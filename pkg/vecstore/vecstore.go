// Package vecstore is a nearest-neighbor index over conversation
// embeddings. Every vector belongs to an owner (a user id) and searches are
// always scoped to one owner.
package vecstore

// Index stores vectors by id. Implementations are safe for concurrent use.
type Index interface {
	// Insert adds or replaces the vector for id.
	Insert(id, owner string, vector []float32) error
	// Search returns up to topK of owner's vectors with cosine similarity
	// at least minSimilarity, most similar first.
	Search(owner string, query []float32, topK int, minSimilarity float32) ([]Match, error)
	// Delete is a no-op for unknown ids.
	Delete(id string) error
	Len() int
	Close() error
}

// Match is one search hit.
type Match struct {
	ID         string
	Similarity float32
}
