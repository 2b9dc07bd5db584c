// Package vecstore provides similarity scans over dense float32 vectors.
//
// The [Index] interface is deliberately small: the anonymization pipeline
// only needs to rank a candidate pool against a query vector, nearest or
// farthest. The in-memory brute-force implementation ([NewMemory]) covers
// pools up to a few thousand vectors; larger deployments can swap in a
// client for an external vector store behind the same interface.
package vecstore

// Match is a single result of a similarity scan.
type Match struct {
	// ID is the identifier of the matched vector.
	ID string

	// Distance is the cosine distance between query and match, in [0, 2].
	Distance float32
}

// Index ranks stored vectors against query vectors by cosine distance.
//
// Implementations must be safe for concurrent use.
type Index interface {
	// Insert adds or replaces a vector under the given ID.
	Insert(id string, vector []float32) error

	// Nearest returns up to k stored vectors closest to the query,
	// ordered by ascending distance.
	Nearest(query []float32, k int) ([]Match, error)

	// Farthest returns up to k stored vectors most distant from the
	// query, ordered by descending distance.
	Farthest(query []float32, k int) ([]Match, error)

	// Len returns the number of stored vectors.
	Len() int

	// Close releases resources held by the index.
	Close() error
}
