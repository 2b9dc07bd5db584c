// Package embedding provides the speaker embedding batch container shared
// by the anonymization pipeline.
//
// # Data model
//
// A [Batch] is an ordered collection of (identifier, vector) pairs plus
// speaker and gender labels aligned to the same order. All vectors in a
// batch have the same dimensionality. Batches are write-once: after
// [Batch.SetVectors] succeeds the contents never change, and every pipeline
// stage that transforms a batch allocates a new one. This keeps the input
// batch valid for comparison after anonymization.
//
// # Levels
//
// Depending on the pipeline stage, one entry represents either a speaker
// (all utterances of that speaker pooled into one vector) or a single
// utterance. The [Level] tag records which, and is carried through
// transformations unchanged.
package embedding

import (
	"errors"
	"fmt"
	"iter"

	"github.com/voxmask/voxmask/go/pkg/device"
)

// ErrShape is returned when vector dimensionalities or metadata lengths
// do not line up.
var ErrShape = errors.New("embedding: shape mismatch")

// VecType tags the embedding family a vector belongs to. It identifies
// which upstream extractor produced the vectors; the pipeline treats it
// as an opaque label.
type VecType string

const (
	VecTypeXVector    VecType = "xvector"
	VecTypeECAPA      VecType = "ecapa"
	VecTypeStyleEmbed VecType = "style-embed"
)

// ParseVecType validates a vector type name.
func ParseVecType(s string) (VecType, error) {
	switch VecType(s) {
	case VecTypeXVector, VecTypeECAPA, VecTypeStyleEmbed:
		return VecType(s), nil
	}
	return "", fmt.Errorf("embedding: unknown vector type %q", s)
}

// Level indicates whether batch entries are per-speaker or per-utterance.
type Level string

const (
	LevelSpeaker   Level = "speaker"
	LevelUtterance Level = "utterance"
)

// ParseLevel validates an embedding level name.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelSpeaker, LevelUtterance:
		return Level(s), nil
	}
	return "", fmt.Errorf("embedding: unknown level %q", s)
}

// Batch holds identifiers, stacked vectors and aligned speaker/gender
// labels. Create with [New], fill with [Batch.SetVectors].
type Batch struct {
	vecType VecType
	level   Level
	dev     device.Device

	ids      []string
	vectors  [][]float32
	speakers []string
	genders  []string
}

// New creates an empty batch with the given tags.
func New(vecType VecType, dev device.Device, level Level) *Batch {
	return &Batch{vecType: vecType, dev: dev, level: level}
}

// SetVectors materializes the batch contents. All four slices must have the
// same length and all vectors the same dimensionality; violations return an
// error wrapping [ErrShape]. Inputs are copied, so callers may reuse their
// slices afterwards.
func (b *Batch) SetVectors(identifiers []string, vectors [][]float32, genders, speakers []string) error {
	n := len(identifiers)
	if len(vectors) != n || len(genders) != n || len(speakers) != n {
		return fmt.Errorf("embedding: %d identifiers, %d vectors, %d genders, %d speakers: %w",
			n, len(vectors), len(genders), len(speakers), ErrShape)
	}
	if n == 0 {
		return fmt.Errorf("embedding: empty batch: %w", ErrShape)
	}

	dim := len(vectors[0])
	ids := make([]string, n)
	vecs := make([][]float32, n)
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("embedding: vector %q has dimension %d, want %d: %w",
				identifiers[i], len(v), dim, ErrShape)
		}
		cp := make([]float32, dim)
		copy(cp, v)
		vecs[i] = cp
		ids[i] = identifiers[i]
	}

	b.ids = ids
	b.vectors = vecs
	b.genders = append([]string(nil), genders...)
	b.speakers = append([]string(nil), speakers...)
	return nil
}

// All iterates over (identifier, vector) pairs in insertion order.
// The yielded vector is a copy; callers may modify it freely.
func (b *Batch) All() iter.Seq2[string, []float32] {
	return func(yield func(string, []float32) bool) {
		for i, id := range b.ids {
			cp := make([]float32, len(b.vectors[i]))
			copy(cp, b.vectors[i])
			if !yield(id, cp) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (b *Batch) Len() int { return len(b.ids) }

// Dim returns the vector dimensionality, or 0 for an unfilled batch.
func (b *Batch) Dim() int {
	if len(b.vectors) == 0 {
		return 0
	}
	return len(b.vectors[0])
}

// Identifiers returns the entry identifiers in order.
func (b *Batch) Identifiers() []string { return append([]string(nil), b.ids...) }

// Speakers returns the original-speaker labels aligned to the entry order.
func (b *Batch) Speakers() []string { return append([]string(nil), b.speakers...) }

// Genders returns the gender labels aligned to the entry order.
func (b *Batch) Genders() []string { return append([]string(nil), b.genders...) }

// Vector returns a copy of the vector at index i.
func (b *Batch) Vector(i int) []float32 {
	cp := make([]float32, len(b.vectors[i]))
	copy(cp, b.vectors[i])
	return cp
}

// VecType returns the embedding family tag.
func (b *Batch) VecType() VecType { return b.vecType }

// Level returns the embedding level tag.
func (b *Batch) Level() Level { return b.level }

// Device returns the compute device the batch vectors live on.
func (b *Batch) Device() device.Device { return b.dev }
