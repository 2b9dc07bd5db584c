package anonymizer

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/voxmask/voxmask/go/pkg/device"
	"github.com/voxmask/voxmask/go/pkg/embedding"
	"github.com/voxmask/voxmask/go/pkg/vecstore"
)

// DefaultPoolCandidates is how many distant pool embeddings are averaged
// into one substitute when PoolOptions.Candidates is zero.
const DefaultPoolCandidates = 10

// PoolOptions configures a [Pool] strategy.
type PoolOptions struct {
	// Device is the compute target for the substitute vectors.
	Device device.Device

	// VecType tags which embedding family this instance handles.
	VecType embedding.VecType

	// ModelName is the display name. Defaults to "pool_<VecType>".
	ModelName string

	// Candidates is how many farthest pool embeddings are averaged per
	// substitute. Zero means [DefaultPoolCandidates]; values above the
	// pool size are clamped to it.
	Candidates int
}

// Pool substitutes each source vector with the mean of the pool embeddings
// farthest from it (cosine distance). Unlike [Random], the substitute is a
// plausible point in the embedding space, so downstream synthesis stays
// closer to natural voices, at the cost of needing an external pool of
// speakers disjoint from the data being anonymized.
type Pool struct {
	dev        device.Device
	vecType    embedding.VecType
	modelName  string
	candidates int

	dim     int
	index   vecstore.Index
	vectors map[string][]float32
}

// NewPool builds a Pool strategy over the given pool batch. The pool is
// indexed once here; Anonymize only scans.
func NewPool(pool *embedding.Batch, opts PoolOptions) (*Pool, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, fmt.Errorf("%w (pool)", ErrEmptyBatch)
	}
	name := opts.ModelName
	if name == "" {
		name = "pool_" + string(opts.VecType)
	}
	k := opts.Candidates
	if k <= 0 {
		k = DefaultPoolCandidates
	}
	if k > pool.Len() {
		k = pool.Len()
	}

	idx := vecstore.NewMemory()
	vectors := make(map[string][]float32, pool.Len())
	for id, vec := range pool.All() {
		if err := idx.Insert(id, vec); err != nil {
			return nil, err
		}
		vectors[id] = vec
	}

	return &Pool{
		dev:        opts.Device,
		vecType:    opts.VecType,
		modelName:  name,
		candidates: k,
		dim:        pool.Dim(),
		index:      idx,
		vectors:    vectors,
	}, nil
}

// ModelName returns the display name of this instance.
func (p *Pool) ModelName() string { return p.modelName }

// VecType returns the embedding family this instance handles.
func (p *Pool) VecType() embedding.VecType { return p.vecType }

// Anonymize replaces each vector with the mean of the farthest pool
// candidates. Output order and metadata follow the input batch.
func (p *Pool) Anonymize(_ context.Context, batch *embedding.Batch, level embedding.Level) (*embedding.Batch, error) {
	if batch == nil || batch.Len() == 0 {
		return nil, fmt.Errorf("%w (model %s)", ErrEmptyBatch, p.modelName)
	}
	if batch.Dim() != p.dim {
		return nil, fmt.Errorf("anonymizer: %s: pool has dimension %d, batch has %d: %w",
			p.modelName, p.dim, batch.Dim(), embedding.ErrShape)
	}
	if err := p.dev.Check(); err != nil {
		return nil, err
	}

	n := batch.Len()
	ids := make([]string, 0, n)
	vecs := make([][]float32, 0, n)

	for id, vec := range batch.All() {
		matches, err := p.index.Farthest(vec, p.candidates)
		if err != nil {
			return nil, err
		}

		avg := make([]float64, p.dim)
		for _, m := range matches {
			for i, x := range p.vectors[m.ID] {
				avg[i] += float64(x)
			}
		}
		floats.Scale(1/float64(len(matches)), avg)

		placed, err := p.dev.PlaceFloats(avg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		vecs = append(vecs, placed)
	}

	out := embedding.New(p.vecType, p.dev, level)
	if err := out.SetVectors(ids, vecs, batch.Genders(), batch.Speakers()); err != nil {
		return nil, err
	}
	return out, nil
}
