package anonymizer

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/voxmask/voxmask/go/pkg/device"
	"github.com/voxmask/voxmask/go/pkg/embedding"
)

func poolBatch(t *testing.T, vecs map[string][]float32) *embedding.Batch {
	t.Helper()
	ids := make([]string, 0, len(vecs))
	for id := range vecs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	vectors := make([][]float32, len(ids))
	genders := make([]string, len(ids))
	speakers := make([]string, len(ids))
	for i, id := range ids {
		vectors[i] = vecs[id]
		genders[i] = "m"
		speakers[i] = id
	}
	b := embedding.New(embedding.VecTypeXVector, device.Default(), embedding.LevelSpeaker)
	if err := b.SetVectors(ids, vectors, genders, speakers); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPoolAveragesFarthest(t *testing.T) {
	// Query points east; the two farthest pool vectors are west-ish.
	pool := poolBatch(t, map[string][]float32{
		"east":      {1, 0},
		"northwest": {-1, 1},
		"southwest": {-1, -1},
	})
	p, err := NewPool(pool, PoolOptions{
		Device:     device.Default(),
		VecType:    embedding.VecTypeXVector,
		Candidates: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	in := makeBatch(t, []string{"spk"}, [][]float32{{1, 0.01}})
	out, err := p.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}

	// Mean of northwest and southwest is (-1, 0).
	got := out.Vector(0)
	if math.Abs(float64(got[0]+1)) > 1e-6 || math.Abs(float64(got[1])) > 1e-6 {
		t.Errorf("substitute = %v, want [-1 0]", got)
	}
	if !slices.Equal(out.Identifiers(), []string{"spk"}) {
		t.Errorf("identifiers = %v", out.Identifiers())
	}
}

func TestPoolDeterministic(t *testing.T) {
	pool := poolBatch(t, map[string][]float32{
		"a": {1, 0, 0}, "b": {0, 1, 0}, "c": {0, 0, 1}, "d": {-1, -1, -1},
	})
	p, err := NewPool(pool, PoolOptions{Device: device.Default(), VecType: embedding.VecTypeXVector, Candidates: 2})
	if err != nil {
		t.Fatal(err)
	}
	in := makeBatch(t, []string{"x"}, [][]float32{{0.5, 0.5, 0}})

	first, err := p.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(first.Vector(0), second.Vector(0)) {
		t.Error("pool substitutes must be deterministic for a fixed pool")
	}
}

func TestPoolCandidateClamp(t *testing.T) {
	pool := poolBatch(t, map[string][]float32{"a": {1, 0}, "b": {0, 1}})
	p, err := NewPool(pool, PoolOptions{
		Device:     device.Default(),
		VecType:    embedding.VecTypeXVector,
		Candidates: 50, // larger than the pool
	})
	if err != nil {
		t.Fatal(err)
	}
	in := makeBatch(t, []string{"x"}, [][]float32{{1, 1}})
	out, err := p.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	// Mean of the whole pool: (0.5, 0.5).
	got := out.Vector(0)
	if math.Abs(float64(got[0]-0.5)) > 1e-6 || math.Abs(float64(got[1]-0.5)) > 1e-6 {
		t.Errorf("substitute = %v, want [0.5 0.5]", got)
	}
}

func TestPoolDimMismatch(t *testing.T) {
	pool := poolBatch(t, map[string][]float32{"a": {1, 0}})
	p, err := NewPool(pool, PoolOptions{Device: device.Default(), VecType: embedding.VecTypeXVector})
	if err != nil {
		t.Fatal(err)
	}
	in := makeBatch(t, []string{"x"}, [][]float32{{1, 2, 3}})
	_, err = p.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if !errors.Is(err, embedding.ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

func TestPoolEmpty(t *testing.T) {
	if _, err := NewPool(nil, PoolOptions{}); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("nil pool: err = %v, want ErrEmptyBatch", err)
	}
}

func TestPoolModelName(t *testing.T) {
	pool := poolBatch(t, map[string][]float32{"a": {1}})
	p, err := NewPool(pool, PoolOptions{VecType: embedding.VecTypeStyleEmbed})
	if err != nil {
		t.Fatal(err)
	}
	if p.ModelName() != "pool_style-embed" {
		t.Errorf("ModelName() = %q", p.ModelName())
	}
}
