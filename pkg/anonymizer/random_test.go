package anonymizer

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/voxmask/voxmask/go/pkg/device"
	"github.com/voxmask/voxmask/go/pkg/embedding"
)

func makeBatch(t *testing.T, ids []string, vecs [][]float32) *embedding.Batch {
	t.Helper()
	genders := make([]string, len(ids))
	speakers := make([]string, len(ids))
	for i, id := range ids {
		genders[i] = "f"
		speakers[i] = "orig-" + id
	}
	b := embedding.New(embedding.VecTypeXVector, device.Default(), embedding.LevelSpeaker)
	if err := b.SetVectors(ids, vecs, genders, speakers); err != nil {
		t.Fatal(err)
	}
	return b
}

// maskDraws replays the strategy's random source: per vector in batch
// order, per dimension ascending, one integer in [-bound, bound).
func maskDraws(seed uint64, bound, vectors, dims int) [][]int {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([][]int, vectors)
	for v := range out {
		out[v] = make([]int, dims)
		for i := range out[v] {
			out[v][i] = rng.IntN(2*bound) - bound
		}
	}
	return out
}

func TestMaskedPreservesOrderAndShape(t *testing.T) {
	in := makeBatch(t,
		[]string{"spk1", "spk2", "spk3"},
		[][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}},
	)
	r := NewRandom(RandomOptions{Device: device.Default(), VecType: embedding.VecTypeXVector})

	out, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out.Identifiers(), in.Identifiers()) {
		t.Errorf("identifiers changed: %v", out.Identifiers())
	}
	if out.Dim() != in.Dim() {
		t.Errorf("dim changed: %d -> %d", in.Dim(), out.Dim())
	}
	if !slices.Equal(out.Speakers(), in.Speakers()) {
		t.Errorf("speakers changed: %v", out.Speakers())
	}
	if !slices.Equal(out.Genders(), in.Genders()) {
		t.Errorf("genders changed: %v", out.Genders())
	}
	if out.Level() != embedding.LevelSpeaker {
		t.Errorf("level = %s", out.Level())
	}
	// Input must be untouched.
	if !slices.Equal(in.Vector(0), []float32{1, 2, 3, 4}) {
		t.Error("input batch was mutated")
	}
}

func TestMaskedMatchesRecordedDraws(t *testing.T) {
	const seed = 7
	vectors := [][]float32{{1.5, -2, 0.25}, {3, 4, -5}}
	in := makeBatch(t, []string{"a", "b"}, vectors)

	r := NewRandom(RandomOptions{
		Device:  device.Default(),
		VecType: embedding.VecTypeXVector,
		Seed:    seed,
	})
	out, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}

	masks := maskDraws(seed, DefaultMaskBound, 2, 3)
	for v := range vectors {
		got := out.Vector(v)
		for i := range got {
			m := masks[v][i]
			if m < -40 || m > 39 {
				t.Fatalf("mask %d out of [-40, 39]", m)
			}
			want := vectors[v][i] * float32(m)
			if got[i] != want {
				t.Errorf("vector %d dim %d = %v, want %v (mask %d)", v, i, got[i], want, m)
			}
			if m == 0 && got[i] != 0 {
				t.Errorf("zero mask at vector %d dim %d must zero the output, got %v", v, i, got[i])
			}
		}
	}
}

func TestMaskedZeroMaskZeroesOutput(t *testing.T) {
	// With 200 dims a zero draw is near-certain; find one via replay and
	// check the corresponding output coordinate.
	const seed, dims = 11, 200
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = 123.456
	}
	in := makeBatch(t, []string{"a"}, [][]float32{vec})

	r := NewRandom(RandomOptions{Device: device.Default(), VecType: embedding.VecTypeXVector, Seed: seed})
	out, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}

	masks := maskDraws(seed, DefaultMaskBound, 1, dims)
	found := false
	for i, m := range masks[0] {
		if m == 0 {
			found = true
			if out.Vector(0)[i] != 0 {
				t.Errorf("dim %d: mask 0 but output %v", i, out.Vector(0)[i])
			}
		}
	}
	if !found {
		t.Skip("no zero mask drawn for this seed")
	}
}

func TestMaskedEndToEndFixedSeed(t *testing.T) {
	// Deterministic scenario: 2 identifiers, D=3, uncalibrated, fixed seed.
	const seed = 42
	vectors := [][]float32{{1, 2, 3}, {-1, 0.5, 10}}
	in := makeBatch(t, []string{"u1", "u2"}, vectors)

	masks := maskDraws(seed, DefaultMaskBound, 2, 3)
	want := make([][]float32, 2)
	for v := range want {
		want[v] = make([]float32, 3)
		for i := range want[v] {
			want[v][i] = vectors[v][i] * float32(masks[v][i])
		}
	}

	r := NewRandom(RandomOptions{Device: device.Default(), VecType: embedding.VecTypeXVector, Seed: seed})
	out, err := r.Anonymize(context.Background(), in, embedding.LevelUtterance)
	if err != nil {
		t.Fatal(err)
	}
	for v := range want {
		if !slices.Equal(out.Vector(v), want[v]) {
			t.Errorf("vector %d = %v, want %v", v, out.Vector(v), want[v])
		}
	}
}

func TestMaskBoundOption(t *testing.T) {
	const seed, bound = 3, 5
	vec := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	in := makeBatch(t, []string{"a"}, [][]float32{vec})

	r := NewRandom(RandomOptions{
		Device:    device.Default(),
		VecType:   embedding.VecTypeXVector,
		MaskBound: bound,
		Seed:      seed,
	})
	out, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	for i, x := range out.Vector(0) {
		if x < -float32(bound) || x > float32(bound-1) {
			t.Errorf("dim %d: %v outside [-%d, %d]", i, x, bound, bound-1)
		}
	}
}

func writeStatsFile(t *testing.T, prof Profile) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats_per_dim.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteStats(f, prof); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInScaleWithinRanges(t *testing.T) {
	prof := Profile{{Min: -1, Max: 1}, {Min: 5, Max: 5}, {Min: 100, Max: 200}}
	path := writeStatsFile(t, prof)

	r := NewRandom(RandomOptions{
		Device:    device.Default(),
		VecType:   embedding.VecTypeECAPA,
		InScale:   true,
		StatsPath: path,
	})

	in := makeBatch(t, []string{"a", "b"}, [][]float32{{9, 9, 9}, {8, 8, 8}})

	// Property test: repeated draws must all land inside the ranges.
	for range 50 {
		out, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
		if err != nil {
			t.Fatal(err)
		}
		for v := range out.Len() {
			for i, x := range out.Vector(v) {
				lo, hi := float32(prof[i].Min), float32(prof[i].Max)
				if x < lo || x > hi {
					t.Fatalf("vector %d dim %d: %v outside [%v, %v]", v, i, x, lo, hi)
				}
			}
		}
	}
}

func TestInScaleDiscardsOriginal(t *testing.T) {
	// A degenerate range pins every draw, proving the original value has
	// no influence on the output.
	prof := Profile{{Min: 7, Max: 7}, {Min: -3, Max: -3}}
	path := writeStatsFile(t, prof)

	r := NewRandom(RandomOptions{
		Device:    device.Default(),
		VecType:   embedding.VecTypeXVector,
		InScale:   true,
		StatsPath: path,
	})
	in := makeBatch(t, []string{"a"}, [][]float32{{1000, -1000}})
	out, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Vector(0); got[0] != 7 || got[1] != -3 {
		t.Errorf("output %v, want [7 -3]", got)
	}
}

func TestInScaleNotIdempotent(t *testing.T) {
	prof := Profile{{Min: 0, Max: 1}, {Min: 0, Max: 1}, {Min: 0, Max: 1}}
	path := writeStatsFile(t, prof)

	r := NewRandom(RandomOptions{
		Device:    device.Default(),
		VecType:   embedding.VecTypeXVector,
		InScale:   true,
		StatsPath: path,
	})
	in := makeBatch(t, []string{"a"}, [][]float32{{0, 0, 0}})

	first, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if err != nil {
		t.Fatal(err)
	}
	// Fresh draws each call: equality would mean the random source is stuck.
	if slices.Equal(first.Vector(0), second.Vector(0)) {
		t.Errorf("two calibrated runs produced identical vectors %v", first.Vector(0))
	}
}

func TestInScaleProfileDimMismatch(t *testing.T) {
	prof := Profile{{Min: 0, Max: 1}, {Min: 0, Max: 1}}
	path := writeStatsFile(t, prof)

	r := NewRandom(RandomOptions{
		Device:    device.Default(),
		VecType:   embedding.VecTypeXVector,
		InScale:   true,
		StatsPath: path,
	})
	in := makeBatch(t, []string{"a"}, [][]float32{{1, 2, 3}}) // D=3 vs profile 2

	_, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if !errors.Is(err, embedding.ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

func TestLazyScalingLoad(t *testing.T) {
	loads := 0
	r := NewRandom(RandomOptions{
		Device:    device.Default(),
		VecType:   embedding.VecTypeXVector,
		InScale:   true,
		StatsPath: "ignored.json",
	})
	r.loadStats = func(path string) (Profile, error) {
		loads++
		return Profile{{Min: 0, Max: 1}}, nil
	}

	// Construction must not have read anything.
	if loads != 0 {
		t.Fatalf("construction triggered %d loads", loads)
	}

	if _, err := r.ScalingRanges(); err != nil {
		t.Fatal(err)
	}
	if loads != 1 {
		t.Fatalf("first access: %d loads, want 1", loads)
	}

	// Second access serves the cache.
	if _, err := r.ScalingRanges(); err != nil {
		t.Fatal(err)
	}
	if loads != 1 {
		t.Errorf("second access re-read the file: %d loads", loads)
	}
}

func TestLazyScalingUnconfigured(t *testing.T) {
	r := NewRandom(RandomOptions{Device: device.Default(), VecType: embedding.VecTypeXVector})
	r.loadStats = func(string) (Profile, error) {
		t.Fatal("uncalibrated strategy must never load stats")
		return nil, nil
	}
	p, err := r.ScalingRanges()
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("unconfigured profile = %v, want nil", p)
	}
}

func TestNoFallbackOnLoadFailure(t *testing.T) {
	r := NewRandom(RandomOptions{
		Device:    device.Default(),
		VecType:   embedding.VecTypeXVector,
		InScale:   true,
		StatsPath: filepath.Join(t.TempDir(), "missing.json"),
	})
	in := makeBatch(t, []string{"a"}, [][]float32{{1, 2}})

	_, err := r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want wrapped os.ErrNotExist", err)
	}

	// The error must persist, not degrade to masking.
	_, err = r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("second call = %v, want the load failure again", err)
	}
}

func TestEmptyBatch(t *testing.T) {
	r := NewRandom(RandomOptions{Device: device.Default(), VecType: embedding.VecTypeXVector})
	b := embedding.New(embedding.VecTypeXVector, device.Default(), embedding.LevelSpeaker)
	_, err := r.Anonymize(context.Background(), b, embedding.LevelSpeaker)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestDeviceUnavailable(t *testing.T) {
	gpu, err := device.Parse("cuda:0")
	if err != nil {
		t.Fatal(err)
	}
	r := NewRandom(RandomOptions{Device: gpu, VecType: embedding.VecTypeXVector})
	in := makeBatch(t, []string{"a"}, [][]float32{{1}})

	_, err = r.Anonymize(context.Background(), in, embedding.LevelSpeaker)
	if !errors.Is(err, device.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestModelNameDefault(t *testing.T) {
	r := NewRandom(RandomOptions{VecType: embedding.VecTypeECAPA})
	if r.ModelName() != "random_ecapa" {
		t.Errorf("ModelName() = %q", r.ModelName())
	}
	named := NewRandom(RandomOptions{VecType: embedding.VecTypeECAPA, ModelName: "exp3"})
	if named.ModelName() != "exp3" {
		t.Errorf("ModelName() = %q", named.ModelName())
	}
	if r.VecType() != embedding.VecTypeECAPA {
		t.Errorf("VecType() = %q", r.VecType())
	}
}
