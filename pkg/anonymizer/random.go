package anonymizer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/voxmask/voxmask/go/pkg/device"
	"github.com/voxmask/voxmask/go/pkg/embedding"
)

// DefaultMaskBound is the half-open integer masking range [-40, 40)
// inherited from the reference pipeline. There is no documented rationale
// for the value; it is kept for behavioral compatibility and exposed as an
// option for callers that want to tune it.
const DefaultMaskBound = 40

// RandomOptions configures a [Random] strategy.
type RandomOptions struct {
	// Device is the compute target for the substitute vectors.
	Device device.Device

	// VecType tags which embedding family this instance handles.
	VecType embedding.VecType

	// ModelName is the display name. Defaults to "random_<VecType>".
	ModelName string

	// InScale selects calibrated sampling: substitutes are drawn uniformly
	// within per-dimension ranges loaded from StatsPath. When false the
	// strategy masks the original vectors instead.
	InScale bool

	// StatsPath locates the calibration file. Only consulted when InScale
	// is true; empty means [DefaultStatsFile] in the working directory.
	StatsPath string

	// MaskBound overrides [DefaultMaskBound] for the masking path.
	// Zero means the default.
	MaskBound int

	// Seed fixes the random source for reproducible draws.
	// Zero picks an arbitrary seed.
	Seed uint64
}

// scalingMode is the state of the lazy calibration cache.
type scalingMode int

const (
	// scalingUnconfigured: calibrated mode was never requested; the
	// accessor always yields nil and the strategy masks.
	scalingUnconfigured scalingMode = iota

	// scalingPending: a stats path is configured but not yet read.
	scalingPending

	// scalingLoaded: the profile has been read and cached.
	scalingLoaded
)

// scalingCell holds the lazy calibration state.
type scalingCell struct {
	mode    scalingMode
	path    string
	profile Profile
}

// Random generates substitute vectors by random sampling, one of the
// closed set of [Anonymizer] strategies.
//
// In the default masking mode, each original vector is multiplied
// element-wise by fresh integer draws from [-bound, bound). A draw can flip
// the sign, zero a coordinate, or rescale it; the result keeps a
// correlation with the original vector and no particular statistical scale.
//
// In calibrated ("in scale") mode, each output coordinate is drawn
// uniformly from the per-dimension [min, max] range of a reference corpus
// and the original value is discarded entirely.
//
// The calibration file is loaded lazily on first use, not at construction:
// a strategy may be built before its final configuration arrives from a
// late-binding config layer, and eager loading would read stale defaults.
// At-most-one load holds only for single-threaded first use; callers that
// need an exactly-once guarantee under concurrency must serialize the first
// call themselves.
type Random struct {
	dev       device.Device
	vecType   embedding.VecType
	modelName string
	maskBound int
	rng       *rand.Rand
	scaling   scalingCell

	// loadStats is swapped out by tests to count loads.
	loadStats func(path string) (Profile, error)
}

// NewRandom creates a Random strategy. No file I/O happens here; see the
// type comment for the lazy calibration load.
func NewRandom(opts RandomOptions) *Random {
	name := opts.ModelName
	if name == "" {
		name = "random_" + string(opts.VecType)
	}
	bound := opts.MaskBound
	if bound <= 0 {
		bound = DefaultMaskBound
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	r := &Random{
		dev:       opts.Device,
		vecType:   opts.VecType,
		modelName: name,
		maskBound: bound,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		loadStats: LoadStats,
	}
	if opts.InScale {
		r.scaling = scalingCell{mode: scalingPending, path: opts.StatsPath}
	}
	return r
}

// ModelName returns the display name of this instance.
func (r *Random) ModelName() string { return r.modelName }

// VecType returns the embedding family this instance handles.
func (r *Random) VecType() embedding.VecType { return r.vecType }

// ScalingRanges returns the calibration profile, reading the stats file on
// first call when calibrated mode is configured. A nil profile means
// uncalibrated: the strategy masks. A failed load leaves the cell pending,
// so the error resurfaces on every call instead of degrading to masking.
func (r *Random) ScalingRanges() (Profile, error) {
	switch r.scaling.mode {
	case scalingPending:
		p, err := r.loadStats(r.scaling.path)
		if err != nil {
			return nil, err
		}
		r.scaling = scalingCell{mode: scalingLoaded, profile: p}
		return p, nil
	case scalingLoaded:
		return r.scaling.profile, nil
	default:
		return nil, nil
	}
}

// Anonymize replaces every vector in the batch with a random substitute.
// The output batch keeps the identifier order and the speaker/gender
// labels of the input; the level tag is forwarded unchanged.
func (r *Random) Anonymize(_ context.Context, batch *embedding.Batch, level embedding.Level) (*embedding.Batch, error) {
	if batch == nil || batch.Len() == 0 {
		return nil, fmt.Errorf("%w (model %s)", ErrEmptyBatch, r.modelName)
	}
	if err := r.dev.Check(); err != nil {
		return nil, err
	}

	prof, err := r.ScalingRanges()
	if err != nil {
		return nil, err
	}
	if len(prof) > 0 {
		return r.anonymizeInScale(batch, level, prof)
	}
	return r.anonymizeMasked(batch, level)
}

// anonymizeMasked multiplies each vector element-wise by integer draws
// from [-maskBound, maskBound). Draw order: per vector in batch order,
// per dimension ascending.
func (r *Random) anonymizeMasked(batch *embedding.Batch, level embedding.Level) (*embedding.Batch, error) {
	n := batch.Len()
	ids := make([]string, 0, n)
	vecs := make([][]float32, 0, n)

	for id, vec := range batch.All() {
		for i := range vec {
			mask := r.rng.IntN(2*r.maskBound) - r.maskBound
			vec[i] *= float32(mask)
		}
		placed, err := r.dev.Place(vec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		vecs = append(vecs, placed)
	}

	out := embedding.New(r.vecType, r.dev, level)
	if err := out.SetVectors(ids, vecs, batch.Genders(), batch.Speakers()); err != nil {
		return nil, err
	}
	return out, nil
}

// anonymizeInScale discards the original values and draws each output
// coordinate uniformly within the profile range for that dimension.
// Draw order matches anonymizeMasked.
func (r *Random) anonymizeInScale(batch *embedding.Batch, level embedding.Level, prof Profile) (*embedding.Batch, error) {
	if len(prof) != batch.Dim() {
		return nil, fmt.Errorf("anonymizer: %s: scaling profile covers %d dimensions, batch has %d: %w",
			r.modelName, len(prof), batch.Dim(), embedding.ErrShape)
	}
	slog.Debug("anonymizing in scale", "model", r.modelName, "dims", len(prof), "vectors", batch.Len())

	n := batch.Len()
	ids := make([]string, 0, n)
	vecs := make([][]float32, 0, n)
	draws := make([]float64, len(prof))

	for id := range batch.All() {
		for i, dr := range prof {
			draws[i] = dr.Min + r.rng.Float64()*(dr.Max-dr.Min)
		}
		placed, err := r.dev.PlaceFloats(draws)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		vecs = append(vecs, placed)
	}

	out := embedding.New(r.vecType, r.dev, level)
	if err := out.SetVectors(ids, vecs, batch.Genders(), batch.Speakers()); err != nil {
		return nil, err
	}
	return out, nil
}
