package anonymizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/voxmask/voxmask/go/pkg/embedding"
)

// DefaultStatsFile is the calibration filename consulted when no explicit
// path is configured.
const DefaultStatsFile = "stats_per_dim.json"

// ErrBadStats is returned when a calibration file parses as JSON but does
// not have the expected per-dimension structure.
var ErrBadStats = errors.New("anonymizer: malformed stats")

// DimRange is the observed value range of one embedding dimension.
type DimRange struct {
	Min float64
	Max float64
}

// Profile is an ordered list of per-dimension ranges, index i describing
// embedding dimension i.
type Profile []DimRange

// dimStat is the JSON form of one profile entry. Pointers distinguish
// a missing field from a literal zero.
type dimStat struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// LoadStats reads a calibration file mapping stringified dimension indexes
// to {"min": x, "max": y} objects. An empty path falls back to
// [DefaultStatsFile] in the working directory.
//
// File access errors wrap the underlying fs error (so errors.Is with
// os.ErrNotExist works); structural errors wrap [ErrBadStats]. Both carry
// the offending path.
func LoadStats(path string) (Profile, error) {
	if path == "" {
		path = DefaultStatsFile
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("anonymizer: stats file %s: %w", path, err)
	}
	defer f.Close()
	p, err := ReadStats(f)
	if err != nil {
		return nil, fmt.Errorf("anonymizer: stats file %s: %w", path, err)
	}
	return p, nil
}

// ReadStats parses calibration data from r. Entries are ordered by the
// numeric value of their dimension key, not by string order, so a file
// with keys "2" and "10" yields dimension 2 first. The keys themselves
// are discarded.
func ReadStats(r io.Reader) (Profile, error) {
	var raw map[string]dimStat
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStats, err)
	}

	type entry struct {
		dim int
		rng DimRange
	}
	entries := make([]entry, 0, len(raw))
	for k, v := range raw {
		dim, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: non-integer dimension key %q", ErrBadStats, k)
		}
		if v.Min == nil || v.Max == nil {
			return nil, fmt.Errorf("%w: dimension %s missing min/max", ErrBadStats, k)
		}
		if *v.Min > *v.Max {
			return nil, fmt.Errorf("%w: dimension %s has min %g > max %g", ErrBadStats, k, *v.Min, *v.Max)
		}
		entries = append(entries, entry{dim: dim, rng: DimRange{Min: *v.Min, Max: *v.Max}})
	}

	slices.SortFunc(entries, func(a, b entry) int { return a.dim - b.dim })

	prof := make(Profile, len(entries))
	for i, e := range entries {
		prof[i] = e.rng
	}
	return prof, nil
}

// BuildStats computes a calibration profile from one or more reference
// batches: per dimension, the min and max over every vector in every batch.
// All batches must share one dimensionality.
func BuildStats(batches ...*embedding.Batch) (Profile, error) {
	if len(batches) == 0 || batches[0].Len() == 0 {
		return nil, ErrEmptyBatch
	}

	dim := batches[0].Dim()
	cols := make([][]float64, dim)
	for _, b := range batches {
		if b.Dim() != dim {
			return nil, fmt.Errorf("anonymizer: reference batch has dimension %d, want %d: %w",
				b.Dim(), dim, embedding.ErrShape)
		}
		for _, vec := range b.All() {
			for i, x := range vec {
				cols[i] = append(cols[i], float64(x))
			}
		}
	}

	prof := make(Profile, dim)
	for i, col := range cols {
		prof[i] = DimRange{Min: floats.Min(col), Max: floats.Max(col)}
	}
	return prof, nil
}

// WriteStats emits a profile in the JSON form [ReadStats] consumes,
// keyed "0".."D-1".
func WriteStats(w io.Writer, p Profile) error {
	type outStat struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}
	out := make(map[string]outStat, len(p))
	for i, dr := range p {
		out[strconv.Itoa(i)] = outStat{Min: dr.Min, Max: dr.Max}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("anonymizer: write stats: %w", err)
	}
	return nil
}
