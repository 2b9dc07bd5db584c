// Package anonymizer replaces identity-bearing speaker embedding vectors
// with synthetic substitutes.
//
// # Strategies
//
// The [Anonymizer] interface has a closed set of implementations:
//
//   - [Random]: per-dimension random substitutes, either by integer masking
//     of the original vector (default) or by uniform sampling within
//     per-dimension ranges learned from a reference corpus ("in scale").
//   - [Pool]: substitutes built from the pool embeddings farthest from the
//     source speaker.
//   - [Consistent]: wraps another strategy and memoizes per-speaker
//     substitutes in a [kv.Store], so the same speaker maps to the same
//     substitute across runs.
//
// New strategies are added here as new types, not by open-ended embedding.
//
// # Error policy
//
// Every failure reflects a misconfiguration (bad path, malformed stats
// file, mismatched pipeline stage, missing device) and surfaces to the
// caller unwrapped by any retry or fallback. In particular a calibrated
// strategy never silently degrades to masking when its stats file cannot
// be loaded. Either the whole batch is anonymized or the input batch
// remains the only valid data.
package anonymizer

import (
	"context"
	"errors"

	"github.com/voxmask/voxmask/go/pkg/embedding"
)

// ErrEmptyBatch is returned when a strategy is invoked on an empty batch
// or constructed over an empty pool.
var ErrEmptyBatch = errors.New("anonymizer: empty batch")

// Anonymizer transforms a batch of speaker embeddings into a new batch of
// substitute vectors. The output batch preserves identifier order and
// speaker/gender metadata; the input batch is never mutated.
type Anonymizer interface {
	// Anonymize produces a new batch with substituted vectors.
	// The level tag is forwarded to the output batch and otherwise
	// not interpreted.
	Anonymize(ctx context.Context, batch *embedding.Batch, level embedding.Level) (*embedding.Batch, error)

	// ModelName returns the display name of this strategy instance.
	ModelName() string

	// VecType returns the embedding family this instance handles.
	VecType() embedding.VecType
}
