package anonymizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxmask/voxmask/go/pkg/embedding"
	"github.com/voxmask/voxmask/go/pkg/kv"
)

// Consistent wraps another strategy and pins the substitute vector per
// original speaker: once a speaker has been assigned a substitute, every
// later batch (including later process runs, with a durable [kv.Store])
// gets the same vector for that speaker. Without this, re-running the
// pipeline would hand each speaker a fresh random identity and split their
// data across pseudonyms.
//
// Utterance-level batches bypass the cache entirely; an utterance is
// anonymized once and never revisited.
type Consistent struct {
	inner Anonymizer
	store kv.Store
}

// NewConsistent wraps inner with a substitute cache backed by store.
func NewConsistent(inner Anonymizer, store kv.Store) *Consistent {
	return &Consistent{inner: inner, store: store}
}

// ModelName returns the wrapped strategy's display name.
func (c *Consistent) ModelName() string { return c.inner.ModelName() }

// VecType returns the wrapped strategy's embedding family.
func (c *Consistent) VecType() embedding.VecType { return c.inner.VecType() }

// cacheKey addresses one speaker's substitute vector.
func (c *Consistent) cacheKey(speaker string) kv.Key {
	return kv.Key{"anon", string(c.inner.VecType()), speaker}
}

// Anonymize runs the wrapped strategy, then replaces each entry's vector
// with the cached substitute for its original speaker, caching fresh
// substitutes for speakers seen for the first time. Entries sharing a
// speaker within one batch also share a substitute.
func (c *Consistent) Anonymize(ctx context.Context, batch *embedding.Batch, level embedding.Level) (*embedding.Batch, error) {
	fresh, err := c.inner.Anonymize(ctx, batch, level)
	if err != nil {
		return nil, err
	}
	if level == embedding.LevelUtterance {
		return fresh, nil
	}

	speakers := fresh.Speakers()
	ids := fresh.Identifiers()
	dim := fresh.Dim()
	vecs := make([][]float32, fresh.Len())

	for i := range ids {
		key := c.cacheKey(speakers[i])
		data, err := c.store.Get(ctx, key)
		switch {
		case err == nil:
			var cached []float32
			if err := msgpack.Unmarshal(data, &cached); err != nil {
				return nil, fmt.Errorf("anonymizer: decode cached substitute for %s: %w", key, err)
			}
			if len(cached) != dim {
				return nil, fmt.Errorf("anonymizer: cached substitute for %s has dimension %d, batch has %d: %w",
					key, len(cached), dim, embedding.ErrShape)
			}
			vecs[i] = cached
		case errors.Is(err, kv.ErrNotFound):
			vec := fresh.Vector(i)
			data, err := msgpack.Marshal(vec)
			if err != nil {
				return nil, fmt.Errorf("anonymizer: encode substitute for %s: %w", key, err)
			}
			if err := c.store.Set(ctx, key, data); err != nil {
				return nil, fmt.Errorf("anonymizer: cache substitute for %s: %w", key, err)
			}
			vecs[i] = vec
		default:
			return nil, fmt.Errorf("anonymizer: substitute cache: %w", err)
		}
	}

	out := embedding.New(fresh.VecType(), fresh.Device(), level)
	if err := out.SetVectors(ids, vecs, fresh.Genders(), fresh.Speakers()); err != nil {
		return nil, err
	}
	return out, nil
}
