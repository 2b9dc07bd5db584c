package embedding

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxmask/voxmask/go/pkg/device"
)

// batchFile is the msgpack wire form of a batch. The compute device is a
// runtime property and is not serialized; readers choose where to place
// the vectors.
type batchFile struct {
	VecType     string      `msgpack:"vec_type"`
	Level       string      `msgpack:"level"`
	Identifiers []string    `msgpack:"identifiers"`
	Vectors     [][]float32 `msgpack:"vectors"`
	Genders     []string    `msgpack:"genders"`
	Speakers    []string    `msgpack:"speakers"`
}

// WriteBatch serializes a batch as msgpack.
func WriteBatch(w io.Writer, b *Batch) error {
	bf := batchFile{
		VecType:     string(b.vecType),
		Level:       string(b.level),
		Identifiers: b.ids,
		Vectors:     b.vectors,
		Genders:     b.genders,
		Speakers:    b.speakers,
	}
	if err := msgpack.NewEncoder(w).Encode(&bf); err != nil {
		return fmt.Errorf("embedding: encode batch: %w", err)
	}
	return nil
}

// ReadBatch deserializes a msgpack batch and places it on dev.
// The stored contents pass through the same validation as
// [Batch.SetVectors].
func ReadBatch(r io.Reader, dev device.Device) (*Batch, error) {
	var bf batchFile
	if err := msgpack.NewDecoder(r).Decode(&bf); err != nil {
		return nil, fmt.Errorf("embedding: decode batch: %w", err)
	}
	vecType, err := ParseVecType(bf.VecType)
	if err != nil {
		return nil, err
	}
	level, err := ParseLevel(bf.Level)
	if err != nil {
		return nil, err
	}
	b := New(vecType, dev, level)
	if err := b.SetVectors(bf.Identifiers, bf.Vectors, bf.Genders, bf.Speakers); err != nil {
		return nil, err
	}
	return b, nil
}
