// Package device names compute targets for embedding vector math and owns
// the conversion boundary between plain numeric slices and device-resident
// vectors.
//
// Sampling and statistics code works on plain float64/float32 slices;
// placing the result on a device is a separate, explicit step with its own
// failure mode. Pure-Go builds ship only the CPU backend, so requesting an
// accelerator fails with [ErrUnavailable] at placement time rather than
// producing silently-wrong results downstream.
package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when the requested compute device is not
// present in this build or on this host.
var ErrUnavailable = errors.New("device: unavailable")

// Kind identifies a class of compute device.
type Kind int

const (
	// CPU is the host processor. Always available.
	CPU Kind = iota

	// CUDA is an NVIDIA GPU, addressed by ordinal ("cuda:0", "cuda:1").
	// Not available in pure-Go builds.
	CUDA
)

func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Device is a compute target. The zero value is the CPU.
type Device struct {
	kind  Kind
	index int
}

// Default returns the CPU device.
func Default() Device {
	return Device{kind: CPU}
}

// Parse parses a device name such as "cpu", "cuda" or "cuda:1".
// An empty name parses to the CPU device.
func Parse(name string) (Device, error) {
	if name == "" {
		return Default(), nil
	}
	base, ordinal, hasOrdinal := strings.Cut(name, ":")
	var d Device
	switch base {
	case "cpu":
		if hasOrdinal {
			return Device{}, fmt.Errorf("device: cpu takes no ordinal: %q", name)
		}
	case "cuda":
		d.kind = CUDA
		if hasOrdinal {
			n, err := strconv.Atoi(ordinal)
			if err != nil || n < 0 {
				return Device{}, fmt.Errorf("device: bad ordinal in %q", name)
			}
			d.index = n
		}
	default:
		return Device{}, fmt.Errorf("device: unknown device %q", name)
	}
	return d, nil
}

// Kind returns the device class.
func (d Device) Kind() Kind { return d.kind }

func (d Device) String() string {
	if d.kind == CPU {
		return "cpu"
	}
	return fmt.Sprintf("%s:%d", d.kind, d.index)
}

// Check reports whether the device can execute vector math in this build.
// Returns an error wrapping [ErrUnavailable] if not.
func (d Device) Check() error {
	if d.kind != CPU {
		return fmt.Errorf("device: %s: %w", d, ErrUnavailable)
	}
	return nil
}

// Place copies v into a device-resident vector.
func (d Device) Place(v []float32) ([]float32, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	cp := make([]float32, len(v))
	copy(cp, v)
	return cp, nil
}

// PlaceFloats converts freshly sampled float64 values into a
// device-resident float32 vector.
func (d Device) PlaceFloats(v []float64) ([]float32, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out, nil
}
