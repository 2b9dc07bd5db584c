package device

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "cpu", true},
		{"cpu", "cpu", true},
		{"cuda", "cuda:0", true},
		{"cuda:1", "cuda:1", true},
		{"cuda:3", "cuda:3", true},
		{"cpu:0", "", false},
		{"cuda:-1", "", false},
		{"cuda:x", "", false},
		{"tpu", "", false},
	}
	for _, c := range cases {
		d, err := Parse(c.in)
		if c.ok != (err == nil) {
			t.Errorf("Parse(%q) err = %v, want ok=%v", c.in, err, c.ok)
			continue
		}
		if c.ok && d.String() != c.want {
			t.Errorf("Parse(%q) = %s, want %s", c.in, d, c.want)
		}
	}
}

func TestCheck(t *testing.T) {
	if err := Default().Check(); err != nil {
		t.Errorf("cpu should always be available, got %v", err)
	}

	gpu, err := Parse("cuda:0")
	if err != nil {
		t.Fatal(err)
	}
	err = gpu.Check()
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("cuda Check() = %v, want ErrUnavailable", err)
	}
}

func TestPlaceCopies(t *testing.T) {
	src := []float32{1, 2, 3}
	placed, err := Default().Place(src)
	if err != nil {
		t.Fatal(err)
	}
	placed[0] = 99
	if src[0] != 1 {
		t.Error("Place must not alias the input slice")
	}
}

func TestPlaceFloats(t *testing.T) {
	out, err := Default().PlaceFloats([]float64{0.5, -1.25})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0.5 || out[1] != -1.25 {
		t.Errorf("unexpected conversion: %v", out)
	}

	gpu, _ := Parse("cuda")
	if _, err := gpu.PlaceFloats([]float64{1}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
