package store

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFastParseVectorJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []float32
	}{
		{"simple", "[1,2,3]", []float32{1, 2, 3}},
		{"negatives", "[-0.5,0.25]", []float32{-0.5, 0.25}},
		{"scientific", "[1e-3,2.5e2]", []float32{0.001, 250}},
		{"whitespace", " [ 1 , 2 ] ", []float32{1, 2}},
		{"empty array", "[]", nil},
		{"empty input", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fastParseVectorJSON([]byte(tt.input), nil)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("element %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFastParseVectorJSON_Invalid(t *testing.T) {
	for _, input := range []string{"{1,2}", "[1,abc]", "not json"} {
		if _, err := fastParseVectorJSON([]byte(input), nil); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestFastParseVectorJSON_ReusesBuffer(t *testing.T) {
	buf := make([]float32, 0, 8)
	got, err := fastParseVectorJSON([]byte("[1,2,3]"), buf)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if cap(got) != 8 {
		t.Errorf("buffer not reused: cap = %d", cap(got))
	}
}

func TestEncodeVectorJSON_Roundtrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 1e-4, 42}
	parsed, err := fastParseVectorJSON(encodeVectorJSON(vec), nil)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(parsed) != len(vec) {
		t.Fatalf("length %d, want %d", len(parsed), len(vec))
	}
	for i := range vec {
		if parsed[i] != vec[i] {
			t.Errorf("element %d: got %v, want %v", i, parsed[i], vec[i])
		}
	}
}

func TestVectorBlob(t *testing.T) {
	vec := []float32{1.5, -0.25}
	blob := vectorBlob(vec)
	if len(blob) != 8 {
		t.Fatalf("blob length = %d, want 8", len(blob))
	}
	for i, v := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		if math.Float32frombits(bits) != v {
			t.Errorf("element %d decoded as %v, want %v", i, math.Float32frombits(bits), v)
		}
	}
}
