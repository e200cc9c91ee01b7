package vector

import (
	"math"
	"testing"
)

func TestInnerProduct(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0.5, 0.5, 0}
	got := InnerProduct(a, b)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("InnerProduct = %f, want 0.5", got)
	}
	if InnerProduct(a, []float32{1}) != 0 {
		t.Error("mismatched lengths should return 0")
	}
	if InnerProduct(nil, nil) != 0 {
		t.Error("empty vectors should return 0")
	}
}

func TestNormalize(t *testing.T) {
	x := []float32{3, 4}
	Normalize(x)
	if math.Abs(L2Norm(x)-1) > 1e-6 {
		t.Errorf("norm after Normalize = %f, want 1", L2Norm(x))
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 {
		t.Errorf("x[0] = %f, want 0.6", x[0])
	}

	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should be unchanged, got %v", zero)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.25, 0}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %f != %f", i, in[i], out[i])
		}
	}
}

func TestDecodeBadLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for blob length not a multiple of 4")
	}
}

func TestRankOrderAndTieBreak(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0, 1},   // score 0
		{1, 0},   // score 1
		{0.5, 0}, // score 0.5
		{0, 1},   // score 0, ties with pos 0
	}
	got := Rank(query, candidates, 4)
	wantPos := []int{1, 2, 0, 3}
	for i, w := range wantPos {
		if got[i].Pos != w {
			t.Errorf("rank %d: pos %d, want %d", i, got[i].Pos, w)
		}
	}
}

func TestRankLimits(t *testing.T) {
	query := []float32{1}
	candidates := [][]float32{{1}, {2}, {3}}
	if got := Rank(query, candidates, 2); len(got) != 2 {
		t.Errorf("expected 2 results, got %d", len(got))
	}
	if got := Rank(query, candidates, 10); len(got) != 3 {
		t.Errorf("k beyond candidates should cap at 3, got %d", len(got))
	}
	if Rank(query, nil, 3) != nil {
		t.Error("no candidates should return nil")
	}
	if Rank(query, candidates, 0) != nil {
		t.Error("k=0 should return nil")
	}
}
