package mathutil

import (
	"math"
	"testing"
)

func TestNewMat(t *testing.T) {
	m := NewMat(3, 4)
	if len(m) != 3 {
		t.Fatalf("rows = %d, want 3", len(m))
	}
	for i, row := range m {
		if len(row) != 4 {
			t.Fatalf("row %d cols = %d, want 4", i, len(row))
		}
	}
}

func TestNewMatFill(t *testing.T) {
	m := NewMatFill(2, 3, 1.5)
	for i, row := range m {
		for j, v := range row {
			if v != 1.5 {
				t.Errorf("m[%d][%d] = %f, want 1.5", i, j, v)
			}
		}
	}
}

func TestIsSquare(t *testing.T) {
	if !IsSquare(NewMat(3, 3)) {
		t.Error("3x3 should be square")
	}
	if IsSquare(NewMat(2, 3)) {
		t.Error("2x3 should not be square")
	}
	if IsSquare(Mat{{1, 2}, {3}}) {
		t.Error("ragged matrix should not be square")
	}
}

func TestMatVec(t *testing.T) {
	tests := []struct {
		name string
		a    Mat
		x, b Vec
		want Vec
	}{
		{"identity", nil, Vec{1, 2}, nil, Vec{1, 2}},
		{"offset only", nil, Vec{1, 2}, Vec{10, 20}, Vec{11, 22}},
		{"matrix", Mat{{0, 1}, {2, 0}}, Vec{3, 4}, nil, Vec{4, 6}},
		{"matrix and offset", Mat{{1, 1}, {0, 1}}, Vec{1, 2}, Vec{1, 1}, Vec{4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatVec(tt.a, tt.x, tt.b)
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("[%d] = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMatVecDoesNotAlias(t *testing.T) {
	x := Vec{1, 2}
	got := MatVec(nil, x, nil)
	got[0] = 99
	if x[0] != 1 {
		t.Error("MatVec(nil, x, nil) must copy x")
	}
}

func TestWeightedSqDist(t *testing.T) {
	got := WeightedSqDist(Vec{1, 2, 3}, Vec{0, 0, 0}, Vec{1, 0.5, 2})
	want := 1.0 + 2.0 + 18.0
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("WeightedSqDist = %f, want %f", got, want)
	}
}
