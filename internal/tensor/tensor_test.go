package tensor

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func matVecNaive(dst []float32, m *Mat, x []float32) {
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		var sum float32
		for j := range row {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

func TestNewRejectsWrongLength(t *testing.T) {
	_, err := New([]int{1, 3, 2, 2}, make([]float32, 11))
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	if _, err := New([]int{2, 0}, nil); !errors.Is(err, ErrShape) {
		t.Fatalf("zero dim: expected ErrShape, got %v", err)
	}
	if _, err := New(nil, nil); !errors.Is(err, ErrShape) {
		t.Fatalf("empty shape: expected ErrShape, got %v", err)
	}
}

func TestShapeIsCopied(t *testing.T) {
	shape := []int{2, 3}
	d, err := New(shape, make([]float32, 6))
	if err != nil {
		t.Fatal(err)
	}
	shape[0] = 9
	if !d.HasShape(2, 3) {
		t.Fatalf("shape aliased caller slice: %v", d.Shape())
	}
	got := d.Shape()
	got[1] = 7
	if !d.HasShape(2, 3) {
		t.Fatalf("Shape() leaked internal slice: %v", d.Shape())
	}
}

func TestLast(t *testing.T) {
	d, err := New([]int{1, 3, 2}, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	last, err := d.Last()
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0] != 5 || last[1] != 6 {
		t.Fatalf("Last = %v", last)
	}

	bad, _ := Zeros(2, 2, 2)
	if _, err := bad.Last(); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for batch 2, got %v", err)
	}
}

func TestRowBounds(t *testing.T) {
	d, _ := Zeros(2, 4)
	if _, err := d.Row(2); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	row, err := d.Row(1)
	if err != nil || len(row) != 4 {
		t.Fatalf("Row(1) = %v, %v", row, err)
	}
}

func TestMatVecMatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, rows := range []int{7, parallelRows*3 + 5} {
		m, err := NewMat(rows, 33)
		if err != nil {
			t.Fatal(err)
		}
		for i := range m.Data {
			m.Data[i] = rng.Float32()*2 - 1
		}
		x := make([]float32, m.C)
		for i := range x {
			x[i] = rng.Float32()
		}
		want := make([]float32, rows)
		got := make([]float32, rows)
		matVecNaive(want, &m, x)
		if err := MatVec(got, &m, x); err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("rows=%d: mismatch at %d: %v vs %v", rows, i, got[i], want[i])
			}
		}
	}
}

func TestMatVecShapeError(t *testing.T) {
	m, _ := NewMat(2, 3)
	if err := MatVec(make([]float32, 2), &m, make([]float32, 4)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}
