package tensor

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrShape is returned (wrapped) whenever a tensor is constructed or
// accessed with dimensions that do not match its data.
var ErrShape = errors.New("tensor: shape mismatch")

// Dense is an n-dimensional float32 tensor stored in row-major order.
//
// The last dimension is contiguous. A Dense never changes shape after
// construction; operations that need a different layout return a new value.
type Dense struct {
	shape []int
	data  []float32
}

// New creates a tensor of the given shape backed by data. The length of data
// must equal the product of the dimensions.
func New(shape []int, data []float32) (*Dense, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d elements for shape %v (want %d)", ErrShape, len(data), shape, n)
	}
	return &Dense{shape: slices.Clone(shape), data: data}, nil
}

// Zeros allocates a zero-filled tensor.
func Zeros(shape ...int) (*Dense, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	return &Dense{shape: slices.Clone(shape), data: make([]float32, n)}, nil
}

// NumElements returns the product of the dimensions, rejecting empty,
// non-positive and overflowing shapes.
func NumElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShape)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: invalid dim %d in %v", ErrShape, d, shape)
		}
		if n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v too large", ErrShape, shape)
		}
		n *= d
	}
	return n, nil
}

// Shape returns a copy of the dimensions.
func (t *Dense) Shape() []int { return slices.Clone(t.shape) }

// Rank returns the number of dimensions.
func (t *Dense) Rank() int { return len(t.shape) }

// Dim returns the size of dimension i.
func (t *Dense) Dim(i int) int { return t.shape[i] }

// Len returns the number of elements.
func (t *Dense) Len() int { return len(t.data) }

// Data exposes the backing slice. Callers must treat it as read-only unless
// they own the tensor.
func (t *Dense) Data() []float32 { return t.data }

// HasShape reports whether the tensor has exactly the given dimensions.
func (t *Dense) HasShape(shape ...int) bool {
	return slices.Equal(t.shape, shape)
}

// Reshape returns a view with a new shape over the same data.
func (t *Dense) Reshape(shape ...int) (*Dense, error) {
	return New(shape, t.data)
}

// Row returns a view of row i of a rank-2 tensor.
func (t *Dense) Row(i int) ([]float32, error) {
	if len(t.shape) != 2 {
		return nil, fmt.Errorf("%w: row of rank-%d tensor", ErrShape, len(t.shape))
	}
	if i < 0 || i >= t.shape[0] {
		return nil, fmt.Errorf("%w: row %d out of range [0,%d)", ErrShape, i, t.shape[0])
	}
	c := t.shape[1]
	return t.data[i*c : (i+1)*c], nil
}

// Last returns the slice of the final position along the second-to-last
// axis, for tensors shaped [1, seq, n] or [seq, n]. This is how per-position
// logits are narrowed to the next-token distribution.
func (t *Dense) Last() ([]float32, error) {
	var seq, n int
	switch {
	case len(t.shape) == 3 && t.shape[0] == 1:
		seq, n = t.shape[1], t.shape[2]
	case len(t.shape) == 2:
		seq, n = t.shape[0], t.shape[1]
	default:
		return nil, fmt.Errorf("%w: expected [1,seq,n] or [seq,n], got %v", ErrShape, t.shape)
	}
	return t.data[(seq-1)*n : seq*n], nil
}

// MinMax returns the smallest and largest element.
func (t *Dense) MinMax() (float32, float32) {
	lo, hi := t.data[0], t.data[0]
	for _, v := range t.data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func (t *Dense) String() string {
	return fmt.Sprintf("Dense%v", t.shape)
}
