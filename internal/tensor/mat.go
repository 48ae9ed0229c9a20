package tensor

import (
	"fmt"
	"runtime"
	"sync"
)

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively. Data holds
// the flattened matrix values and is never resized.
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zero initialised matrix.
func NewMat(r, c int) (Mat, error) {
	if _, err := NumElements([]int{r, c}); err != nil {
		return Mat{}, err
	}
	return Mat{R: r, C: c, Data: make([]float32, r*c)}, nil
}

// NewMatFromData wraps existing data. The data length must match r*c.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	n, err := NumElements([]int{r, c})
	if err != nil {
		return Mat{}, err
	}
	if len(data) != n {
		return Mat{}, fmt.Errorf("%w: %d values for %dx%d matrix", ErrShape, len(data), r, c)
	}
	return Mat{R: r, C: c, Data: data}, nil
}

// Row returns a view of the i‑th row. Out of range indices panic.
func (m *Mat) Row(i int) []float32 {
	return m.Data[i*m.C : (i+1)*m.C]
}

// parallelRows is the row count below which MatVec stays on one goroutine.
const parallelRows = 4096

// MatVec computes dst = m * x. len(x) must be C and len(dst) must be R.
// Large matrices are split into row ranges across GOMAXPROCS goroutines;
// every row is written by exactly one goroutine so the result is
// deterministic.
func MatVec(dst []float32, m *Mat, x []float32) error {
	if len(x) != m.C || len(dst) != m.R {
		return fmt.Errorf("%w: matvec %dx%d by %d into %d", ErrShape, m.R, m.C, len(x), len(dst))
	}
	workers := min(runtime.GOMAXPROCS(0), m.R/parallelRows+1)
	if workers <= 1 {
		matVecRange(dst, m, x, 0, m.R)
		return nil
	}
	var wg sync.WaitGroup
	chunk := (m.R + workers - 1) / workers
	for rs := 0; rs < m.R; rs += chunk {
		re := min(rs+chunk, m.R)
		wg.Add(1)
		go func() {
			defer wg.Done()
			matVecRange(dst, m, x, rs, re)
		}()
	}
	wg.Wait()
	return nil
}

func matVecRange(dst []float32, m *Mat, x []float32, rs, re int) {
	for r := rs; r < re; r++ {
		row := m.Data[r*m.C : (r+1)*m.C]
		var sum float32
		for j, w := range row {
			sum += w * x[j]
		}
		dst[r] = sum
	}
}

// Add accumulates src into dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}
