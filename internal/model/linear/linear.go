// Package linear is a reference vision-language back-end built from three
// projection matrices. It is not a transformer; it exists so the full
// pipeline can run deterministically against small safetensors checkpoints.
//
// The image embedding is one hidden vector per patch. Priming folds the
// mean patch vector into a context vector that conditions every later
// position: logits(id) = lm_head · (wte[id] + ctx).
package linear

import (
	"errors"
	"fmt"

	"github.com/samcharles93/glimpse/internal/model"
	"github.com/samcharles93/glimpse/internal/safetensors"
	"github.com/samcharles93/glimpse/internal/tensor"
)

// Name is the back-end name used in the registry and in config.json.
const Name = "linear"

// Weight tensor names.
const (
	PatchProj = "vision.patch_proj"
	TokenEmb  = "text.wte"
	LMHead    = "text.lm_head"
)

var errNotPrimed = errors.New("linear: decode before image-conditioned step")

func init() {
	model.RegisterBackend(Name, Open)
}

type Model struct {
	vocab  int
	hidden int
	size   int
	patch  int

	patchProj tensor.Mat // [hidden, 3*patch*patch]
	wte       tensor.Mat // [vocab, hidden]
	lmHead    tensor.Mat // [vocab, hidden]

	ctx []float32
}

// Open loads the weights named in opts. The safetensors file is closed
// before returning; weights are held as float32 copies.
func Open(opts model.OpenOptions) (model.Model, error) {
	cfg := opts.Config
	st, err := safetensors.Open(opts.WeightsPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	m := &Model{vocab: cfg.VocabSize, hidden: cfg.HiddenSize, size: cfg.ImageSize, patch: cfg.PatchSize}
	load := func(dst *tensor.Mat, name string, rows, cols int) error {
		data, info, err := st.ReadTensorF32(name)
		if err != nil {
			return err
		}
		if len(info.Shape) != 2 || info.Shape[0] != rows || info.Shape[1] != cols {
			return fmt.Errorf("%w: %s has shape %v, want [%d %d]", tensor.ErrShape, name, info.Shape, rows, cols)
		}
		*dst, err = tensor.NewMatFromData(rows, cols, data)
		return err
	}
	if err := load(&m.patchProj, PatchProj, m.hidden, 3*m.patch*m.patch); err != nil {
		return nil, err
	}
	if err := load(&m.wte, TokenEmb, m.vocab, m.hidden); err != nil {
		return nil, err
	}
	if err := load(&m.lmHead, LMHead, m.vocab, m.hidden); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeVision projects each patch of a [1,3,S,S] image to a hidden vector
// and returns [1, patches, hidden].
func (m *Model) EncodeVision(img *tensor.Dense) (*tensor.Dense, error) {
	if !img.HasShape(1, 3, m.size, m.size) {
		return nil, fmt.Errorf("%w: vision input %v, want [1 3 %d %d]", tensor.ErrShape, img.Shape(), m.size, m.size)
	}
	side := m.size / m.patch
	n := side * side
	px := img.Data()
	plane := m.size * m.size
	flat := make([]float32, 3*m.patch*m.patch)
	out := make([]float32, n*m.hidden)
	for py := range side {
		for pxi := range side {
			k := 0
			for c := range 3 {
				for y := range m.patch {
					row := c*plane + (py*m.patch+y)*m.size + pxi*m.patch
					k += copy(flat[k:], px[row:row+m.patch])
				}
			}
			p := py*side + pxi
			if err := tensor.MatVec(out[p*m.hidden:(p+1)*m.hidden], &m.patchProj, flat); err != nil {
				return nil, err
			}
		}
	}
	return tensor.New([]int{1, n, m.hidden}, out)
}

func (m *Model) DecodeWithImage(bos, prompt []int, embedding *tensor.Dense) (*tensor.Dense, error) {
	if embedding.Rank() != 3 || embedding.Dim(0) != 1 || embedding.Dim(2) != m.hidden {
		return nil, fmt.Errorf("%w: embedding %v, want [1 n %d]", tensor.ErrShape, embedding.Shape(), m.hidden)
	}
	n := embedding.Dim(1)
	ctx := make([]float32, m.hidden)
	data := embedding.Data()
	for p := range n {
		tensor.Add(ctx, data[p*m.hidden:(p+1)*m.hidden])
	}
	inv := 1 / float32(n)
	for i := range ctx {
		ctx[i] *= inv
	}
	ids := make([]int, 0, len(bos)+len(prompt))
	ids = append(append(ids, bos...), prompt...)
	logits, err := m.forward(ids, ctx)
	if err != nil {
		return nil, err
	}
	m.ctx = ctx
	return logits, nil
}

func (m *Model) Decode(ids []int) (*tensor.Dense, error) {
	if m.ctx == nil {
		return nil, errNotPrimed
	}
	return m.forward(ids, m.ctx)
}

func (m *Model) forward(ids []int, ctx []float32) (*tensor.Dense, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty input sequence", tensor.ErrShape)
	}
	out := make([]float32, len(ids)*m.vocab)
	h := make([]float32, m.hidden)
	for pos, id := range ids {
		if id < 0 || id >= m.vocab {
			return nil, fmt.Errorf("%w: token id %d outside vocab %d", tensor.ErrShape, id, m.vocab)
		}
		copy(h, m.wte.Row(id))
		tensor.Add(h, ctx)
		if err := tensor.MatVec(out[pos*m.vocab:(pos+1)*m.vocab], &m.lmHead, h); err != nil {
			return nil, err
		}
	}
	return tensor.New([]int{1, len(ids), m.vocab}, out)
}

// Close drops the weights. The model must not be used afterwards.
func (m *Model) Close() error {
	m.patchProj, m.wte, m.lmHead = tensor.Mat{}, tensor.Mat{}, tensor.Mat{}
	m.ctx = nil
	return nil
}
