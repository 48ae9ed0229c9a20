package inference

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/samcharles93/glimpse/internal/tensor"
)

const fakeEOS = 0

// byteTokenizer maps every byte to its value and id 0 to the end token.
type byteTokenizer struct {
	encodeErr error
	decodeErr error
	panicOn   string
}

func (b byteTokenizer) Encode(text string, addSpecial bool) ([]int, error) {
	if b.panicOn != "" && strings.Contains(text, b.panicOn) {
		panic("encode exploded")
	}
	if b.encodeErr != nil {
		return nil, b.encodeErr
	}
	ids := make([]int, 0, len(text))
	for i := range len(text) {
		ids = append(ids, int(text[i]))
	}
	return ids, nil
}

func (b byteTokenizer) Decode(ids []int, skipSpecial bool) (string, error) {
	if b.decodeErr != nil {
		return "", b.decodeErr
	}
	var sb strings.Builder
	for _, id := range ids {
		switch {
		case id == fakeEOS && skipSpecial:
		case id == fakeEOS:
			sb.WriteString(DefaultEOSToken)
		case id > 0 && id < 256:
			sb.WriteByte(byte(id))
		default:
			return "", errors.New("id out of range")
		}
	}
	return sb.String(), nil
}

func (byteTokenizer) TokenID(token string) (int, bool) {
	if token == DefaultEOSToken {
		return fakeEOS, true
	}
	return 0, false
}

func (byteTokenizer) VocabSize() int { return 256 }

// scriptedModel emits script[i] on the i-th forward pass and the end token
// once the script runs out. repeat, when set, is emitted forever instead.
type scriptedModel struct {
	mu     sync.Mutex
	script []int
	repeat int

	failAt  int // forward pass index that returns an error, 0 disables
	panicAt int

	// entered, if set, receives once the priming step starts; priming then
	// blocks until release is closed.
	entered chan struct{}
	release chan struct{}

	calls      int
	primed     [][]int // bos ++ prompt of every priming call
	decoded    [][]int
	encoded    int
	closed     int
	embeddings []*tensor.Dense
}

func (m *scriptedModel) EncodeVision(img *tensor.Dense) (*tensor.Dense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encoded++
	if !img.HasShape(1, 3, 378, 378) {
		return nil, tensor.ErrShape
	}
	emb, err := tensor.Zeros(1, 4, 2)
	if err != nil {
		return nil, err
	}
	m.embeddings = append(m.embeddings, emb)
	return emb, nil
}

func (m *scriptedModel) DecodeWithImage(bos, prompt []int, emb *tensor.Dense) (*tensor.Dense, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if emb == nil {
		return nil, errors.New("missing embedding")
	}
	m.primed = append(m.primed, append(slices.Clone(bos), prompt...))
	return m.step(len(bos) + len(prompt))
}

func (m *scriptedModel) Decode(ids []int) (*tensor.Dense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decoded = append(m.decoded, slices.Clone(ids))
	return m.step(len(ids))
}

func (m *scriptedModel) step(seq int) (*tensor.Dense, error) {
	i := m.calls
	m.calls++
	if m.failAt > 0 && i == m.failAt {
		return nil, errors.New("device lost")
	}
	if m.panicAt > 0 && i == m.panicAt {
		panic("index out of range")
	}
	next := fakeEOS
	switch {
	case m.repeat != 0:
		next = m.repeat
	case i < len(m.script):
		next = m.script[i]
	}
	out, err := tensor.Zeros(1, seq, 256)
	if err != nil {
		return nil, err
	}
	// Earlier positions favour a different id so only the last row counts.
	for p := range seq - 1 {
		out.Data()[p*256+7] = 10
	}
	out.Data()[(seq-1)*256+next] = 1
	return out, nil
}

func (m *scriptedModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func ids(s string) []int {
	out := make([]int, len(s))
	for i := range len(s) {
		out[i] = int(s[i])
	}
	return out
}
