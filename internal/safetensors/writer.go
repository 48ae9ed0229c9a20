package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"
)

// Float32Tensor is a named F32 tensor to be written by WriteF32.
type Float32Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// WriteF32 serialises tensors in order as a safetensors image.
func WriteF32(w io.Writer, tensors []Float32Tensor) error {
	header := make(map[string]tensorHeader, len(tensors))
	var off int64
	for _, t := range tensors {
		n, err := numElements(t.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", t.Name, err)
		}
		if n != len(t.Data) {
			return fmt.Errorf("tensor %s: %d values for shape %v", t.Name, len(t.Data), t.Shape)
		}
		if _, dup := header[t.Name]; dup {
			return fmt.Errorf("tensor %s: duplicate name", t.Name)
		}
		header[t.Name] = tensorHeader{DType: "F32", Shape: t.Shape, DataOffsets: []int64{off, off + int64(n)*4}}
		off += int64(n) * 4
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	buf := make([]byte, 0, 4096)
	for _, t := range tensors {
		for _, v := range t.Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
			if len(buf) >= 4096 {
				if _, err := w.Write(buf); err != nil {
					return err
				}
				buf = buf[:0]
			}
		}
	}
	if len(buf) > 0 {
		_, err = w.Write(buf)
	}
	return err
}
