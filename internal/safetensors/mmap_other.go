//go:build !unix

package safetensors

import "os"

func mapFile(f *os.File, size int) ([]byte, func() error, error) {
	data, err := readAll(f, size)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
