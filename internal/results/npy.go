package results

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sbinet/npyio"
	gtensor "gorgonia.org/tensor"
)

const float64Descr = "<f8"

// WriteNPY encodes data as a C-ordered little-endian float64 array of the
// given shape in NumPy format version 1.0
func WriteNPY(w io.Writer, shape []int, data []float64) error {
	if len(shape) == 0 {
		return fmt.Errorf("npy: shape must have at least one dimension")
	}
	size := 1
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("npy: invalid dimension %d in shape %v", d, shape)
		}
		size *= d
	}
	if size != len(data) {
		return fmt.Errorf("npy: %d values do not fill shape %v", len(data), shape)
	}

	arr := gtensor.New(gtensor.WithShape(shape...), gtensor.WithBacking(data))

	bw := bufio.NewWriter(w)
	if err := arr.WriteNpy(bw); err != nil {
		return fmt.Errorf("npy: %w", err)
	}
	return bw.Flush()
}

// ReadNPY decodes a C-ordered little-endian float64 array. The header shape is
// checked against the payload before any values are allocated.
func ReadNPY(r io.Reader) ([]int, []float64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("npy: %w", err)
	}
	body := bytes.NewReader(raw)

	nr, err := npyio.NewReader(body)
	if err != nil {
		return nil, nil, fmt.Errorf("npy: %w", err)
	}

	descr := nr.Header.Descr
	if descr.Type != float64Descr {
		return nil, nil, fmt.Errorf("npy: only '%s' arrays are supported, got %q", float64Descr, descr.Type)
	}
	if descr.Fortran {
		return nil, nil, fmt.Errorf("npy: fortran-ordered arrays are not supported")
	}

	available := body.Len() / 8
	size := 1
	for _, d := range descr.Shape {
		if d < 0 {
			return nil, nil, fmt.Errorf("npy: negative dimension in shape %v", descr.Shape)
		}
		if d > 0 && size > available/d {
			return nil, nil, fmt.Errorf("npy: shape %v exceeds the %d values present", descr.Shape, available)
		}
		size *= d
	}
	if size > available {
		return nil, nil, fmt.Errorf("npy: shape %v exceeds the %d values present", descr.Shape, available)
	}

	data := make([]float64, size)
	if err := nr.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("npy: read values: %w", err)
	}

	shape := append([]int(nil), descr.Shape...)
	return shape, data, nil
}

// SaveNPY writes an array to path
func SaveNPY(path string, shape []int, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteNPY(f, shape, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadNPY reads an array from path
func LoadNPY(path string) ([]int, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadNPY(f)
}
