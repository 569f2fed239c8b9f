package render

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// WriteNpy serializes a 2-D float64 matrix in NumPy .npy version 1.0 format
// (little-endian, C order), so downstream analysis notebooks load the field
// directly.
func WriteNpy(w io.Writer, vals []float64, height, width int) error {
	if len(vals) != height*width {
		return fmt.Errorf("matrix length %d does not match %dx%d", len(vals), height, width)
	}
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }", height, width)
	// Total header (magic + len field + text + padding) must be a multiple
	// of 64, terminated with a newline.
	base := 6 + 2 + 2
	pad := 64 - (base+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	padded := header + strings.Repeat(" ", pad) + "\n"

	if _, err := w.Write([]byte("\x93NUMPY\x01\x00")); err != nil {
		return err
	}
	var lenField [2]byte
	binary.LittleEndian.PutUint16(lenField[:], uint16(len(padded)))
	if _, err := w.Write(lenField[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte(padded)); err != nil {
		return err
	}

	buf := make([]byte, 8*width)
	for y := 0; y < height; y++ {
		row := vals[y*width : (y+1)*width]
		for x, v := range row {
			binary.LittleEndian.PutUint64(buf[8*x:], math.Float64bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// WriteNpyFile writes the matrix to a file created at path.
func WriteNpyFile(path string, vals []float64, height, width int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteNpy(f, vals, height, width); err != nil {
		return err
	}
	return f.Close()
}
