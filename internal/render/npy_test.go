package render

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteNpyFormat(t *testing.T) {
	vals := []float64{1.5, -2.25, math.NaN(), 4}
	var buf bytes.Buffer
	require.NoError(t, WriteNpy(&buf, vals, 2, 2))
	raw := buf.Bytes()

	// Magic and version.
	assert.Equal(t, []byte("\x93NUMPY\x01\x00"), raw[:8])

	headerLen := int(binary.LittleEndian.Uint16(raw[8:10]))
	assert.Equal(t, 0, (10+headerLen)%64, "header block is 64-byte aligned")

	header := string(raw[10 : 10+headerLen])
	assert.Contains(t, header, "'descr': '<f8'")
	assert.Contains(t, header, "'fortran_order': False")
	assert.Contains(t, header, "'shape': (2, 2)")
	assert.Equal(t, byte('\n'), header[len(header)-1])

	// Payload is little-endian float64, C order.
	payload := raw[10+headerLen:]
	require.Len(t, payload, 4*8)
	for i, want := range vals {
		got := math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
		if math.IsNaN(want) {
			assert.True(t, math.IsNaN(got), "element %d", i)
		} else {
			assert.Equal(t, want, got, "element %d", i)
		}
	}
}

func TestWriteNpyRejectsShapeMismatch(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteNpy(&buf, []float64{1, 2, 3}, 2, 2))
}
