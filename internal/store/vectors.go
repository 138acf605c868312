package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// vectorToString renders a vector in the textual form vector32()
// accepts. NaN and infinity are not representable and get zeroed.
func (s *Store) vectorToString(vec []float32) (string, error) {
	if len(vec) == 0 {
		return s.zeroVectorString(), nil
	}
	if len(vec) != s.dims {
		return "", fmt.Errorf("vector must have exactly %d dimensions, got %d", s.dims, len(vec))
	}

	parts := make([]string, len(vec))
	for i, n := range vec {
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		parts[i] = strconv.FormatFloat(f, 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func (s *Store) zeroVectorString() string {
	parts := make([]string, s.dims)
	for i := range parts {
		parts[i] = "0"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// extractVector decodes an F32_BLOB column value: little-endian
// float32s, 4 bytes each.
func (s *Store) extractVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) != s.dims*4 {
		return nil, fmt.Errorf("embedding blob is %d bytes, want %d for %d dimensions", len(blob), s.dims*4, s.dims)
	}
	vec := make([]float32, s.dims)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : (i+1)*4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
