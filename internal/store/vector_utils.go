package store

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"unsafe"
)

// Embeddings are stored as JSON arrays in the facts table so the database
// stays inspectable with plain sqlite3, and as little-endian float32 blobs
// in the vec0 mirror which requires that layout.

// fastParseVectorJSON parses a JSON array of floats into []float32.
// It appends to the provided dest slice (resetting it first).
func fastParseVectorJSON(data []byte, dest []float32) ([]float32, error) {
	dest = dest[:0] // Reuse capacity

	if len(data) == 0 {
		return dest, nil
	}

	// Skip leading whitespace
	i := 0
	for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\n' || data[i] == '\r') {
		i++
	}
	if i == len(data) {
		return dest, nil
	}

	if data[i] != '[' {
		return nil, errors.New("expected '[' at start")
	}
	i++ // skip '['

	for i < len(data) {
		for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\n' || data[i] == '\r') {
			i++
		}
		if i == len(data) {
			break
		}

		if data[i] == ']' {
			return dest, nil
		}

		start := i
		for i < len(data) && (data[i] != ',' && data[i] != ']' && data[i] != ' ' && data[i] != '\t' && data[i] != '\n' && data[i] != '\r') {
			i++
		}

		numBytes := data[start:i]
		if len(numBytes) > 0 {
			// Unsafe string conversion to avoid allocation
			str := *(*string)(unsafe.Pointer(&numBytes))

			f, err := strconv.ParseFloat(str, 32)
			if err != nil {
				return nil, err
			}
			dest = append(dest, float32(f))
		}

		for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\n' || data[i] == '\r') {
			i++
		}

		if i < len(data) && data[i] == ',' {
			i++
		} else if i < len(data) && data[i] == ']' {
			return dest, nil
		}
	}

	return dest, nil
}

// encodeVectorJSON renders a vector as a compact JSON array.
func encodeVectorJSON(vec []float32) []byte {
	buf := make([]byte, 0, len(vec)*10+2)
	buf = append(buf, '[')
	for i, v := range vec {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(v), 'g', -1, 32)
	}
	buf = append(buf, ']')
	return buf
}

// vectorBlob encodes a vector as little-endian float32 bytes, the layout
// sqlite-vec expects for vec0 columns.
func vectorBlob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
