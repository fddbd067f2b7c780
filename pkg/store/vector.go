package store

import (
	"strconv"
	"strings"
)

// encodeVector renders a float32 slice in pgvector's text input format,
// e.g. "[0.1,0.2,0.3]", for use as a query parameter cast with ::vector.
func encodeVector(v []float32) string {
	if v == nil {
		return ""
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// decodeVector parses pgvector's text output format back into a
// float32 slice.
func decodeVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}
