package sqlite

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/nonibytes/vecsql/vecsql/exec"
)

// encodeVector packs a vector as consecutive little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// sortByScore orders records by descending score, identifier ascending on
// ties, matching the executor's top-k cut order.
func sortByScore(recs []exec.RawRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if *recs[i].Score != *recs[j].Score {
			return *recs[i].Score > *recs[j].Score
		}
		return recs[i].ID < recs[j].ID
	})
}
