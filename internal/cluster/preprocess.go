package cluster

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/your-org/facepool/internal/apperr"
)

// Preprocessing modes applied to the embedding matrix before clustering.
const (
	PreprocessNone      = "none"
	PreprocessNormalize = "normalize"
	PreprocessPCA       = "pca"
)

const pcaComponents = 32

// Preprocess returns a transformed copy of the matrix. A numerically
// degenerate transform falls back to the raw matrix rather than failing the
// run.
func Preprocess(mode string, data [][]float64, seed int64) ([][]float64, error) {
	switch mode {
	case "", PreprocessNone:
		return data, nil
	case PreprocessNormalize:
		return normalizeRows(data), nil
	case PreprocessPCA:
		reduced, ok := pca(data, pcaComponents, seed)
		if !ok {
			slog.Warn("pca degenerate, clustering on raw embeddings")
			return data, nil
		}
		return reduced, nil
	default:
		return nil, fmt.Errorf("unknown preprocessing %q: %w", mode, apperr.ErrInvalidInput)
	}
}

func normalizeRows(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		var sum float64
		for _, v := range row {
			sum += v * v
		}
		norm := math.Sqrt(sum)
		normalized := make([]float64, len(row))
		if norm > 0 {
			for j, v := range row {
				normalized[j] = v / norm
			}
		}
		out[i] = normalized
	}
	return out
}

// pca projects the centered matrix onto its top principal components found
// by power iteration with deflation. Returns ok=false when the data has no
// usable variance.
func pca(data [][]float64, components int, seed int64) ([][]float64, bool) {
	n := len(data)
	if n == 0 {
		return nil, false
	}
	d := len(data[0])
	if components > d {
		components = d
	}
	if components > n-1 {
		components = n - 1
	}
	if components < 1 {
		return nil, false
	}

	// Center.
	means := make([]float64, d)
	for _, row := range data {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	centered := make([][]float64, n)
	for i, row := range data {
		centered[i] = make([]float64, d)
		for j, v := range row {
			centered[i][j] = v - means[j]
		}
	}

	rng := rand.New(rand.NewSource(seed))
	basis := make([][]float64, 0, components)

	for c := 0; c < components; c++ {
		vec := powerIteration(centered, basis, rng)
		if vec == nil {
			break
		}
		basis = append(basis, vec)
	}
	if len(basis) == 0 {
		return nil, false
	}

	projected := make([][]float64, n)
	for i, row := range centered {
		projected[i] = make([]float64, len(basis))
		for c, vec := range basis {
			var dot float64
			for j, v := range row {
				dot += v * vec[j]
			}
			projected[i][c] = dot
		}
	}
	return projected, true
}

// powerIteration finds the dominant direction of the centered matrix
// orthogonal to the existing basis.
func powerIteration(centered, basis [][]float64, rng *rand.Rand) []float64 {
	d := len(centered[0])

	vec := make([]float64, d)
	for j := range vec {
		vec[j] = rng.Float64() - 0.5
	}
	orthogonalize(vec, basis)
	if !renormalize(vec) {
		return nil
	}

	tmp := make([]float64, d)
	for iter := 0; iter < 100; iter++ {
		// tmp = Cov * vec computed as X^T (X vec) without materializing Cov.
		for j := range tmp {
			tmp[j] = 0
		}
		for _, row := range centered {
			var dot float64
			for j, v := range row {
				dot += v * vec[j]
			}
			for j, v := range row {
				tmp[j] += dot * v
			}
		}

		orthogonalize(tmp, basis)
		if !renormalize(tmp) {
			return nil
		}

		var diff float64
		for j := range vec {
			d := tmp[j] - vec[j]
			diff += d * d
		}
		copy(vec, tmp)
		if diff < 1e-12 {
			break
		}
	}
	return append([]float64(nil), vec...)
}

func orthogonalize(vec []float64, basis [][]float64) {
	for _, b := range basis {
		var dot float64
		for j, v := range vec {
			dot += v * b[j]
		}
		for j := range vec {
			vec[j] -= dot * b[j]
		}
	}
}

func renormalize(vec []float64) bool {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		return false
	}
	for j := range vec {
		vec[j] /= norm
	}
	return true
}
