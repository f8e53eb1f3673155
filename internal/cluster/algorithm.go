// Package cluster groups face embeddings so every face of one person ends
// up under the same label. Algorithms label points with small non-negative
// integers and mark outliers with -1.
package cluster

import (
	"fmt"
	"math"
	"strconv"

	"github.com/your-org/facepool/internal/apperr"
)

const noisePoint = -1

// Pairwise distance metrics.
const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
)

// Params carries algorithm tuning knobs. Zero values fall back to the
// defaults set by Normalize.
type Params struct {
	// Eps is the neighborhood radius for dbscan and chinese_whispers, and
	// the merge-distance cutoff for agglomerative.
	Eps float64
	// MinSamples is the dbscan core-point threshold.
	MinSamples int
	// NumClusters, when positive, overrides the agglomerative cutoff.
	NumClusters int
	// Damping smooths affinity-propagation message updates.
	Damping float64
	// Iterations bounds iterative algorithms.
	Iterations int
	// Seed drives every random choice, so equal inputs give equal labels.
	Seed int64
	// Metric selects the pairwise distance: euclidean or cosine.
	Metric string
}

// Normalize fills unset fields with workable defaults.
func (p *Params) Normalize() {
	if p.Eps <= 0 {
		p.Eps = 0.5
	}
	if p.MinSamples <= 0 {
		p.MinSamples = 3
	}
	if p.Damping <= 0 || p.Damping >= 1 {
		p.Damping = 0.9
	}
	if p.Iterations <= 0 {
		p.Iterations = 200
	}
	if p.Seed == 0 {
		p.Seed = 42
	}
	if p.Metric == "" {
		p.Metric = MetricEuclidean
	}
}

// ParseParams reads string params delivered over the wire into a Params.
// Unknown keys are ignored; bad values are an input error.
func ParseParams(raw map[string]string, seed int64) (Params, error) {
	p := Params{Seed: seed}
	for key, val := range raw {
		var err error
		switch key {
		case "eps":
			p.Eps, err = strconv.ParseFloat(val, 64)
		case "min_samples":
			p.MinSamples, err = strconv.Atoi(val)
		case "num_clusters":
			p.NumClusters, err = strconv.Atoi(val)
		case "damping":
			p.Damping, err = strconv.ParseFloat(val, 64)
		case "iterations":
			p.Iterations, err = strconv.Atoi(val)
		case "seed":
			p.Seed, err = strconv.ParseInt(val, 10, 64)
		case "metric":
			if val != MetricEuclidean && val != MetricCosine {
				err = fmt.Errorf("unknown metric")
			}
			p.Metric = val
		}
		if err != nil {
			return Params{}, fmt.Errorf("param %s=%q: %w", key, val, apperr.ErrInvalidInput)
		}
	}
	p.Normalize()
	return p, nil
}

// Algorithm assigns a label per row of data. Rows are embedding vectors of
// equal length. Labels are >= 0 or noisePoint.
type Algorithm interface {
	Name() string
	Fit(data [][]float64, p Params) ([]int, error)
}

var algorithms = map[string]Algorithm{
	"dbscan":               &DBSCAN{},
	"agglomerative":        &Agglomerative{},
	"chinese_whispers":     &ChineseWhispers{},
	"affinity_propagation": &AffinityPropagation{},
}

// Get looks up an algorithm by name.
func Get(name string) (Algorithm, error) {
	algo, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q: %w", name, apperr.ErrInvalidInput)
	}
	return algo, nil
}

// Names lists the registered algorithm names.
func Names() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	return names
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosineDist(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// distance applies the configured metric to one pair of rows.
func (p Params) distance(a, b []float64) float64 {
	if p.Metric == MetricCosine {
		return cosineDist(a, b)
	}
	return euclidean(a, b)
}

// distanceMatrix precomputes pairwise distances under the params' metric.
func distanceMatrix(data [][]float64, p Params) [][]float64 {
	n := len(data)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := p.distance(data[i], data[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}
