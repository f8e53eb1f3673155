package cluster

import (
	"errors"
	"math"
	"sort"
)

// AffinityPropagation exchanges responsibility and availability messages
// until a stable set of exemplars emerges. Preferences default to the
// median similarity, which yields a moderate cluster count.
type AffinityPropagation struct{}

func (a *AffinityPropagation) Name() string { return "affinity_propagation" }

func (a *AffinityPropagation) Fit(data [][]float64, p Params) ([]int, error) {
	p.Normalize()
	n := len(data)
	if n == 1 {
		return []int{0}, nil
	}

	// Similarity is negated squared distance.
	s := make([][]float64, n)
	var offDiag []float64
	for i := range s {
		s[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d := p.distance(data[i], data[j])
			s[i][j] = -d * d
			offDiag = append(offDiag, s[i][j])
		}
	}
	sort.Float64s(offDiag)
	preference := offDiag[len(offDiag)/2]
	for i := 0; i < n; i++ {
		s[i][i] = preference
	}

	r := make([][]float64, n)
	av := make([][]float64, n)
	for i := range r {
		r[i] = make([]float64, n)
		av[i] = make([]float64, n)
	}

	const convergenceWindow = 15
	stable := 0
	var lastExemplars string

	for it := 0; it < p.Iterations; it++ {
		// Responsibilities: r(i,k) = s(i,k) - max over k' != k of a(i,k')+s(i,k').
		for i := 0; i < n; i++ {
			max1, max2 := math.Inf(-1), math.Inf(-1)
			argmax := -1
			for k := 0; k < n; k++ {
				v := av[i][k] + s[i][k]
				if v > max1 {
					max2 = max1
					max1 = v
					argmax = k
				} else if v > max2 {
					max2 = v
				}
			}
			for k := 0; k < n; k++ {
				cutoff := max1
				if k == argmax {
					cutoff = max2
				}
				r[i][k] = p.Damping*r[i][k] + (1-p.Damping)*(s[i][k]-cutoff)
			}
		}

		// Availabilities: a(i,k) = min(0, r(k,k) + sum of positive r(i',k)).
		for k := 0; k < n; k++ {
			var posSum float64
			for i := 0; i < n; i++ {
				if i != k && r[i][k] > 0 {
					posSum += r[i][k]
				}
			}
			for i := 0; i < n; i++ {
				var val float64
				if i == k {
					val = posSum
				} else {
					val = r[k][k] + posSum
					if r[i][k] > 0 {
						val -= r[i][k]
					}
					if val > 0 {
						val = 0
					}
				}
				av[i][k] = p.Damping*av[i][k] + (1-p.Damping)*val
			}
		}

		exemplars := exemplarSet(r, av)
		if exemplars == lastExemplars && exemplars != "" {
			stable++
			if stable >= convergenceWindow {
				break
			}
		} else {
			stable = 0
			lastExemplars = exemplars
		}
	}

	var exemplars []int
	for k := 0; k < n; k++ {
		if r[k][k]+av[k][k] > 0 {
			exemplars = append(exemplars, k)
		}
	}
	if len(exemplars) == 0 {
		return nil, errors.New("affinity propagation did not converge to any exemplar")
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		best := 0
		bestSim := math.Inf(-1)
		for idx, k := range exemplars {
			if s[i][k] > bestSim {
				bestSim = s[i][k]
				best = idx
			}
		}
		labels[i] = best
	}
	// Exemplars belong to their own cluster regardless of similarity noise.
	for idx, k := range exemplars {
		labels[k] = idx
	}
	return labels, nil
}

func exemplarSet(r, av [][]float64) string {
	buf := make([]byte, len(r))
	for k := range r {
		if r[k][k]+av[k][k] > 0 {
			buf[k] = '1'
		} else {
			buf[k] = '0'
		}
	}
	return string(buf)
}
