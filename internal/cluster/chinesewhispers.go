package cluster

import "math/rand"

// ChineseWhispers builds a graph with edges between points closer than Eps
// and iteratively relabels each node with the label carried by the most
// total edge weight among its neighbors. The visit order is shuffled with
// the seeded source, so runs with equal input and seed agree.
type ChineseWhispers struct{}

func (c *ChineseWhispers) Name() string { return "chinese_whispers" }

func (c *ChineseWhispers) Fit(data [][]float64, p Params) ([]int, error) {
	p.Normalize()
	n := len(data)

	iterations := p.Iterations
	if iterations > 30 {
		iterations = 30
	}

	dist := distanceMatrix(data, p)

	type edge struct {
		to     int
		weight float64
	}
	adj := make([][]edge, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if dist[i][j] <= p.Eps {
				w := 1.0 / (dist[i][j] + 1e-9)
				adj[i] = append(adj[i], edge{j, w})
				adj[j] = append(adj[j], edge{i, w})
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	rng := rand.New(rand.NewSource(p.Seed))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for it := 0; it < iterations; it++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		changed := false
		for _, i := range order {
			if len(adj[i]) == 0 {
				continue
			}
			weights := make(map[int]float64)
			for _, e := range adj[i] {
				weights[labels[e.to]] += e.weight
			}

			best := labels[i]
			bestW := -1.0
			for label, w := range weights {
				if w > bestW || (w == bestW && label < best) {
					best = label
					bestW = w
				}
			}
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// Isolated nodes never received a neighbor label; they are noise.
	for i := range labels {
		if len(adj[i]) == 0 {
			labels[i] = noisePoint
		}
	}
	return labels, nil
}
