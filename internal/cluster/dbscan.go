package cluster

// DBSCAN is density-based clustering: points with at least MinSamples
// neighbors within Eps seed clusters, reachable points join them, the rest
// is noise.
type DBSCAN struct{}

func (d *DBSCAN) Name() string { return "dbscan" }

func (d *DBSCAN) Fit(data [][]float64, p Params) ([]int, error) {
	p.Normalize()
	n := len(data)

	const unvisited = -2
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	dist := distanceMatrix(data, p)
	neighbors := func(i int) []int {
		var nbrs []int
		for j := 0; j < n; j++ {
			if j != i && dist[i][j] <= p.Eps {
				nbrs = append(nbrs, j)
			}
		}
		return nbrs
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}

		nbrs := neighbors(i)
		if len(nbrs)+1 < p.MinSamples {
			labels[i] = noisePoint
			continue
		}

		labels[i] = cluster
		// Expand over the neighborhood; the queue grows as core points are
		// discovered.
		queue := append([]int(nil), nbrs...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == noisePoint {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster

			jNbrs := neighbors(j)
			if len(jNbrs)+1 >= p.MinSamples {
				queue = append(queue, jNbrs...)
			}
		}
		cluster++
	}

	return labels, nil
}
