package cluster

import "math"

// Agglomerative is bottom-up hierarchical clustering with average linkage.
// Merging stops when the closest pair of clusters sits further apart than
// Eps, or once NumClusters remain when that is set.
type Agglomerative struct{}

func (a *Agglomerative) Name() string { return "agglomerative" }

func (a *Agglomerative) Fit(data [][]float64, p Params) ([]int, error) {
	p.Normalize()
	n := len(data)

	// Each point starts as its own cluster; members tracks live clusters.
	members := make(map[int][]int, n)
	for i := 0; i < n; i++ {
		members[i] = []int{i}
	}
	dist := distanceMatrix(data, p)

	avgLinkage := func(a, b []int) float64 {
		var sum float64
		for _, i := range a {
			for _, j := range b {
				sum += dist[i][j]
			}
		}
		return sum / float64(len(a)*len(b))
	}

	for len(members) > 1 {
		if p.NumClusters > 0 && len(members) <= p.NumClusters {
			break
		}

		// Find the closest pair. Iterating ids in ascending order keeps the
		// merge sequence deterministic when distances tie.
		ids := sortedKeys(members)
		best := math.Inf(1)
		var bestA, bestB int
		for ai := 0; ai < len(ids); ai++ {
			for bi := ai + 1; bi < len(ids); bi++ {
				d := avgLinkage(members[ids[ai]], members[ids[bi]])
				if d < best {
					best = d
					bestA, bestB = ids[ai], ids[bi]
				}
			}
		}

		if p.NumClusters <= 0 && best > p.Eps {
			break
		}

		members[bestA] = append(members[bestA], members[bestB]...)
		delete(members, bestB)
	}

	labels := make([]int, n)
	for next, id := 0, 0; id < n; id++ {
		pts, ok := members[id]
		if !ok {
			continue
		}
		for _, pt := range pts {
			labels[pt] = next
		}
		next++
	}
	return labels, nil
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
