package storage

import (
	"errors"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

const hnswMaxNeighbors = 16

// FaceIndex is an in-memory approximate-nearest-neighbor index over one
// event's face embeddings. The search service layers it over the exhaustive
// pgvector scan once an event grows past the configured face threshold.
type FaceIndex struct {
	graph *hnsw.Graph[int64]
	count int
	mu    sync.RWMutex
}

func NewFaceIndex() *FaceIndex {
	return &FaceIndex{}
}

// Rebuild replaces the graph with one built from the given embeddings.
// faceIDs and embeddings must be parallel slices.
func (x *FaceIndex) Rebuild(faceIDs []int64, embeddings [][]float32) error {
	if len(faceIDs) != len(embeddings) {
		return errors.New("face ids and embeddings length mismatch")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if len(faceIDs) == 0 {
		x.graph = nil
		x.count = 0
		return nil
	}

	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	for i, id := range faceIDs {
		if len(embeddings[i]) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(id, embeddings[i]))
	}

	x.graph = g
	x.count = len(faceIDs)
	return nil
}

// Search returns up to k face ids with exact cosine distances, ascending.
func (x *FaceIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		return nil, nil, errors.New("index not built")
	}

	neighbors := x.graph.Search(query, k)
	ids := make([]int64, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		distances[i] = cosineDistance(query, n.Value)
	}
	return ids, distances, nil
}

// Count reports how many faces the graph was last built from, used to
// detect staleness against the store's face count.
func (x *FaceIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
