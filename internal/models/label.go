package models

import "fmt"

// Stored sentinel values for cluster labels. They exist only at the storage
// and DTO boundary; in memory a label is a ClusterLabel tagged value.
const (
	StoredPending = -2
	StoredNoise   = -1
)

// ClusterLabel is the clustering state of a face: not yet processed, rejected
// as noise by the last run, or assigned to a cluster.
type ClusterLabel struct {
	assigned bool
	noise    bool
	cluster  int
}

func PendingLabel() ClusterLabel { return ClusterLabel{} }

func NoiseLabel() ClusterLabel { return ClusterLabel{noise: true} }

// AssignedLabel panics on a negative cluster id: non-negative ids are a
// storage invariant, callers remap raw algorithm output first.
func AssignedLabel(cluster int) ClusterLabel {
	if cluster < 0 {
		panic(fmt.Sprintf("cluster id must be non-negative, got %d", cluster))
	}
	return ClusterLabel{assigned: true, cluster: cluster}
}

func (l ClusterLabel) IsPending() bool { return !l.assigned && !l.noise }

func (l ClusterLabel) IsNoise() bool { return l.noise }

// Cluster returns the assigned cluster id and whether the label is assigned.
func (l ClusterLabel) Cluster() (int, bool) { return l.cluster, l.assigned }

// ToStored converts the label to its persisted integer form.
func (l ClusterLabel) ToStored() int {
	switch {
	case l.assigned:
		return l.cluster
	case l.noise:
		return StoredNoise
	default:
		return StoredPending
	}
}

// LabelFromStored converts a persisted integer back to a tagged label.
func LabelFromStored(v int) (ClusterLabel, error) {
	switch {
	case v >= 0:
		return AssignedLabel(v), nil
	case v == StoredNoise:
		return NoiseLabel(), nil
	case v == StoredPending:
		return PendingLabel(), nil
	default:
		return ClusterLabel{}, fmt.Errorf("invalid stored cluster label %d", v)
	}
}

func (l ClusterLabel) String() string {
	switch {
	case l.assigned:
		return fmt.Sprintf("cluster(%d)", l.cluster)
	case l.noise:
		return "noise"
	default:
		return "pending"
	}
}

// MarshalJSON writes the stored integer form, which is what API clients see.
func (l ClusterLabel) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%d", l.ToStored())), nil
}

func (l *ClusterLabel) UnmarshalJSON(data []byte) error {
	var v int
	if _, err := fmt.Sscanf(string(data), "%d", &v); err != nil {
		return fmt.Errorf("parse cluster label: %w", err)
	}
	parsed, err := LabelFromStored(v)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
