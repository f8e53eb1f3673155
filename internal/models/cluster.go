package models

// FaceSample is one randomly chosen representative face of a cluster.
type FaceSample struct {
	FaceID     int64       `json:"face_id"`
	ImageUUID  string      `json:"image_uuid"`
	StorageURL string      `json:"storage_url"`
	Box        BoundingBox `json:"bbox"`
}

// ClusterSummary is a derived per-cluster aggregate; it is never persisted.
// Pending and noise show up as their own groups so callers can tell "still
// processing" apart from "matched no one".
type ClusterSummary struct {
	Label     ClusterLabel `json:"cluster_id"`
	FaceCount int          `json:"face_count"`
	Samples   []FaceSample `json:"samples"`
}

// FaceMatch is one similarity-search result, ordered ascending by distance
// (lower = more similar).
type FaceMatch struct {
	FaceID     int64        `json:"face_id"`
	ImageUUID  string       `json:"image_uuid"`
	StorageURL string       `json:"storage_url"`
	Label      ClusterLabel `json:"cluster_id"`
	Box        BoundingBox  `json:"bbox"`
	Distance   float64      `json:"distance"`
}
