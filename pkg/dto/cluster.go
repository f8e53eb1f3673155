package dto

import "github.com/your-org/facepool/internal/models"

// ClusterRunRequest triggers a clustering pass over an event's faces. The
// run is queued for the cluster daemon; results arrive via the summaries
// endpoint and the clustering-finished notification.
type ClusterRunRequest struct {
	Algorithm     string            `json:"algorithm"`
	Preprocessing string            `json:"preprocessing"`
	Params        map[string]string `json:"params"`
}

type ClusterRunResponse struct {
	EventCode     string `json:"event_code"`
	Algorithm     string `json:"algorithm"`
	Preprocessing string `json:"preprocessing"`
}

type FaceSampleResponse struct {
	FaceID     int64              `json:"face_id"`
	ImageUUID  string             `json:"image_uuid"`
	StorageURL string             `json:"storage_url"`
	Box        models.BoundingBox `json:"box"`
}

type ClusterSummaryResponse struct {
	ClusterID int                  `json:"cluster_id"`
	FaceCount int                  `json:"face_count"`
	Samples   []FaceSampleResponse `json:"samples"`
}

type MatchResponse struct {
	FaceID     int64              `json:"face_id"`
	ImageUUID  string             `json:"image_uuid"`
	StorageURL string             `json:"storage_url"`
	ClusterID  int                `json:"cluster_id"`
	Box        models.BoundingBox `json:"box"`
	Distance   float64            `json:"distance"`
}

type SearchResponse struct {
	Matches []MatchResponse `json:"matches"`
	Total   int             `json:"total"`
}
