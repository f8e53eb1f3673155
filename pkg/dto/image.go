package dto

import "github.com/your-org/facepool/internal/models"

type FaceResponse struct {
	ID        int64              `json:"id"`
	Box       models.BoundingBox `json:"box"`
	ClusterID int                `json:"cluster_id"`
}

type ImageResponse struct {
	UUID          string         `json:"uuid"`
	StorageURL    string         `json:"storage_url"`
	FileExtension string         `json:"file_extension"`
	FaceCount     int            `json:"face_count"`
	CreatedAt     string         `json:"created_at"`
	LastModified  string         `json:"last_modified"`
	Faces         []FaceResponse `json:"faces,omitempty"`
}

type ListImagesResponse struct {
	Images []ImageResponse `json:"images"`
	Total  int             `json:"total"`
}

// UploadResponse acknowledges an accepted upload. Face extraction runs
// asynchronously, so face_count is always zero here.
type UploadResponse struct {
	UUID       string `json:"uuid"`
	StorageURL string `json:"storage_url"`
	FaceCount  int    `json:"face_count"`
}
