package vision

import (
	"github.com/your-org/facepool/internal/models"
)

// DetectedFace is one face found in an image: where it sits and the
// embedding computed from its crop.
type DetectedFace struct {
	Box        models.BoundingBox
	Embedding  []float32
	Confidence float32
}

// Extractor turns raw image bytes into detected faces with embeddings.
// A result with zero faces is valid; an undecodable payload is an error.
// Implementations must be safe for concurrent use.
type Extractor interface {
	// Extract decodes the image, locates faces and computes one embedding
	// per face. Embeddings are L2-normalized and Dim() elements long.
	Extract(data []byte) ([]DetectedFace, error)

	// Dim reports the embedding dimensionality this extractor produces.
	Dim() int
}
