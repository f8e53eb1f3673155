package vision

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/your-org/facepool/internal/config"
	"github.com/your-org/facepool/internal/models"
)

// ONNXExtractor pairs a RetinaFace detector with an ArcFace embedder. Both
// sessions use fixed input/output tensors, so calls are serialized behind a
// mutex; the worker pool provides the parallelism across images.
type ONNXExtractor struct {
	detector *Detector
	embedder *Embedder
	mu       sync.Mutex
}

// NewONNXExtractor loads det_10g.onnx and w600k_r50.onnx from the models
// directory.
func NewONNXExtractor(cfg config.VisionConfig) (*ONNXExtractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	emb, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXExtractor{detector: det, embedder: emb}, nil
}

func (e *ONNXExtractor) Dim() int { return e.embedder.EmbeddingDim() }

func (e *ONNXExtractor) Extract(data []byte) ([]DetectedFace, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	e.mu.Lock()
	defer e.mu.Unlock()

	detW, detH := e.detector.InputSize()
	detInput := imageToFloat32CHW(img, detW, detH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})

	detections, err := e.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	embW, embH := e.embedder.InputSize()

	faces := make([]DetectedFace, 0, len(detections))
	for _, det := range detections {
		x1 := int(det.BBox[0])
		y1 := int(det.BBox[1])
		x2 := int(det.BBox[2])
		y2 := int(det.BBox[3])

		crop := cropRegion(img, x1, y1, x2, y2)
		if crop == nil {
			continue
		}

		embInput := imageToFloat32CHW(crop, embW, embH,
			[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
		embedding, err := e.embedder.Embed(embInput)
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}

		faces = append(faces, DetectedFace{
			Box: models.BoundingBox{
				X:      x1,
				Y:      y1,
				Width:  x2 - x1,
				Height: y2 - y1,
			},
			Embedding:  embedding,
			Confidence: det.Confidence,
		})
	}
	return faces, nil
}

// Close releases both ONNX sessions.
func (e *ONNXExtractor) Close() {
	if e.detector != nil {
		e.detector.Close()
	}
	if e.embedder != nil {
		e.embedder.Close()
	}
}
