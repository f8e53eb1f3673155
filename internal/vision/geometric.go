package vision

import (
	"image"
	"math"
	"sort"

	"github.com/your-org/facepool/internal/config"
	"github.com/your-org/facepool/internal/models"
)

// GeometricExtractor locates faces by scanning for compact high-contrast
// regions and describes each crop with a fixed grid signature. It has no
// model files and is fully deterministic, which makes it the default
// backend for deployments without an ONNX runtime and the workhorse of the
// test suite.
type GeometricExtractor struct {
	minFaceSize int
	threshold   float64
	dim         int
}

const (
	geometricDim      = 128
	geometricGridSide = 8
	maxFacesPerImage  = 16
)

func NewGeometricExtractor(cfg config.VisionConfig) *GeometricExtractor {
	minSize := cfg.MinFaceSize
	if minSize <= 0 {
		minSize = 24
	}
	threshold := cfg.DetectionThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return &GeometricExtractor{
		minFaceSize: minSize,
		threshold:   threshold,
		dim:         geometricDim,
	}
}

func (e *GeometricExtractor) Dim() int { return e.dim }

func (e *GeometricExtractor) Extract(data []byte) ([]DetectedFace, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	lum, w, h := luminance(img)
	if w < e.minFaceSize || h < e.minFaceSize {
		return nil, nil
	}

	candidates := e.scanWindows(lum, w, h)
	candidates = suppressOverlaps(candidates, 0.3)
	if len(candidates) > maxFacesPerImage {
		candidates = candidates[:maxFacesPerImage]
	}

	faces := make([]DetectedFace, 0, len(candidates))
	for _, c := range candidates {
		crop := cropRegion(img, c.Box.X, c.Box.Y, c.Box.X+c.Box.Width, c.Box.Y+c.Box.Height)
		if crop == nil {
			continue
		}
		faces = append(faces, DetectedFace{
			Box:        c.Box,
			Embedding:  gridSignature(crop),
			Confidence: c.Confidence,
		})
	}
	return faces, nil
}

type candidate struct {
	Box        models.BoundingBox
	Confidence float32
}

// scanWindows slides square windows at three scales over the luminance
// plane and keeps those whose normalized contrast clears the threshold.
// Integral images make each window check O(1).
func (e *GeometricExtractor) scanWindows(lum []float64, w, h int) []candidate {
	sum, sumSq := integrals(lum, w, h)

	shorter := w
	if h < shorter {
		shorter = h
	}

	var candidates []candidate
	for _, divisor := range []int{3, 4, 6} {
		size := shorter / divisor
		if size < e.minFaceSize {
			continue
		}
		stride := size / 4
		if stride < 1 {
			stride = 1
		}

		for y := 0; y+size <= h; y += stride {
			for x := 0; x+size <= w; x += stride {
				contrast := windowStddev(sum, sumSq, w, x, y, size) / 128.0
				if contrast < e.threshold {
					continue
				}
				conf := contrast
				if conf > 1 {
					conf = 1
				}
				candidates = append(candidates, candidate{
					Box:        models.BoundingBox{X: x, Y: y, Width: size, Height: size},
					Confidence: float32(conf),
				})
			}
		}
	}
	return candidates
}

func integrals(lum []float64, w, h int) (sum, sumSq []float64) {
	sum = make([]float64, (w+1)*(h+1))
	sumSq = make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum, rowSumSq float64
		for x := 0; x < w; x++ {
			v := lum[y*w+x]
			rowSum += v
			rowSumSq += v * v
			sum[(y+1)*(w+1)+x+1] = sum[y*(w+1)+x+1] + rowSum
			sumSq[(y+1)*(w+1)+x+1] = sumSq[y*(w+1)+x+1] + rowSumSq
		}
	}
	return sum, sumSq
}

func windowStddev(sum, sumSq []float64, w, x, y, size int) float64 {
	stride := w + 1
	area := float64(size * size)

	rect := func(tbl []float64) float64 {
		return tbl[(y+size)*stride+x+size] - tbl[y*stride+x+size] -
			tbl[(y+size)*stride+x] + tbl[y*stride+x]
	}

	mean := rect(sum) / area
	variance := rect(sumSq)/area - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// suppressOverlaps keeps the highest-confidence window of each overlapping
// group. Ties break toward the earlier window, keeping results stable.
func suppressOverlaps(candidates []candidate, iouThreshold float64) []candidate {
	if len(candidates) == 0 {
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	keep := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		overlaps := false
		for _, k := range keep {
			if boxIoU(c.Box, k.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			keep = append(keep, c)
		}
	}
	return keep
}

func boxIoU(a, b models.BoundingBox) float64 {
	x1 := maxInt(a.X, b.X)
	y1 := maxInt(a.Y, b.Y)
	x2 := minInt(a.X+a.Width, b.X+b.Width)
	y2 := minInt(a.Y+a.Height, b.Y+b.Height)

	iw := x2 - x1
	ih := y2 - y1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := float64(iw * ih)
	union := float64(a.Width*a.Height+b.Width*b.Height) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// gridSignature describes a face crop as an 8x8 mean-luminance grid plus an
// 8x8 gradient-energy grid, L2-normalized into a 128-float vector. Crops of
// the same region always produce the same vector.
func gridSignature(crop image.Image) []float32 {
	lum, w, h := luminance(crop)

	sig := make([]float32, geometricDim)
	cellW := w / geometricGridSide
	cellH := h / geometricGridSide
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}

	for gy := 0; gy < geometricGridSide; gy++ {
		for gx := 0; gx < geometricGridSide; gx++ {
			var meanSum, gradSum float64
			var n int
			for y := gy * cellH; y < (gy+1)*cellH && y < h; y++ {
				for x := gx * cellW; x < (gx+1)*cellW && x < w; x++ {
					v := lum[y*w+x]
					meanSum += v
					if x+1 < w {
						gradSum += math.Abs(lum[y*w+x+1] - v)
					}
					if y+1 < h {
						gradSum += math.Abs(lum[(y+1)*w+x] - v)
					}
					n++
				}
			}
			if n == 0 {
				continue
			}
			cell := gy*geometricGridSide + gx
			sig[cell] = float32(meanSum / float64(n) / 255.0)
			sig[geometricGridSide*geometricGridSide+cell] = float32(gradSum / float64(n) / 255.0)
		}
	}

	normalizeVector(sig)
	return sig
}

// normalizeVector performs L2 normalization in-place.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
