package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/config"
)

func testExtractor() *GeometricExtractor {
	return NewGeometricExtractor(config.VisionConfig{
		MinFaceSize:        24,
		DetectionThreshold: 0.5,
	})
}

// encodePNG renders a test image: flat gray except for checkerboard
// patches at the given origins, which read as high-contrast regions.
func encodePNG(t *testing.T, w, h, patchSize int, patches ...image.Point) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	gray := color.RGBA{128, 128, 128, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, gray)
		}
	}

	for _, p := range patches {
		for y := p.Y; y < p.Y+patchSize && y < h; y++ {
			for x := p.X; x < p.X+patchSize && x < w; x++ {
				if (x+y)%2 == 0 {
					img.Set(x, y, color.RGBA{255, 255, 255, 255})
				} else {
					img.Set(x, y, color.RGBA{0, 0, 0, 255})
				}
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtractRejectsUndecodableBytes(t *testing.T) {
	_, err := testExtractor().Extract([]byte("not an image"))
	assert.ErrorIs(t, err, apperr.ErrInvalidImage)
}

func TestExtractFlatImageHasNoFaces(t *testing.T) {
	data := encodePNG(t, 120, 120, 0)

	faces, err := testExtractor().Extract(data)
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestExtractFindsHighContrastRegion(t *testing.T) {
	data := encodePNG(t, 160, 160, 48, image.Pt(20, 20))

	faces, err := testExtractor().Extract(data)
	require.NoError(t, err)
	require.NotEmpty(t, faces)

	for _, f := range faces {
		assert.NoError(t, f.Box.Validate())
		assert.LessOrEqual(t, f.Box.X+f.Box.Width, 160)
		assert.LessOrEqual(t, f.Box.Y+f.Box.Height, 160)
		assert.Len(t, f.Embedding, geometricDim)

		var norm float64
		for _, v := range f.Embedding {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
	}
}

func TestExtractSeparatesDistantRegions(t *testing.T) {
	data := encodePNG(t, 300, 300, 60, image.Pt(10, 10), image.Pt(220, 220))

	faces, err := testExtractor().Extract(data)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(faces), 2)

	// No two surviving boxes may overlap heavily.
	for i := 0; i < len(faces); i++ {
		for j := i + 1; j < len(faces); j++ {
			assert.LessOrEqual(t, boxIoU(faces[i].Box, faces[j].Box), 0.3)
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	data := encodePNG(t, 160, 160, 48, image.Pt(40, 40))
	ex := testExtractor()

	first, err := ex.Extract(data)
	require.NoError(t, err)
	second, err := ex.Extract(data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtractTooSmallImage(t *testing.T) {
	data := encodePNG(t, 10, 10, 0)

	faces, err := testExtractor().Extract(data)
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestDeriveGridSignatureDiffersByContent(t *testing.T) {
	bright := image.NewRGBA(image.Rect(0, 0, 32, 32))
	dark := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			bright.Set(x, y, color.RGBA{240, 240, 240, 255})
			dark.Set(x, y, color.RGBA{20, 20, 20, 255})
		}
	}

	assert.NotEqual(t, gridSignature(bright), gridSignature(dark))
}
