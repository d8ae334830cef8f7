package cutout

import (
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrathskeller/rigger/pkg/body"
)

// createTestImage creates a gradient image with a half-transparent pixel
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	img.SetNRGBA(1, 1, color.NRGBA{R: 9, G: 8, B: 7, A: 128})
	return img
}

// oneLabelPerPixel lays raw labels 0..23 out over a 6x4 raster
func oneLabelPerPixel() *Segmentation {
	seg := NewSegmentation(6, 4)
	for id := 0; id < body.RawLabelCount; id++ {
		seg.Data[id] = id
	}
	return seg
}

func TestMaskPartition(t *testing.T) {
	img := createTestImage(6, 4)
	seg := oneLabelPerPixel()

	parts, err := New().ExtractAll(img, seg, nil)
	require.NoError(t, err)
	require.Len(t, parts, len(body.Groups()))

	owners := make([]int, body.RawLabelCount)
	for g, part := range parts {
		assert.Equal(t, img.Bounds(), part.Bounds(), "%s has wrong bounds", g)
		for id := 0; id < body.RawLabelCount; id++ {
			x, y := id%6, id/6
			if part.NRGBAAt(x, y).A == 0xff {
				owners[id]++
				want, _ := body.GroupOf(id)
				assert.Equal(t, want, g, "pixel for label %d opaque in %s", id, g)
			} else {
				assert.Equal(t, color.NRGBA{}, part.NRGBAAt(x, y))
			}
		}
	}
	for id, n := range owners {
		assert.Equal(t, 1, n, "label %d (%s) owned by %d cutouts", id, body.RawLabelName(id), n)
	}
}

func TestExtractPartKeepsColour(t *testing.T) {
	img := createTestImage(6, 4)
	seg := NewSegmentation(6, 4)
	seg.Set(1, 1, 12) // torso front
	seg.Set(4, 2, 13) // torso back
	seg.Set(5, 3, 0)  // face

	part, err := New().ExtractPart(img, seg, body.Torso)
	require.NoError(t, err)

	assert.Equal(t, color.NRGBA{R: 9, G: 8, B: 7, A: 255}, part.NRGBAAt(1, 1))
	assert.Equal(t, color.NRGBA{R: 40, G: 80, B: 200, A: 255}, part.NRGBAAt(4, 2))
	assert.Equal(t, uint8(0), part.NRGBAAt(5, 3).A)
	assert.Equal(t, uint8(0), part.NRGBAAt(0, 0).A)
}

func TestExtractPartReturnsFreshBuffers(t *testing.T) {
	img := createTestImage(6, 4)
	seg := oneLabelPerPixel()
	c := New()

	a, err := c.ExtractPart(img, seg, body.Head)
	require.NoError(t, err)
	b, err := c.ExtractPart(img, seg, body.Head)
	require.NoError(t, err)

	a.Pix[0] = 1
	assert.NotEqual(t, a.Pix[0], b.Pix[0])
}

func TestResolutionMismatch(t *testing.T) {
	img := createTestImage(6, 4)
	seg := NewSegmentation(3, 2)

	_, err := New().ExtractPart(img, seg, body.Head)
	require.Error(t, err)
	var rme *ResolutionMismatchError
	require.ErrorAs(t, err, &rme)
	assert.Equal(t, image.Pt(6, 4), rme.Image)
	assert.Equal(t, image.Pt(3, 2), rme.Segmentation)

	_, err = New().ExtractAll(img, seg, nil)
	assert.ErrorAs(t, err, &rme)
}

func TestResampleAlignsRaster(t *testing.T) {
	img := createTestImage(6, 4)
	seg := NewSegmentation(3, 2)
	seg.Set(0, 0, 0) // face, top-left quadrant

	part, err := NewWithConfig(Config{Resample: true}).ExtractPart(img, seg, body.Head)
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			opaque := part.NRGBAAt(x, y).A == 0xff
			assert.Equal(t, x < 2 && y < 2, opaque, "pixel (%d,%d)", x, y)
		}
	}
}

func TestInvalidSegmentation(t *testing.T) {
	img := createTestImage(6, 4)

	seg := NewSegmentation(6, 4)
	seg.Data[3] = 24
	_, err := New().ExtractPart(img, seg, body.Head)
	assert.Error(t, err)

	short := &Segmentation{Width: 6, Height: 4, Data: make([]int, 5)}
	_, err = New().ExtractPart(img, short, body.Head)
	assert.Error(t, err)

	_, err = New().ExtractPart(img, nil, body.Head)
	assert.Error(t, err)

	_, err = New().ExtractPart(img, NewSegmentation(6, 4), "tail")
	assert.Error(t, err)
}

func TestExtractAllReportsProgress(t *testing.T) {
	var done int32
	_, err := NewWithConfig(Config{Workers: 3}).ExtractAll(createTestImage(6, 4), oneLabelPerPixel(), func(body.PartGroupID) {
		atomic.AddInt32(&done, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(len(body.Groups())), done)
}

func TestSegmentationImageRoundTrip(t *testing.T) {
	seg := oneLabelPerPixel()
	back, err := SegmentationFromImage(seg.ToImage())
	require.NoError(t, err)
	assert.Equal(t, seg, back)

	bad := image.NewGray(image.Rect(0, 0, 2, 2))
	bad.SetGray(0, 0, color.Gray{Y: 200})
	_, err = SegmentationFromImage(bad)
	assert.Error(t, err)
}

func BenchmarkExtractAll(b *testing.B) {
	img := createTestImage(640, 480)
	seg := NewSegmentation(640, 480)
	for i := range seg.Data {
		seg.Data[i] = i % body.RawLabelCount
	}
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.ExtractAll(img, seg, nil)
	}
}
