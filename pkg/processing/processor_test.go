package processing

import (
	"bytes"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/cutout"
	"github.com/wrathskeller/rigger/pkg/spine"
	"github.com/wrathskeller/rigger/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	return imaging.New(width, height, color.NRGBA{R: 40, G: 40, B: 40, A: 255})
}

func diagonalPose() body.Pose {
	kps := make([]body.Keypoint, body.LandmarkCount)
	for i := range kps {
		kps[i] = body.Keypoint{X: float64(20 + 4*i), Y: float64(10 + 5*i), Landmark: body.Landmark(i), Confidence: body.Score(1)}
	}
	return body.Pose{Keypoints: kps}
}

func TestEncodeImageFormats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(8, 6)

	for _, format := range []string{"png", "jpg", "webp", ""} {
		var buf bytes.Buffer
		require.NoError(t, p.EncodeImage(&buf, img, types.EncodeConfig{Format: format, Quality: 90}), format)

		decoded, err := p.decodeImageFromBytes(buf.Bytes())
		require.NoError(t, err, format)
		assert.Equal(t, image.Pt(8, 6), decoded.Bounds().Size(), format)
	}

	err := p.EncodeImage(&bytes.Buffer{}, img, types.EncodeConfig{Format: "bmp"})
	assert.Error(t, err)
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()

	for _, cfg := range []types.EncodeConfig{{Format: "png"}, {Format: "webp", Lossless: true}} {
		path := filepath.Join(dir, "part"+cfg.Extension())
		require.NoError(t, p.SaveImage(createTestImage(5, 7), path, cfg))

		img, err := p.LoadImageSmart(path)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(5, 7), img.Bounds().Size())
	}

	_, err := p.LoadImage(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestLoadImageFromURL(t *testing.T) {
	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, createTestImage(3, 4), imaging.PNG))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(png.Bytes())
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessor()
	img, err := p.LoadImageSmart(srv.URL + "/photo.png")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(3, 4), img.Bounds().Size())

	_, err = p.LoadImageFromURL(srv.URL + "/page")
	assert.Error(t, err)
	_, err = p.LoadImageFromURL(srv.URL + "/missing")
	assert.Error(t, err)
	_, err = p.LoadImageFromURL("ftp://example.com/a.png")
	assert.Error(t, err)
}

func TestGroupColorsAreDistinct(t *testing.T) {
	colors := GroupColors()
	require.Len(t, colors, len(body.Groups()))

	seen := map[color.NRGBA]body.PartGroupID{}
	for g, c := range colors {
		assert.Equal(t, uint8(255), c.A)
		if other, dup := seen[c]; dup {
			t.Errorf("%s and %s share colour %v", g, other, c)
		}
		seen[c] = g
	}
}

func TestCreatePoseOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 200)
	pose := diagonalPose()

	seg := cutout.NewSegmentation(200, 200)
	seg.Set(190, 5, 0) // face

	out := imaging.Clone(p.CreatePoseOverlay(img, pose, seg, spine.New()))

	nose, _ := pose.Keypoint(body.Nose)
	assertNear(t, color.NRGBA{255, 255, 255, 255}, out.NRGBAAt(int(nose.X), int(nose.Y)))
	assert.NotEqual(t, img.NRGBAAt(190, 5), out.NRGBAAt(190, 5), "face pixel should be tinted")
	assert.Equal(t, img.NRGBAAt(195, 195), out.NRGBAAt(195, 195))

	// the source stays untouched
	assert.Equal(t, color.NRGBA{R: 40, G: 40, B: 40, A: 255}, img.NRGBAAt(int(nose.X), int(nose.Y)))
}

func TestPenLine(t *testing.T) {
	img := createTestImage(40, 20)
	red := color.NRGBA{R: 255, A: 255}
	newPen(img).line(5, 10, 35, 10, red, 4)

	assertNear(t, red, img.NRGBAAt(20, 9))
	assertNear(t, red, img.NRGBAAt(20, 10))
	assert.Equal(t, createTestImage(1, 1).NRGBAAt(0, 0), img.NRGBAAt(20, 14), "outside the stroke")
	assert.Equal(t, createTestImage(1, 1).NRGBAAt(0, 0), img.NRGBAAt(38, 10), "past the end")
}

func TestPenLineZeroLength(t *testing.T) {
	img := createTestImage(10, 10)
	newPen(img).line(5, 5, 5, 5, color.NRGBA{R: 255, A: 255}, 4)
	assert.Equal(t, createTestImage(10, 10).Pix, img.Pix)
}

func TestPenDot(t *testing.T) {
	img := createTestImage(30, 30)
	blue := color.NRGBA{B: 255, A: 255}
	newPen(img).dot(15, 15, 5, blue)

	assertNear(t, blue, img.NRGBAAt(15, 15))
	assertNear(t, blue, img.NRGBAAt(12, 15))
	// the corner of the bounding square lies outside the circle
	assert.Equal(t, createTestImage(1, 1).NRGBAAt(0, 0), img.NRGBAAt(10, 10))
	assert.Equal(t, createTestImage(1, 1).NRGBAAt(0, 0), img.NRGBAAt(25, 25))
}

// assertNear allows anti-aliasing rounding of one step per channel
func assertNear(t *testing.T, want, got color.NRGBA) {
	t.Helper()
	for i, pair := range [][2]uint8{{want.R, got.R}, {want.G, got.G}, {want.B, got.B}, {want.A, got.A}} {
		d := int(pair[0]) - int(pair[1])
		assert.True(t, d >= -1 && d <= 1, "channel %d: want %v, got %v", i, want, got)
	}
}

func TestCreatePoseOverlayWithoutExtras(t *testing.T) {
	out := NewProcessor().CreatePoseOverlay(createTestImage(50, 50), body.Pose{}, nil, nil)
	assert.Equal(t, image.Pt(50, 50), out.Bounds().Size())
}
