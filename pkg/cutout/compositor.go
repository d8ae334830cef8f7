// Package cutout isolates each body part group of a segmented photo into
// its own transparent image.
package cutout

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/wrathskeller/rigger/pkg/body"
)

// ResolutionMismatchError reports a segmentation raster that does not line
// up with the source image
type ResolutionMismatchError struct {
	Image        image.Point
	Segmentation image.Point
}

func (e *ResolutionMismatchError) Error() string {
	return fmt.Sprintf("resolution mismatch: image is %dx%d, segmentation is %dx%d",
		e.Image.X, e.Image.Y, e.Segmentation.X, e.Segmentation.Y)
}

// Config holds configuration for cutout extraction
type Config struct {
	// Resample aligns a mismatched segmentation raster to the image instead
	// of failing with *ResolutionMismatchError
	Resample bool
	// Workers bounds parallel extraction in ExtractAll; 0 means one
	// goroutine per part group
	Workers int
}

// Compositor extracts part cutouts. It is safe for concurrent use.
type Compositor struct {
	config Config
}

// New creates a Compositor with default configuration
func New() *Compositor {
	return &Compositor{}
}

// NewWithConfig creates a Compositor with custom configuration
func NewWithConfig(config Config) *Compositor {
	return &Compositor{config: config}
}

// Mask returns an opaque-where-present mask of the group's raw labels
func Mask(seg *Segmentation, group body.PartGroupID) (*image.Alpha, error) {
	labels := body.RawLabels(group)
	if len(labels) == 0 {
		return nil, fmt.Errorf("unknown part group %q", group)
	}
	var member [body.RawLabelCount]bool
	for _, id := range labels {
		member[id] = true
	}

	mask := image.NewAlpha(image.Rect(0, 0, seg.Width, seg.Height))
	for i, v := range seg.Data {
		if v >= 0 && v < body.RawLabelCount && member[v] {
			mask.Pix[(i/seg.Width)*mask.Stride+i%seg.Width] = 0xff
		}
	}
	return mask, nil
}

// ExtractPart returns a fresh image the size of img in which the group's
// pixels keep their source colour at full opacity and everything else is
// transparent
func (c *Compositor) ExtractPart(img image.Image, seg *Segmentation, group body.PartGroupID) (*image.NRGBA, error) {
	seg, err := c.align(img, seg)
	if err != nil {
		return nil, err
	}
	return extract(imaging.Clone(img), seg, group)
}

// ExtractAll extracts every part group in parallel. onDone, when not nil,
// is called once per finished group from the worker goroutine.
func (c *Compositor) ExtractAll(img image.Image, seg *Segmentation, onDone func(body.PartGroupID)) (map[body.PartGroupID]*image.NRGBA, error) {
	seg, err := c.align(img, seg)
	if err != nil {
		return nil, err
	}
	src := imaging.Clone(img)
	groups := body.Groups()

	workers := c.config.Workers
	if workers <= 0 || workers > len(groups) {
		workers = len(groups)
	}
	sem := make(chan struct{}, workers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	out := make(map[body.PartGroupID]*image.NRGBA, len(groups))
	for _, g := range groups {
		wg.Add(1)
		go func(g body.PartGroupID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			part, err := extract(src, seg, g)
			mu.Lock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to extract %s: %w", g, err)
				}
			} else {
				out[g] = part
			}
			mu.Unlock()
			if err == nil && onDone != nil {
				onDone(g)
			}
		}(g)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// align checks the raster against the image and resamples it when allowed
func (c *Compositor) align(img image.Image, seg *Segmentation) (*Segmentation, error) {
	if seg == nil {
		return nil, fmt.Errorf("segmentation is nil")
	}
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	size := img.Bounds().Size()
	if size == seg.Size() {
		return seg, nil
	}
	if !c.config.Resample {
		return nil, &ResolutionMismatchError{Image: size, Segmentation: seg.Size()}
	}
	return seg.Resize(size.X, size.Y), nil
}

// extract composites src through the group's mask. src is only read.
func extract(src *image.NRGBA, seg *Segmentation, group body.PartGroupID) (*image.NRGBA, error) {
	mask, err := Mask(seg, group)
	if err != nil {
		return nil, err
	}
	w, h := seg.Width, seg.Height
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		mrow := y * mask.Stride
		srow := y * src.Stride
		drow := y * dst.Stride
		for x := 0; x < w; x++ {
			if mask.Pix[mrow+x] == 0 {
				continue
			}
			i, j := srow+x*4, drow+x*4
			dst.Pix[j+0] = src.Pix[i+0]
			dst.Pix[j+1] = src.Pix[i+1]
			dst.Pix[j+2] = src.Pix[i+2]
			dst.Pix[j+3] = 0xff
		}
	}
	return dst, nil
}
