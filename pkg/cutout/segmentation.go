package cutout

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/wrathskeller/rigger/pkg/body"
)

// Background marks a pixel with no person in it
const Background = -1

// Segmentation is a per-pixel part raster: each cell holds Background or a
// raw part label ID. Data is row-major.
type Segmentation struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Data   []int `json:"data"`
}

// NewSegmentation returns an all-background raster
func NewSegmentation(width, height int) *Segmentation {
	data := make([]int, width*height)
	for i := range data {
		data[i] = Background
	}
	return &Segmentation{Width: width, Height: height, Data: data}
}

// Validate checks the raster size and that every cell is Background or a
// known raw label
func (s *Segmentation) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid segmentation dimensions %dx%d", s.Width, s.Height)
	}
	if len(s.Data) != s.Width*s.Height {
		return fmt.Errorf("segmentation has %d cells, want %dx%d", len(s.Data), s.Width, s.Height)
	}
	for i, v := range s.Data {
		if v == Background {
			continue
		}
		if _, ok := body.GroupOf(v); !ok {
			return fmt.Errorf("segmentation cell (%d,%d) has unknown label %d", i%s.Width, i/s.Width, v)
		}
	}
	return nil
}

// Size returns the raster dimensions
func (s *Segmentation) Size() image.Point {
	return image.Pt(s.Width, s.Height)
}

// At returns the label at (x, y), or Background outside the raster
func (s *Segmentation) At(x, y int) int {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return Background
	}
	return s.Data[y*s.Width+x]
}

// Set stores a label at (x, y)
func (s *Segmentation) Set(x, y, label int) {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return
	}
	s.Data[y*s.Width+x] = label
}

// ToImage encodes the raster as 8-bit gray where 0 is background and
// label n is n+1
func (s *Segmentation) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(s.Data[y*s.Width+x] + 1)})
		}
	}
	return img
}

// SegmentationFromImage decodes a raster written by ToImage. Colour
// images are read through their gray value.
func SegmentationFromImage(img image.Image) (*Segmentation, error) {
	b := img.Bounds()
	s := &Segmentation{Width: b.Dx(), Height: b.Dy(), Data: make([]int, b.Dx()*b.Dy())}
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			s.Data[y*s.Width+x] = int(g.Y) - 1
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Resize resamples the raster to width x height with nearest-neighbour
// sampling, so no new labels are invented at part boundaries
func (s *Segmentation) Resize(width, height int) *Segmentation {
	if width == s.Width && height == s.Height {
		out := &Segmentation{Width: s.Width, Height: s.Height, Data: append([]int(nil), s.Data...)}
		return out
	}
	resized := imaging.Resize(s.ToImage(), width, height, imaging.NearestNeighbor)
	out := &Segmentation{Width: width, Height: height, Data: make([]int, width*height)}
	for y := 0; y < height; y++ {
		row := y * resized.Stride
		for x := 0; x < width; x++ {
			out.Data[y*width+x] = int(resized.Pix[row+x*4]) - 1
		}
	}
	return out
}
