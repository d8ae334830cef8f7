package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/cutout"
	"github.com/wrathskeller/rigger/pkg/spine"
)

// GroupColors returns a stable, evenly spaced hue per part group
func GroupColors() map[body.PartGroupID]color.NRGBA {
	groups := body.Groups()
	out := make(map[body.PartGroupID]color.NRGBA, len(groups))
	for i, g := range groups {
		c := colorful.Hcl(360*float64(i)/float64(len(groups)), 0.7, 0.65).Clamped()
		r, gr, b := c.RGB255()
		out[g] = color.NRGBA{R: r, G: gr, B: b, A: 255}
	}
	return out
}

// CreatePoseOverlay draws the pose on a copy of img: the segmentation, if
// given, as a translucent tint per part group, each part's bone as a line
// from its anchor, and a dot per usable keypoint
func (p *Processor) CreatePoseOverlay(img image.Image, pose body.Pose, seg *cutout.Segmentation, synth *spine.Synthesizer) image.Image {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	colors := GroupColors()

	stroke := math.Max(2, 0.004*float64(minInt(w, h)))
	dot := math.Max(3, 0.008*float64(minInt(w, h)))
	pen := newPen(nrgba)

	if seg != nil && seg.Width == w && seg.Height == h {
		for _, g := range body.Groups() {
			mask, err := cutout.Mask(seg, g)
			if err != nil {
				continue
			}
			tint := colors[g]
			tint.A = 96
			draw.DrawMask(nrgba, nrgba.Bounds(), image.NewUniform(tint), image.Point{}, mask, image.Point{}, draw.Over)
		}
	}

	if synth != nil {
		for _, g := range body.Groups() {
			// zero reference width keeps bones in image pixels
			gb, err := synth.GlobalPose(g, pose, 0)
			if err != nil {
				continue
			}
			rad := gb.Rotation * math.Pi / 180
			x1 := gb.X + gb.Length*math.Cos(rad)
			y1 := gb.Y - gb.Length*math.Sin(rad)
			pen.line(gb.X, gb.Y, x1, y1, colors[g], stroke)
		}
	}

	white := color.NRGBA{255, 255, 255, 255}
	threshold := spine.DefaultConfig().ConfidenceThreshold
	if synth != nil {
		threshold = synth.Config().ConfidenceThreshold
	}
	for _, kp := range pose.Keypoints {
		if !kp.Usable(threshold) {
			continue
		}
		// pixel (x, y) covers [x, x+1), so centre the dot on the pixel
		pen.dot(math.Floor(kp.X)+0.5, math.Floor(kp.Y)+0.5, dot, white)
	}

	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// circleK places cubic control points so four arcs approximate a circle
const circleK = 0.5522847498

// pen fills anti-aliased shapes onto dst, one shape per fill
type pen struct {
	dst *image.NRGBA
	r   *vector.Rasterizer
}

func newPen(dst *image.NRGBA) *pen {
	b := dst.Bounds()
	return &pen{dst: dst, r: vector.NewRasterizer(b.Dx(), b.Dy())}
}

func (p *pen) fill(c color.NRGBA) {
	b := p.dst.Bounds()
	p.r.Draw(p.dst, b, image.NewUniform(c), image.Point{})
	p.r.Reset(b.Dx(), b.Dy())
}

// line fills the stroke-wide quad around the segment; zero-length
// segments draw nothing
func (p *pen) line(x0, y0, x1, y1 float64, c color.NRGBA, stroke float64) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*stroke/2, dx/l*stroke/2

	p.r.MoveTo(float32(x0+nx), float32(y0+ny))
	p.r.LineTo(float32(x1+nx), float32(y1+ny))
	p.r.LineTo(float32(x1-nx), float32(y1-ny))
	p.r.LineTo(float32(x0-nx), float32(y0-ny))
	p.r.ClosePath()
	p.fill(c)
}

// dot fills a circle of radius r centred on (cx, cy)
func (p *pen) dot(cx, cy, r float64, c color.NRGBA) {
	k := circleK * r
	f := func(v float64) float32 { return float32(v) }

	p.r.MoveTo(f(cx+r), f(cy))
	p.r.CubeTo(f(cx+r), f(cy+k), f(cx+k), f(cy+r), f(cx), f(cy+r))
	p.r.CubeTo(f(cx-k), f(cy+r), f(cx-r), f(cy+k), f(cx-r), f(cy))
	p.r.CubeTo(f(cx-r), f(cy-k), f(cx-k), f(cy-r), f(cx), f(cy-r))
	p.r.CubeTo(f(cx+k), f(cy-r), f(cx+r), f(cy-k), f(cx+r), f(cy))
	p.r.ClosePath()
	p.fill(c)
}
