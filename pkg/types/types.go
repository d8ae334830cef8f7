package types

import (
	"fmt"

	"github.com/wrathskeller/rigger/pkg/body"
)

// Point is a keypoint as returned by a pose model. Coordinates are either
// normalized to [0,1] or in pixels, depending on the producer.
type Point struct {
	Name  string   `json:"name,omitempty"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Score *float64 `json:"score,omitempty"`
}

// PoseResult is the JSON body a pose model answers with
type PoseResult struct {
	Keypoints []Point `json:"keypoints"`
	// Normalized is true when X and Y are fractions of the image size
	Normalized bool `json:"normalized,omitempty"`
}

// SegmentationResult is a BodyPix style part segmentation: one label per
// pixel, row-major, -1 for background
type SegmentationResult struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Data   []int `json:"data"`
}

// EncodeConfig defines how cutout images are written
type EncodeConfig struct {
	Format   string
	Quality  int
	Lossless bool
}

// Extension returns the file extension for the configured format
func (c EncodeConfig) Extension() string {
	if c.Format == "webp" {
		return ".webp"
	}
	return ".png"
}

// ToPose converts the model keypoints to a pose in pixel space. Normalized
// coordinates are scaled by width and height. Names, when present, must
// follow the fixed landmark order.
func (r PoseResult) ToPose(width, height int) (body.Pose, error) {
	if len(r.Keypoints) != body.LandmarkCount {
		return body.Pose{}, fmt.Errorf("got %d keypoints, want %d", len(r.Keypoints), body.LandmarkCount)
	}
	sx, sy := 1.0, 1.0
	if r.Normalized {
		if width <= 0 || height <= 0 {
			return body.Pose{}, fmt.Errorf("invalid image size %dx%d for normalized keypoints", width, height)
		}
		sx, sy = float64(width), float64(height)
	}

	kps := make([]body.Keypoint, len(r.Keypoints))
	for i, p := range r.Keypoints {
		l := body.Landmark(i)
		if p.Name != "" && p.Name != l.String() {
			return body.Pose{}, fmt.Errorf("keypoint %d is %q, want %q", i, p.Name, l)
		}
		kps[i] = body.Keypoint{X: p.X * sx, Y: p.Y * sy, Landmark: l, Confidence: p.Score}
	}
	return body.NewPose(kps)
}
