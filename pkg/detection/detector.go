package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/client"
	"github.com/wrathskeller/rigger/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for the 33 body landmarks. The landmark list is
// appended by Prompt.
const DefaultPrompt = `You are a human pose estimator.

Locate the single most prominent person and return JSON only:
{
  "normalized": true,
  "keypoints": [
    {"name": "nose", "x": 0.0, "y": 0.0, "score": 0.0}
  ]
}

HARD RULES
- Exactly 33 keypoints, in the order listed below, each with its name.
- x and y are normalized to [0,1] (NOT pixels); x grows right, y grows down.
- score is your confidence in [0,1]. Use 0 for joints you cannot see.
- JSON only. No markdown, no code fences, no comments, no trailing commas.

Landmark order:
`

// Prompt returns DefaultPrompt followed by the landmark names in model
// output order
func Prompt() string {
	var b strings.Builder
	b.WriteString(DefaultPrompt)
	for i, l := range body.Landmarks() {
		fmt.Fprintf(&b, "%d. %s\n", i, l)
	}
	return b.String()
}

// Config holds configuration for the pose detector
type Config struct {
	Model string
	// SendSize bounds the longer side of the image sent to the model
	SendSize    int
	SendQuality int
}

// PoseDetector estimates poses by asking a vision model for landmarks.
// It implements client.PoseEstimator.
type PoseDetector struct {
	client client.VisionClient
	config Config
	prompt string
}

// NewPoseDetector creates a new detector with a vision client
func NewPoseDetector(vc client.VisionClient, config Config) *PoseDetector {
	if config.SendSize <= 0 {
		config.SendSize = 1024
	}
	if config.SendQuality <= 0 {
		config.SendQuality = 90
	}
	return &PoseDetector{client: vc, config: config, prompt: Prompt()}
}

// EstimatePose sends a downscaled copy of img to the model and returns the
// landmarks scaled back to img's pixel space
func (d *PoseDetector) EstimatePose(ctx context.Context, img image.Image) (body.Pose, error) {
	imgB64, err := EncodeForModel(img, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return body.Pose{}, err
	}

	result, err := d.client.DetectPose(ctx, d.config.Model, d.prompt, imgB64)
	if err != nil {
		return body.Pose{}, err
	}

	b := img.Bounds()
	return Normalize(result, b.Dx(), b.Dy())
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *PoseDetector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := EncodeForModel(img, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imgB64)
}

// Normalize converts a model answer to a pose in width x height pixel
// space. Answers that forget the normalized flag are treated as normalized
// when nearly every coordinate lies inside [0,1] and none strays far out.
func Normalize(result *types.PoseResult, width, height int) (body.Pose, error) {
	if result == nil {
		return body.Pose{}, fmt.Errorf("no pose result")
	}
	r := *result
	if !r.Normalized && looksNormalized(r.Keypoints) {
		r.Normalized = true
	}
	r.Keypoints = make([]types.Point, len(result.Keypoints))
	for i, p := range result.Keypoints {
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if p.Score != nil {
			s := clamp(*p.Score, 0, 1)
			p.Score = &s
		}
		r.Keypoints[i] = p
	}
	return r.ToPose(width, height)
}

// EncodeForModel downscales img so its longer side is at most maxDim and
// returns it as base64 JPEG
func EncodeForModel(img image.Image, maxDim, quality int) (string, error) {
	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

const (
	// unitShare is the share of points that must lie inside [0,1]
	unitShare = 0.9
	// unitSlack is how far any point may overshoot [0,1]
	unitSlack = 0.5
)

func looksNormalized(points []types.Point) bool {
	if len(points) == 0 {
		return false
	}
	inside := 0
	for _, p := range points {
		if p.X < -unitSlack || p.X > 1+unitSlack || p.Y < -unitSlack || p.Y > 1+unitSlack {
			return false
		}
		if p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1 {
			inside++
		}
	}
	return float64(inside) >= unitShare*float64(len(points))
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
