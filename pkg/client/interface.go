package client

import (
	"context"
	"image"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/cutout"
	"github.com/wrathskeller/rigger/pkg/types"
)

// PoseEstimator produces the 33 keypoints of the person in a photo
type PoseEstimator interface {
	EstimatePose(ctx context.Context, img image.Image) (body.Pose, error)
}

// Segmenter produces a per-pixel part segmentation of a photo
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*cutout.Segmentation, error)
}

// VisionClient talks to a multimodal model that can answer with pose JSON
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectPose(ctx context.Context, model, prompt, imgB64 string) (*types.PoseResult, error)
}

// PoseEstimatorFunc adapts a function to PoseEstimator
type PoseEstimatorFunc func(ctx context.Context, img image.Image) (body.Pose, error)

func (f PoseEstimatorFunc) EstimatePose(ctx context.Context, img image.Image) (body.Pose, error) {
	return f(ctx, img)
}

// SegmenterFunc adapts a function to Segmenter
type SegmenterFunc func(ctx context.Context, img image.Image) (*cutout.Segmentation, error)

func (f SegmenterFunc) Segment(ctx context.Context, img image.Image) (*cutout.Segmentation, error) {
	return f(ctx, img)
}
