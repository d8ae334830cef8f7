// Package source reads pose and segmentation model outputs that were saved
// to disk, so the pipeline can run without a live model.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/cutout"
	"github.com/wrathskeller/rigger/pkg/types"
)

// PoseFile is a PoseEstimator backed by a BlazePose style JSON file
type PoseFile struct {
	Path string
}

// NewPoseFile creates a file-backed pose estimator
func NewPoseFile(path string) *PoseFile {
	return &PoseFile{Path: path}
}

// EstimatePose ignores the image content and returns the pose stored in
// the file, scaled to img when the file holds normalized coordinates
func (p *PoseFile) EstimatePose(ctx context.Context, img image.Image) (body.Pose, error) {
	if err := ctx.Err(); err != nil {
		return body.Pose{}, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return body.Pose{}, fmt.Errorf("failed to read pose file: %w", err)
	}
	result, err := DecodePose(data)
	if err != nil {
		return body.Pose{}, fmt.Errorf("%s: %w", p.Path, err)
	}
	b := img.Bounds()
	pose, err := result.ToPose(b.Dx(), b.Dy())
	if err != nil {
		return body.Pose{}, fmt.Errorf("%s: %w", p.Path, err)
	}
	return pose, nil
}

// DecodePose parses either a single pose object or an array of poses, in
// which case the first pose is used
func DecodePose(data []byte) (*types.PoseResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pose data")
	}

	if data[0] == '[' {
		var poses []types.PoseResult
		if err := json.Unmarshal(data, &poses); err != nil {
			return nil, fmt.Errorf("failed to parse pose list: %w", err)
		}
		if len(poses) == 0 {
			return nil, fmt.Errorf("no person detected")
		}
		return &poses[0], nil
	}

	var pose types.PoseResult
	if err := json.Unmarshal(data, &pose); err != nil {
		return nil, fmt.Errorf("failed to parse pose: %w", err)
	}
	return &pose, nil
}

// SegmentationFile is a Segmenter backed by a BodyPix JSON file or an
// 8-bit label image
type SegmentationFile struct {
	Path string
}

// NewSegmentationFile creates a file-backed segmenter
func NewSegmentationFile(path string) *SegmentationFile {
	return &SegmentationFile{Path: path}
}

// Segment ignores the image content and returns the stored raster
func (s *SegmentationFile) Segment(ctx context.Context, img image.Image) (*cutout.Segmentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seg, err := LoadSegmentation(s.Path)
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// LoadSegmentation reads a raster from .json or from any image format
// imaging can decode
func LoadSegmentation(path string) (*cutout.Segmentation, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read segmentation file: %w", err)
		}
		seg, err := DecodeSegmentation(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return seg, nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segmentation image: %w", err)
	}
	seg, err := cutout.SegmentationFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seg, nil
}

// DecodeSegmentation parses a {width, height, data} raster
func DecodeSegmentation(data []byte) (*cutout.Segmentation, error) {
	var raw types.SegmentationResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse segmentation: %w", err)
	}
	seg := &cutout.Segmentation{Width: raw.Width, Height: raw.Height, Data: raw.Data}
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	return seg, nil
}
