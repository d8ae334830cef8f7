// Package rigger turns a single photo of a person into a rigged 2D character:
// a Spine skeleton derived from pose keypoints plus one transparent cutout
// image per body part, taken from a body-part segmentation.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/wrathskeller/rigger"
//		"github.com/wrathskeller/rigger/pkg/bundle"
//		"github.com/wrathskeller/rigger/pkg/source"
//		"github.com/wrathskeller/rigger/pkg/types"
//	)
//
//	func main() {
//		r, err := rigger.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		img, err := r.LoadImage("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		character, err := r.Rig(context.Background(), img,
//			source.NewPoseFile("pose.json"),
//			source.NewSegmentationFile("segmentation.json"),
//			nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		w := bundle.NewWriter(types.EncodeConfig{Format: "png"})
//		if err := w.SaveArchive("character.zip", character.Bundle()); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these main components:
//
// 1. Body (pkg/body): landmarks, part groups and the part hierarchy
// 2. Geometry (pkg/geometry): planar helpers and parent-local transforms
// 3. Spine (pkg/spine): bone synthesis and the skeleton document
// 4. Cutout (pkg/cutout): per-part transparent images from a segmentation
// 5. Bundle (pkg/bundle): skeleton.json plus cutouts in one archive
//
// Pose estimation and segmentation are supplied by the caller through the
// client.PoseEstimator and client.Segmenter interfaces. pkg/source reads
// saved model outputs; pkg/detection asks a vision model served by ollama.
package rigger

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/wrathskeller/rigger/pkg/analyzer"
	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/bundle"
	"github.com/wrathskeller/rigger/pkg/client"
	"github.com/wrathskeller/rigger/pkg/cutout"
	"github.com/wrathskeller/rigger/pkg/spine"
)

// Version of the rigger library
const Version = "1.0.0"

// Inference stages reported by InferenceError
const (
	StagePose         = "pose"
	StageSegmentation = "segmentation"
)

// InferenceError reports a failed or timed out model call
type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Config groups the settings of every pipeline stage
type Config struct {
	Analyzer  analyzer.Config
	Synthesis spine.Config
	Cutout    cutout.Config
	// Timeout bounds pose estimation and segmentation together; 0 means
	// the caller's context alone decides
	Timeout time.Duration
}

// DefaultConfig returns the settings used by New
func DefaultConfig() Config {
	return Config{
		Analyzer: analyzer.Config{
			SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
			MinImageSize:     64,
			MaxImageSize:     8192,
		},
		Synthesis: spine.DefaultConfig(),
		Timeout:   2 * time.Minute,
	}
}

// Rigger provides a high-level interface for rigging characters from photos
type Rigger struct {
	analyzer    *analyzer.InputAnalyzer
	synthesizer *spine.Synthesizer
	compositor  *cutout.Compositor
	timeout     time.Duration
}

// New creates a new Rigger with default configuration
func New() (*Rigger, error) {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Rigger with custom configuration. It fails
// with *body.ConfigurationError if the built-in part taxonomy is broken.
func NewWithConfig(config Config) (*Rigger, error) {
	if err := body.ValidateTaxonomy(); err != nil {
		return nil, err
	}
	if len(config.Analyzer.SupportedFormats) == 0 {
		config.Analyzer.SupportedFormats = DefaultConfig().Analyzer.SupportedFormats
	}
	synth := spine.NewWithConfig(config.Synthesis)
	if err := synth.Config().Validate(); err != nil {
		return nil, fmt.Errorf("invalid synthesis config: %w", err)
	}

	return &Rigger{
		analyzer:    analyzer.NewWithConfig(config.Analyzer),
		synthesizer: synth,
		compositor:  cutout.NewWithConfig(config.Cutout),
		timeout:     config.Timeout,
	}, nil
}

// Character is a rigged character: its skeleton and part cutouts
type Character struct {
	Info         analyzer.ImageInfo
	Pose         body.Pose
	Segmentation *cutout.Segmentation
	Skeleton     *spine.Document
	Parts        map[body.PartGroupID]*image.NRGBA
	// Failures lists parts whose landmarks were missing under a
	// non-aborting policy
	Failures []*spine.InsufficientLandmarksError
	Omitted  []body.PartGroupID
}

// Bundle returns the character in the form written by pkg/bundle
func (c *Character) Bundle() *bundle.Character {
	return &bundle.Character{Skeleton: c.Skeleton, Parts: c.Parts}
}

// LoadImage loads a photo from file
func (r *Rigger) LoadImage(filepath string) (image.Image, error) {
	return r.analyzer.LoadImage(filepath)
}

// LoadImageFromReader loads a photo from an io.Reader
func (r *Rigger) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	return r.analyzer.LoadImageFromReader(reader)
}

// Synthesizer returns the skeleton synthesizer in use
func (r *Rigger) Synthesizer() *spine.Synthesizer {
	return r.synthesizer
}

// Synthesize builds the skeleton for a width x height photo
func (r *Rigger) Synthesize(width, height int, pose body.Pose) (*spine.Result, error) {
	return r.synthesizer.Build(width, height, pose)
}

// ExtractCutouts extracts one transparent image per part group. onDone,
// when not nil, is called as each group finishes.
func (r *Rigger) ExtractCutouts(img image.Image, seg *cutout.Segmentation, onDone func(body.PartGroupID)) (map[body.PartGroupID]*image.NRGBA, error) {
	return r.compositor.ExtractAll(img, seg, onDone)
}

// Assemble builds a character from model outputs that are already known
func (r *Rigger) Assemble(img image.Image, pose body.Pose, seg *cutout.Segmentation, onPart func(body.PartGroupID)) (*Character, error) {
	info := r.analyzer.GetImageInfo(img)

	res, err := r.Synthesize(info.Width, info.Height, pose)
	if err != nil {
		return nil, fmt.Errorf("skeleton synthesis failed: %w", err)
	}

	parts, err := r.ExtractCutouts(img, seg, onPart)
	if err != nil {
		return nil, fmt.Errorf("cutout extraction failed: %w", err)
	}
	for _, g := range res.Omitted {
		delete(parts, g)
	}

	return &Character{
		Info:         info,
		Pose:         pose,
		Segmentation: seg,
		Skeleton:     res.Document,
		Parts:        parts,
		Failures:     res.Failures,
		Omitted:      res.Omitted,
	}, nil
}

// Rig runs pose estimation and segmentation concurrently, waits for both,
// then synthesizes the skeleton and extracts the cutouts
func (r *Rigger) Rig(ctx context.Context, img image.Image, poses client.PoseEstimator, segmenter client.Segmenter, onPart func(body.PartGroupID)) (*Character, error) {
	if err := r.analyzer.ValidateImage(img); err != nil {
		return nil, fmt.Errorf("image validation failed: %w", err)
	}

	pose, seg, err := r.infer(ctx, img, poses, segmenter)
	if err != nil {
		return nil, err
	}
	return r.Assemble(img, pose, seg, onPart)
}

// infer is the join point: both model calls must finish before synthesis
func (r *Rigger) infer(ctx context.Context, img image.Image, poses client.PoseEstimator, segmenter client.Segmenter) (body.Pose, *cutout.Segmentation, error) {
	if poses == nil || segmenter == nil {
		return body.Pose{}, nil, fmt.Errorf("pose estimator and segmenter are required")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		wg              sync.WaitGroup
		pose            body.Pose
		seg             *cutout.Segmentation
		poseErr, segErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pose, poseErr = await(ctx, func(ctx context.Context) (body.Pose, error) {
			return poses.EstimatePose(ctx, img)
		})
	}()
	go func() {
		defer wg.Done()
		seg, segErr = await(ctx, func(ctx context.Context) (*cutout.Segmentation, error) {
			return segmenter.Segment(ctx, img)
		})
	}()
	wg.Wait()

	var errs []error
	if poseErr != nil {
		errs = append(errs, &InferenceError{Stage: StagePose, Err: poseErr})
	}
	if segErr != nil {
		errs = append(errs, &InferenceError{Stage: StageSegmentation, Err: segErr})
	}
	if len(errs) > 0 {
		return body.Pose{}, nil, errors.Join(errs...)
	}
	return pose, seg, nil
}

// await returns when call does or when ctx is done, whichever comes first,
// so a model client that ignores its context cannot stall the join
func await[T any](ctx context.Context, call func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		ch <- result{v, err}
	}()

	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
