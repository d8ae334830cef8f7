package rigger

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/client"
	"github.com/wrathskeller/rigger/pkg/cutout"
	"github.com/wrathskeller/rigger/pkg/spine"
)

var standing = map[body.Landmark][2]float64{
	body.Nose:           {120, 20},
	body.LeftEyeInner:   {116, 15},
	body.LeftEye:        {114, 15},
	body.LeftEyeOuter:   {112, 15},
	body.RightEyeInner:  {124, 15},
	body.RightEye:       {126, 15},
	body.RightEyeOuter:  {128, 15},
	body.LeftEar:        {108, 18},
	body.RightEar:       {132, 18},
	body.MouthLeft:      {116, 28},
	body.MouthRight:     {124, 28},
	body.LeftShoulder:   {100, 50},
	body.RightShoulder:  {140, 50},
	body.LeftElbow:      {90, 90},
	body.RightElbow:     {150, 90},
	body.LeftWrist:      {85, 130},
	body.RightWrist:     {155, 130},
	body.LeftPinky:      {80, 143},
	body.RightPinky:     {160, 143},
	body.LeftIndex:      {83, 145},
	body.RightIndex:     {157, 145},
	body.LeftThumb:      {88, 142},
	body.RightThumb:     {152, 142},
	body.LeftHip:        {105, 150},
	body.RightHip:       {135, 150},
	body.LeftKnee:       {103, 210},
	body.RightKnee:      {137, 210},
	body.LeftAnkle:      {102, 270},
	body.RightAnkle:     {138, 270},
	body.LeftHeel:       {100, 278},
	body.RightHeel:      {140, 278},
	body.LeftFootIndex:  {90, 282},
	body.RightFootIndex: {150, 282},
}

const testWidth, testHeight = 240, 300

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func standingPose() body.Pose {
	kps := make([]body.Keypoint, body.LandmarkCount)
	for _, l := range body.Landmarks() {
		xy := standing[l]
		kps[l] = body.Keypoint{X: xy[0], Y: xy[1], Landmark: l, Confidence: body.Score(0.9)}
	}
	return body.Pose{Keypoints: kps}
}

// stripes labels every row with one raw label, cycling through all 24
func stripes(width, height int) *cutout.Segmentation {
	seg := cutout.NewSegmentation(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			seg.Set(x, y, y%body.RawLabelCount)
		}
	}
	return seg
}

func poseOf(p body.Pose) client.PoseEstimator {
	return client.PoseEstimatorFunc(func(ctx context.Context, img image.Image) (body.Pose, error) {
		return p, nil
	})
}

func segOf(s *cutout.Segmentation) client.Segmenter {
	return client.SegmenterFunc(func(ctx context.Context, img image.Image) (*cutout.Segmentation, error) {
		return s, nil
	})
}

func TestNew(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.NotNil(t, r.analyzer)
	assert.NotNil(t, r.synthesizer)
	assert.NotNil(t, r.compositor)
	assert.Equal(t, Version, GetVersion())
}

func TestNewWithConfigRejectsBadSynthesis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Synthesis.ConfidenceThreshold = 2
	_, err := NewWithConfig(cfg)
	assert.Error(t, err)
}

func TestRig(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	var done int32
	c, err := r.Rig(context.Background(), createTestImage(testWidth, testHeight),
		poseOf(standingPose()), segOf(stripes(testWidth, testHeight)),
		func(body.PartGroupID) { atomic.AddInt32(&done, 1) })
	require.NoError(t, err)

	assert.Equal(t, testWidth, c.Info.Width)
	assert.Len(t, c.Skeleton.Bones, 1+len(body.Groups()))
	assert.Len(t, c.Skeleton.Slots, len(body.Groups()))
	assert.Len(t, c.Parts, len(body.Groups()))
	assert.Equal(t, int32(len(body.Groups())), done)
	assert.Empty(t, c.Failures)

	b := c.Bundle()
	assert.Same(t, c.Skeleton, b.Skeleton)
	for _, slot := range c.Skeleton.Slots {
		part, ok := b.Parts[body.PartGroupID(slot.Attachment)]
		require.True(t, ok, slot.Name)
		assert.Equal(t, image.Pt(testWidth, testHeight), part.Bounds().Size())
	}
}

func TestRigReportsInferenceStage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	img := createTestImage(testWidth, testHeight)

	poseFail := errors.New("no person")
	failingPose := client.PoseEstimatorFunc(func(context.Context, image.Image) (body.Pose, error) {
		return body.Pose{}, poseFail
	})
	_, err = r.Rig(context.Background(), img, failingPose, segOf(stripes(testWidth, testHeight)), nil)
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StagePose, ie.Stage)
	assert.ErrorIs(t, err, poseFail)

	segFail := errors.New("segmenter down")
	failingSeg := client.SegmenterFunc(func(context.Context, image.Image) (*cutout.Segmentation, error) {
		return nil, segFail
	})
	_, err = r.Rig(context.Background(), img, failingPose, failingSeg, nil)
	assert.ErrorIs(t, err, poseFail)
	assert.ErrorIs(t, err, segFail)
}

func TestRigTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	r, err := NewWithConfig(cfg)
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	stuck := client.SegmenterFunc(func(context.Context, image.Image) (*cutout.Segmentation, error) {
		<-release
		return nil, nil
	})

	start := time.Now()
	_, err = r.Rig(context.Background(), createTestImage(testWidth, testHeight), poseOf(standingPose()), stuck, nil)
	assert.Less(t, time.Since(start), 5*time.Second)

	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StageSegmentation, ie.Stage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRigAbortsOnMissingLandmarks(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	pose := standingPose()
	pose.Keypoints[body.LeftHip].Confidence = body.Score(0.1)

	_, err = r.Rig(context.Background(), createTestImage(testWidth, testHeight), poseOf(pose), segOf(stripes(testWidth, testHeight)), nil)
	var se *spine.SkeletonError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Groups(), body.Torso)
	assert.ErrorIs(t, err, spine.ErrInsufficientLandmarks)
}

func TestRigSkipDropsOmittedCutouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Synthesis.MissingPolicy = spine.PolicySkip
	r, err := NewWithConfig(cfg)
	require.NoError(t, err)

	pose := standingPose()
	pose.Keypoints[body.LeftWrist].Confidence = body.Score(0.1)

	c, err := r.Rig(context.Background(), createTestImage(testWidth, testHeight), poseOf(pose), segOf(stripes(testWidth, testHeight)), nil)
	require.NoError(t, err)
	require.NotEmpty(t, c.Omitted)
	for _, g := range c.Omitted {
		assert.NotContains(t, c.Parts, g)
	}
	assert.Len(t, c.Parts, len(c.Skeleton.Slots))
}

func TestRigResolutionMismatch(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	_, err = r.Rig(context.Background(), createTestImage(testWidth, testHeight), poseOf(standingPose()), segOf(stripes(120, 150)), nil)
	var rme *cutout.ResolutionMismatchError
	assert.ErrorAs(t, err, &rme)

	cfg := DefaultConfig()
	cfg.Cutout.Resample = true
	r, err = NewWithConfig(cfg)
	require.NoError(t, err)
	_, err = r.Rig(context.Background(), createTestImage(testWidth, testHeight), poseOf(standingPose()), segOf(stripes(120, 150)), nil)
	assert.NoError(t, err)
}

func TestRigValidatesInputs(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	_, err = r.Rig(context.Background(), createTestImage(10, 10), poseOf(standingPose()), segOf(stripes(10, 10)), nil)
	assert.Error(t, err)

	_, err = r.Rig(context.Background(), createTestImage(testWidth, testHeight), nil, segOf(stripes(testWidth, testHeight)), nil)
	assert.Error(t, err)
}
