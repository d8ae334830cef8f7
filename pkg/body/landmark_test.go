package body

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPose() Pose {
	kps := make([]Keypoint, LandmarkCount)
	for i := range kps {
		kps[i] = Keypoint{X: float64(i), Y: float64(2 * i), Landmark: Landmark(i)}
	}
	return Pose{Keypoints: kps}
}

func TestLandmarkNames(t *testing.T) {
	assert.Equal(t, "nose", Nose.String())
	assert.Equal(t, "right_foot_index", RightFootIndex.String())
	assert.Equal(t, LandmarkCount-1, int(RightFootIndex))

	for _, l := range Landmarks() {
		parsed, err := ParseLandmark(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	_, err := ParseLandmark("tail")
	assert.Error(t, err)
	assert.False(t, Landmark(33).Valid())
	assert.Equal(t, "landmark(40)", Landmark(40).String())
}

func TestPoseValidate(t *testing.T) {
	require.NoError(t, testPose().Validate())

	short := testPose()
	short.Keypoints = short.Keypoints[:32]
	assert.Error(t, short.Validate())

	swapped := testPose()
	swapped.Keypoints[11], swapped.Keypoints[12] = swapped.Keypoints[12], swapped.Keypoints[11]
	assert.Error(t, swapped.Validate())

	_, err := NewPose(swapped.Keypoints)
	assert.Error(t, err)
}

func TestKeypointUsable(t *testing.T) {
	kp := Keypoint{X: 1, Y: 2}
	assert.True(t, kp.Usable(0.9), "unscored keypoints are trusted")

	kp.Confidence = Score(0.4)
	assert.False(t, kp.Usable(0.5))
	assert.True(t, kp.Usable(0.4))

	assert.False(t, Keypoint{X: math.NaN(), Y: 0}.Usable(0))
	assert.False(t, Keypoint{X: 0, Y: math.Inf(1)}.Usable(0))
}

func TestPoseKeypointLookup(t *testing.T) {
	p := testPose()
	kp, ok := p.Keypoint(LeftHip)
	require.True(t, ok)
	assert.Equal(t, float64(LeftHip), kp.X)

	_, ok = Pose{}.Keypoint(Nose)
	assert.False(t, ok)
}
