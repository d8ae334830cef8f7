package body

import (
	"fmt"
	"math"
)

// Landmark identifies one skeletal joint reported by the pose model.
// The numeric value is the keypoint's index in the pose model output.
type Landmark int

// The 33 BlazePose landmarks, in model output order
const (
	Nose Landmark = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
)

// LandmarkCount is the exact number of keypoints a pose must carry
const LandmarkCount = 33

var landmarkNames = [LandmarkCount]string{
	"nose",
	"left_eye_inner",
	"left_eye",
	"left_eye_outer",
	"right_eye_inner",
	"right_eye",
	"right_eye_outer",
	"left_ear",
	"right_ear",
	"mouth_left",
	"mouth_right",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_pinky",
	"right_pinky",
	"left_index",
	"right_index",
	"left_thumb",
	"right_thumb",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
	"left_heel",
	"right_heel",
	"left_foot_index",
	"right_foot_index",
}

// String returns the pose model's name for the landmark
func (l Landmark) String() string {
	if !l.Valid() {
		return fmt.Sprintf("landmark(%d)", int(l))
	}
	return landmarkNames[l]
}

// Valid reports whether l is one of the 33 known landmarks
func (l Landmark) Valid() bool {
	return l >= 0 && int(l) < LandmarkCount
}

// ParseLandmark resolves a pose model landmark name
func ParseLandmark(name string) (Landmark, error) {
	for i, n := range landmarkNames {
		if n == name {
			return Landmark(i), nil
		}
	}
	return 0, fmt.Errorf("unknown landmark %q", name)
}

// Landmarks returns all landmarks in model output order
func Landmarks() []Landmark {
	out := make([]Landmark, LandmarkCount)
	for i := range out {
		out[i] = Landmark(i)
	}
	return out
}

// Keypoint is one detected joint in source-image pixel space.
// Confidence is nil when the model did not report a score.
type Keypoint struct {
	X          float64
	Y          float64
	Landmark   Landmark
	Confidence *float64
}

// Usable reports whether the keypoint has finite coordinates and meets the
// confidence threshold. A keypoint without a score is trusted.
func (k Keypoint) Usable(threshold float64) bool {
	if math.IsNaN(k.X) || math.IsNaN(k.Y) || math.IsInf(k.X, 0) || math.IsInf(k.Y, 0) {
		return false
	}
	if k.Confidence == nil {
		return true
	}
	return *k.Confidence >= threshold
}

// Score returns a pointer to c, for building keypoints inline
func Score(c float64) *float64 {
	return &c
}

// Pose is a single person's keypoints, indexed by Landmark
type Pose struct {
	Keypoints []Keypoint
}

// NewPose validates the keypoint count and order and wraps them in a Pose
func NewPose(keypoints []Keypoint) (Pose, error) {
	p := Pose{Keypoints: keypoints}
	if err := p.Validate(); err != nil {
		return Pose{}, err
	}
	return p, nil
}

// Validate checks the index contract between the pose model and Landmark:
// exactly 33 keypoints, each carrying the landmark of its position.
func (p Pose) Validate() error {
	if len(p.Keypoints) != LandmarkCount {
		return fmt.Errorf("pose has %d keypoints, want %d", len(p.Keypoints), LandmarkCount)
	}
	for i, kp := range p.Keypoints {
		if kp.Landmark != Landmark(i) {
			return fmt.Errorf("keypoint %d is %s, want %s", i, kp.Landmark, Landmark(i))
		}
	}
	return nil
}

// Keypoint returns the keypoint for l. ok is false when the pose is shorter
// than the landmark index.
func (p Pose) Keypoint(l Landmark) (Keypoint, bool) {
	if !l.Valid() || int(l) >= len(p.Keypoints) {
		return Keypoint{}, false
	}
	return p.Keypoints[l], true
}
