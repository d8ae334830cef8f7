package spine

import (
	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/geometry"
)

// anchor picks the landmarks a part group's bone runs between. Each end is
// the mean of its landmarks. fallback replaces to when any of to is
// missing.
type anchor struct {
	from     []body.Landmark
	to       []body.Landmark
	fallback []body.Landmark
}

func limb(from, to body.Landmark) anchor {
	return anchor{from: []body.Landmark{from}, to: []body.Landmark{to}}
}

var anchors = map[body.PartGroupID]anchor{
	body.Torso: {
		from: []body.Landmark{body.LeftHip, body.RightHip},
		to:   []body.Landmark{body.LeftShoulder, body.RightShoulder},
	},
	body.Head: {
		from: []body.Landmark{body.LeftShoulder, body.RightShoulder},
		to:   []body.Landmark{body.Nose},
	},

	body.LeftUpperArm: limb(body.LeftShoulder, body.LeftElbow),
	body.LeftLowerArm: limb(body.LeftElbow, body.LeftWrist),
	body.LeftHand: {
		from:     []body.Landmark{body.LeftWrist},
		to:       []body.Landmark{body.LeftIndex},
		fallback: []body.Landmark{body.LeftThumb},
	},
	body.RightUpperArm: limb(body.RightShoulder, body.RightElbow),
	body.RightLowerArm: limb(body.RightElbow, body.RightWrist),
	body.RightHand: {
		from:     []body.Landmark{body.RightWrist},
		to:       []body.Landmark{body.RightIndex},
		fallback: []body.Landmark{body.RightThumb},
	},

	body.LeftUpperLeg:  limb(body.LeftHip, body.LeftKnee),
	body.LeftLowerLeg:  limb(body.LeftKnee, body.LeftAnkle),
	body.LeftFoot:      limb(body.LeftAnkle, body.LeftFootIndex),
	body.RightUpperLeg: limb(body.RightHip, body.RightKnee),
	body.RightLowerLeg: limb(body.RightKnee, body.RightAnkle),
	body.RightFoot:     limb(body.RightAnkle, body.RightFootIndex),
}

// resolver turns landmarks into recentered coordinates
type resolver struct {
	pose      body.Pose
	threshold float64
	offsetX   float64
}

// mean averages the landmarks, returning the ones that were unusable
func (r resolver) mean(ls []body.Landmark) (geometry.Coordinate, []body.Landmark) {
	var sum geometry.Coordinate
	var missing []body.Landmark
	for _, l := range ls {
		kp, ok := r.pose.Keypoint(l)
		if !ok || !kp.Usable(r.threshold) {
			missing = append(missing, l)
			continue
		}
		sum.X += kp.X - r.offsetX
		sum.Y += kp.Y
	}
	if len(missing) > 0 {
		return geometry.Coordinate{}, missing
	}
	n := float64(len(ls))
	return geometry.Coordinate{X: sum.X / n, Y: sum.Y / n}, nil
}

// ends resolves both ends of the anchor
func (a anchor) ends(r resolver) (from, to geometry.Coordinate, missing []body.Landmark) {
	from, missFrom := r.mean(a.from)
	to, missTo := r.mean(a.to)
	if len(missTo) > 0 && len(a.fallback) > 0 {
		if alt, missAlt := r.mean(a.fallback); len(missAlt) == 0 {
			to, missTo = alt, nil
		}
	}
	missing = append(missFrom, missTo...)
	return from, to, missing
}
