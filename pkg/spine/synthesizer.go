package spine

import (
	"errors"
	"fmt"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/geometry"
)

// MissingPolicy decides what happens to a part whose landmarks are missing
type MissingPolicy string

const (
	// PolicyAbort fails the whole skeleton and reports every failed part
	PolicyAbort MissingPolicy = "abort"
	// PolicySkip drops the failed part and its whole subtree
	PolicySkip MissingPolicy = "skip"
	// PolicyZero keeps the part as a zero-length bone at its parent's anchor
	PolicyZero MissingPolicy = "zero"
)

// Config holds the parameters of skeleton synthesis
type Config struct {
	// ReferenceWidth is the frame width whose half is subtracted from every
	// keypoint x. Zero means the width passed to BuildSkeleton.
	ReferenceWidth      float64
	ConfidenceThreshold float64
	MissingPolicy       MissingPolicy
	HashMode            HashMode
	Version             string
}

// DefaultConfig returns the settings used by New
func DefaultConfig() Config {
	return Config{
		ReferenceWidth:      0,
		ConfidenceThreshold: 0.5,
		MissingPolicy:       PolicyAbort,
		HashMode:            HashContent,
		Version:             DefaultVersion,
	}
}

// Validate checks that the configuration can be used
func (c Config) Validate() error {
	if c.ReferenceWidth < 0 {
		return fmt.Errorf("reference width must not be negative")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	switch c.MissingPolicy {
	case PolicyAbort, PolicySkip, PolicyZero:
	default:
		return fmt.Errorf("unknown missing policy %q", c.MissingPolicy)
	}
	switch c.HashMode {
	case HashContent, HashRandom:
	default:
		return fmt.Errorf("unknown hash mode %q", c.HashMode)
	}
	return nil
}

// Synthesizer builds skeletons from poses. It holds no per-run state and
// is safe for concurrent use.
type Synthesizer struct {
	config Config
}

// New creates a Synthesizer with default configuration
func New() *Synthesizer {
	return &Synthesizer{config: DefaultConfig()}
}

// NewWithConfig creates a Synthesizer with custom configuration
func NewWithConfig(config Config) *Synthesizer {
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	if config.MissingPolicy == "" {
		config.MissingPolicy = PolicyAbort
	}
	if config.HashMode == "" {
		config.HashMode = HashContent
	}
	return &Synthesizer{config: config}
}

// Config returns the synthesizer's configuration
func (s *Synthesizer) Config() Config {
	return s.config
}

// GlobalBone is a bone in recentered image space before it is made
// relative to its parent
type GlobalBone struct {
	geometry.Transform
	Length float64
}

// GlobalPose derives the anchor bone of a part group: it starts at the
// group's from point, points at its to point and is as long as the gap
// between them.
func (s *Synthesizer) GlobalPose(group body.PartGroupID, pose body.Pose, referenceWidth float64) (GlobalBone, error) {
	a, ok := anchors[group]
	if !ok {
		return GlobalBone{}, fmt.Errorf("no anchor rule for part group %q", group)
	}

	r := resolver{pose: pose, threshold: s.config.ConfidenceThreshold, offsetX: referenceWidth / 2}
	from, to, missing := a.ends(r)
	if len(missing) > 0 {
		return GlobalBone{}, &InsufficientLandmarksError{Group: group, Missing: missing}
	}

	length, err := geometry.Distance(from, to)
	if err != nil {
		return GlobalBone{}, &InsufficientLandmarksError{Group: group, Err: err}
	}
	rotation, err := geometry.RotationOf(from, to)
	if err != nil {
		return GlobalBone{}, &InsufficientLandmarksError{Group: group, Err: err}
	}

	return GlobalBone{
		Transform: geometry.Transform{X: from.X, Y: from.Y, Rotation: rotation},
		Length:    length,
	}, nil
}

// SynthesizeBone derives a part group's bone relative to its parent, given
// the parent's global transform. It also returns the bone's own global
// transform for use by its children.
func (s *Synthesizer) SynthesizeBone(group body.PartGroupID, pose body.Pose, parentGlobal geometry.Transform, referenceWidth float64) (Bone, geometry.Transform, error) {
	global, err := s.GlobalPose(group, pose, referenceWidth)
	if err != nil {
		return Bone{}, geometry.Transform{}, err
	}
	bone, err := localBone(group, global, parentGlobal)
	if err != nil {
		return Bone{}, geometry.Transform{}, err
	}
	return bone, global.Transform, nil
}

// localBone converts a global bone to a Spine bone. Spine's y axis points
// up, so the local y is negated on the way out.
func localBone(group body.PartGroupID, global GlobalBone, parentGlobal geometry.Transform) (Bone, error) {
	local, err := geometry.ToLocalSpace(global.Transform, parentGlobal)
	if err != nil {
		return Bone{}, &InsufficientLandmarksError{Group: group, Err: err}
	}
	parent, _ := body.ParentOf(group)
	return Bone{
		Name:     string(group),
		Parent:   string(parent),
		X:        local.X,
		Y:        flipY(local.Y),
		Rotation: local.Rotation,
		Length:   global.Length,
	}, nil
}

// flipY negates y without producing negative zero in the output
func flipY(y float64) float64 {
	if y == 0 {
		return 0
	}
	return -y
}

// Result is a built skeleton together with the parts that failed under a
// non-aborting policy
type Result struct {
	Document *Document
	Failures []*InsufficientLandmarksError
	// Omitted lists groups left out of the document, including descendants
	// of failed groups under PolicySkip
	Omitted []body.PartGroupID
}

// BuildSkeleton builds the skeleton for a width x height canvas
func (s *Synthesizer) BuildSkeleton(width, height int, pose body.Pose) (*Document, error) {
	res, err := s.Build(width, height, pose)
	if err != nil {
		return nil, err
	}
	return res.Document, nil
}

// Build walks the part groups parents-first, synthesizes one bone, slot
// and attachment per group and assembles the Spine document. The pose must
// carry all 33 keypoints in landmark order under every policy.
func (s *Synthesizer) Build(width, height int, pose body.Pose) (*Result, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas dimensions %dx%d", width, height)
	}
	if err := pose.Validate(); err != nil {
		return nil, err
	}

	referenceWidth := s.config.ReferenceWidth
	if referenceWidth == 0 {
		referenceWidth = float64(width)
	}

	groups := body.Groups()

	// global poses do not depend on the parent, so every failure is known
	// before the tree is assembled
	globals := make(map[body.PartGroupID]GlobalBone, len(groups))
	failed := make(map[body.PartGroupID]*InsufficientLandmarksError)
	var failures []*InsufficientLandmarksError
	for _, g := range groups {
		gb, err := s.GlobalPose(g, pose, referenceWidth)
		if err != nil {
			var ile *InsufficientLandmarksError
			if !errors.As(err, &ile) {
				return nil, err
			}
			failed[g] = ile
			failures = append(failures, ile)
			continue
		}
		globals[g] = gb
	}
	if len(failures) > 0 && s.config.MissingPolicy == PolicyAbort {
		return nil, &SkeletonError{Failures: failures}
	}

	doc := &Document{
		Skeleton: Header{
			Spine:  s.config.Version,
			X:      -referenceWidth / 2,
			Y:      -float64(height),
			Width:  float64(width),
			Height: float64(height),
		},
		Bones:      []Bone{{Name: string(body.Root)}},
		Slots:      make([]Slot, 0, len(groups)),
		Animations: map[string]Animation{},
	}
	attachments := make(map[string]map[string]Attachment, len(groups))

	built := map[body.PartGroupID]geometry.Transform{body.Root: {}}
	var omitted []body.PartGroupID
	for _, g := range groups {
		parent, _ := body.ParentOf(g)
		parentGlobal, ok := built[parent]
		if !ok {
			// parent failed or was itself omitted under PolicySkip
			omitted = append(omitted, g)
			continue
		}

		var bone Bone
		if f := failed[g]; f != nil {
			if s.config.MissingPolicy == PolicySkip {
				omitted = append(omitted, g)
				continue
			}
			bone = Bone{Name: string(g), Parent: string(parent)}
			built[g] = parentGlobal
		} else {
			var err error
			bone, err = localBone(g, globals[g], parentGlobal)
			if err != nil {
				return nil, err
			}
			built[g] = globals[g].Transform
		}

		doc.Bones = append(doc.Bones, bone)
		doc.Slots = append(doc.Slots, Slot{Name: string(g), Bone: string(g), Attachment: string(g)})
		attachments[string(g)] = map[string]Attachment{
			string(g): {
				Rotation: AttachmentRotation,
				Width:    float64(width),
				Height:   float64(height),
			},
		}
	}
	doc.Skins = []Skin{{Name: "default", Attachments: attachments}}

	if err := doc.computeHash(s.config.HashMode); err != nil {
		return nil, err
	}
	return &Result{Document: doc, Failures: failures, Omitted: omitted}, nil
}
