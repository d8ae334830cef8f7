package body

import (
	"errors"
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/dfs"
)

// PartGroupID names an animatable body region made of one or more raw
// segmentation labels
type PartGroupID string

// Root is the parent of the torso and the first bone of every skeleton
const Root PartGroupID = "root"

// Body part groups
const (
	Torso         PartGroupID = "torso"
	Head          PartGroupID = "head"
	LeftUpperArm  PartGroupID = "left_upper_arm"
	LeftLowerArm  PartGroupID = "left_lower_arm"
	LeftHand      PartGroupID = "left_hand"
	RightUpperArm PartGroupID = "right_upper_arm"
	RightLowerArm PartGroupID = "right_lower_arm"
	RightHand     PartGroupID = "right_hand"
	LeftUpperLeg  PartGroupID = "left_upper_leg"
	LeftLowerLeg  PartGroupID = "left_lower_leg"
	LeftFoot      PartGroupID = "left_foot"
	RightUpperLeg PartGroupID = "right_upper_leg"
	RightLowerLeg PartGroupID = "right_lower_leg"
	RightFoot     PartGroupID = "right_foot"
)

// RawLabelCount is the number of part labels emitted by the segmentation model
const RawLabelCount = 24

// rawLabelNames are the BodyPix part names, indexed by raw label ID
var rawLabelNames = [RawLabelCount]string{
	"left_face",
	"right_face",
	"left_upper_arm_front",
	"left_upper_arm_back",
	"right_upper_arm_front",
	"right_upper_arm_back",
	"left_lower_arm_front",
	"left_lower_arm_back",
	"right_lower_arm_front",
	"right_lower_arm_back",
	"left_hand",
	"right_hand",
	"torso_front",
	"torso_back",
	"left_upper_leg_front",
	"left_upper_leg_back",
	"right_upper_leg_front",
	"right_upper_leg_back",
	"left_lower_leg_front",
	"left_lower_leg_back",
	"right_lower_leg_front",
	"right_lower_leg_back",
	"left_foot",
	"right_foot",
}

// RawLabelName returns the segmentation model's name for a raw label ID
func RawLabelName(id int) string {
	if id < 0 || id >= RawLabelCount {
		return fmt.Sprintf("label(%d)", id)
	}
	return rawLabelNames[id]
}

// Taxonomy groups raw segmentation labels into part groups and arranges the
// groups in a parent tree. Order is the traversal order used to build
// skeletons and must list every parent before its children.
type Taxonomy struct {
	Order   []PartGroupID
	Labels  map[PartGroupID][]int
	Parents map[PartGroupID]PartGroupID
}

var standard = Taxonomy{
	Order: []PartGroupID{
		Torso,
		Head,
		LeftUpperArm,
		LeftLowerArm,
		LeftHand,
		RightUpperArm,
		RightLowerArm,
		RightHand,
		LeftUpperLeg,
		LeftLowerLeg,
		LeftFoot,
		RightUpperLeg,
		RightLowerLeg,
		RightFoot,
	},
	// both face labels belong to the head
	Labels: map[PartGroupID][]int{
		Torso:         {12, 13},
		Head:          {0, 1},
		LeftUpperArm:  {2, 3},
		LeftLowerArm:  {6, 7},
		LeftHand:      {10},
		RightUpperArm: {4, 5},
		RightLowerArm: {8, 9},
		RightHand:     {11},
		LeftUpperLeg:  {14, 15},
		LeftLowerLeg:  {18, 19},
		LeftFoot:      {22},
		RightUpperLeg: {16, 17},
		RightLowerLeg: {20, 21},
		RightFoot:     {23},
	},
	Parents: map[PartGroupID]PartGroupID{
		Torso:         Root,
		Head:          Torso,
		LeftUpperArm:  Torso,
		LeftLowerArm:  LeftUpperArm,
		LeftHand:      LeftLowerArm,
		RightUpperArm: Torso,
		RightLowerArm: RightUpperArm,
		RightHand:     RightLowerArm,
		LeftUpperLeg:  Torso,
		LeftLowerLeg:  LeftUpperLeg,
		LeftFoot:      LeftLowerLeg,
		RightUpperLeg: Torso,
		RightLowerLeg: RightUpperLeg,
		RightFoot:     RightLowerLeg,
	},
}

// byLabel is the inverse of standard.Labels
var byLabel = func() [RawLabelCount]PartGroupID {
	var out [RawLabelCount]PartGroupID
	for g, ids := range standard.Labels {
		for _, id := range ids {
			if id >= 0 && id < RawLabelCount {
				out[id] = g
			}
		}
	}
	return out
}()

// Standard returns a copy of the built-in taxonomy
func Standard() Taxonomy {
	t := Taxonomy{
		Order:   append([]PartGroupID(nil), standard.Order...),
		Labels:  make(map[PartGroupID][]int, len(standard.Labels)),
		Parents: make(map[PartGroupID]PartGroupID, len(standard.Parents)),
	}
	for g, ids := range standard.Labels {
		t.Labels[g] = append([]int(nil), ids...)
	}
	for g, p := range standard.Parents {
		t.Parents[g] = p
	}
	return t
}

// Groups returns the 14 part groups in traversal order
func Groups() []PartGroupID {
	return append([]PartGroupID(nil), standard.Order...)
}

// GroupOf returns the part group a raw label ID belongs to
func GroupOf(rawLabelID int) (PartGroupID, bool) {
	if rawLabelID < 0 || rawLabelID >= RawLabelCount {
		return "", false
	}
	g := byLabel[rawLabelID]
	return g, g != ""
}

// ParentOf returns the parent of a part group, or Root for the torso
func ParentOf(group PartGroupID) (PartGroupID, bool) {
	p, ok := standard.Parents[group]
	return p, ok
}

// RawLabels returns the raw label IDs that make up a part group
func RawLabels(group PartGroupID) []int {
	return append([]int(nil), standard.Labels[group]...)
}

// Children returns the direct children of a group (or Root) in traversal order
func Children(group PartGroupID) []PartGroupID {
	var out []PartGroupID
	for _, g := range standard.Order {
		if standard.Parents[g] == group {
			out = append(out, g)
		}
	}
	return out
}

// Depth returns the number of parent steps from group to Root
func Depth(group PartGroupID) int {
	d := 0
	for g := group; g != Root; d++ {
		p, ok := standard.Parents[g]
		if !ok || d > len(standard.Order) {
			return -1
		}
		g = p
	}
	return d
}

// ConfigurationError reports a taxonomy table that breaks its invariants.
// It is fatal at startup.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("taxonomy configuration: %s: %v", e.Reason, e.Err)
	}
	return "taxonomy configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateTaxonomy checks the built-in taxonomy
func ValidateTaxonomy() error {
	return standard.Validate()
}

// Validate checks that the labels partition 0..RawLabelCount-1, that the
// parents form a tree rooted at Root with the torso as its only child, and
// that Order lists every parent before its children.
func (t Taxonomy) Validate() error {
	seen := make(map[PartGroupID]int, len(t.Order))
	for i, g := range t.Order {
		if g == Root || g == "" {
			return configErrorf("invalid group name %q in order", g)
		}
		if _, dup := seen[g]; dup {
			return configErrorf("group %s listed twice in order", g)
		}
		seen[g] = i
	}
	if len(t.Labels) != len(t.Order) {
		return configErrorf("%d groups have labels, %d groups in order", len(t.Labels), len(t.Order))
	}
	if len(t.Parents) != len(t.Order) {
		return configErrorf("%d groups have parents, %d groups in order", len(t.Parents), len(t.Order))
	}

	owner := make(map[int]PartGroupID, RawLabelCount)
	for _, g := range t.Order {
		ids, ok := t.Labels[g]
		if !ok || len(ids) == 0 {
			return configErrorf("group %s has no raw labels", g)
		}
		if _, ok := t.Parents[g]; !ok {
			return configErrorf("group %s has no parent", g)
		}
		for _, id := range ids {
			if id < 0 || id >= RawLabelCount {
				return configErrorf("group %s uses out-of-range label %d", g, id)
			}
			if prev, taken := owner[id]; taken {
				return configErrorf("label %d (%s) belongs to both %s and %s", id, RawLabelName(id), prev, g)
			}
			owner[id] = g
		}
	}
	for id := 0; id < RawLabelCount; id++ {
		if _, ok := owner[id]; !ok {
			return configErrorf("label %d (%s) is not mapped to any group", id, RawLabelName(id))
		}
	}

	graph, err := t.parentGraph()
	if err != nil {
		return err
	}
	if _, err := dfs.TopologicalSort(graph); err != nil {
		if errors.Is(err, dfs.ErrCycleDetected) {
			return &ConfigurationError{Reason: "parent relation has a cycle", Err: err}
		}
		return &ConfigurationError{Reason: "parent relation cannot be ordered", Err: err}
	}

	res, err := dfs.DFS(graph, string(Root))
	if err != nil {
		return &ConfigurationError{Reason: "parent tree walk failed", Err: err}
	}
	for _, g := range t.Order {
		if !res.Visited[string(g)] {
			return configErrorf("group %s does not reach root", g)
		}
		if res.Depth[string(g)] > len(t.Order) {
			return configErrorf("group %s is deeper than the group count", g)
		}
	}

	var rootChildren []PartGroupID
	for _, g := range t.Order {
		p := t.Parents[g]
		if p == Root {
			rootChildren = append(rootChildren, g)
			continue
		}
		pi, ok := seen[p]
		if !ok {
			return configErrorf("group %s has unknown parent %s", g, p)
		}
		if pi >= seen[g] {
			return configErrorf("group %s is ordered before its parent %s", g, p)
		}
	}
	if len(rootChildren) != 1 || rootChildren[0] != Torso {
		return configErrorf("root must have exactly one child %s, has %v", Torso, rootChildren)
	}
	return nil
}

// parentGraph builds the directed parent->child graph, root included
func (t Taxonomy) parentGraph() (*core.Graph, error) {
	g := core.NewGraph(core.WithDirected(true))
	ids := make([]string, 0, len(t.Order)+1)
	ids = append(ids, string(Root))
	for _, grp := range t.Order {
		ids = append(ids, string(grp))
	}
	for _, id := range ids {
		if err := g.AddVertex(id); err != nil {
			return nil, &ConfigurationError{Reason: "adding group " + id, Err: err}
		}
	}

	children := make([]string, 0, len(t.Parents))
	for c := range t.Parents {
		children = append(children, string(c))
	}
	sort.Strings(children)
	for _, c := range children {
		p := string(t.Parents[PartGroupID(c)])
		if !g.HasVertex(p) {
			return nil, configErrorf("group %s has unknown parent %s", c, p)
		}
		if p == c {
			return nil, configErrorf("group %s is its own parent", c)
		}
		if _, err := g.AddEdge(p, c, 0); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("linking %s to %s", c, p), Err: err}
		}
	}
	return g, nil
}
