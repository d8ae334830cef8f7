// Package spine synthesizes a bind-pose skeleton from pose keypoints and
// writes it in the Spine skeleton JSON format.
//
// See http://esotericsoftware.com/spine-json-format for the schema.
package spine

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DefaultVersion is the Spine editor version written to the skeleton header
const DefaultVersion = "4.1.19"

// AttachmentRotation is the fixed rotation of every region attachment
const AttachmentRotation = 270

// hashLength matches the length of hashes written by the Spine editor
const hashLength = 11

// Header is the "skeleton" block of a Spine document
type Header struct {
	Hash   string  `json:"hash"`
	Spine  string  `json:"spine"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Images string  `json:"images"`
	Audio  string  `json:"audio"`
}

// Bone is a parent-relative transform node. Positions and rotation are
// relative to the parent bone; the root bone has no parent.
type Bone struct {
	Name     string  `json:"name"`
	Parent   string  `json:"parent,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Length   float64 `json:"length"`
}

// Slot binds a bone to the attachment drawn for it
type Slot struct {
	Name       string `json:"name"`
	Bone       string `json:"bone"`
	Attachment string `json:"attachment"`
}

// Attachment is a region attachment sized to the source canvas
type Attachment struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Skin maps slot name -> attachment name -> attachment
type Skin struct {
	Name        string                           `json:"name"`
	Attachments map[string]map[string]Attachment `json:"attachments"`
}

// Animation is left empty: only the bind pose is produced
type Animation struct{}

// Document is a complete Spine skeleton
type Document struct {
	Skeleton   Header               `json:"skeleton"`
	Bones      []Bone               `json:"bones"`
	Slots      []Slot               `json:"slots"`
	Skins      []Skin               `json:"skins"`
	Animations map[string]Animation `json:"animations"`
}

// Bone returns the bone with the given name
func (d *Document) Bone(name string) (Bone, bool) {
	for _, b := range d.Bones {
		if b.Name == name {
			return b, true
		}
	}
	return Bone{}, false
}

// MarshalIndent renders the document the way it is written to skeleton.json
func (d *Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// HashMode selects how the header hash is produced
type HashMode string

const (
	// HashContent derives the hash from bones, slots and skins
	HashContent HashMode = "content"
	// HashRandom uses a fresh random value on every build
	HashRandom HashMode = "random"
)

// computeHash fills the header hash according to mode
func (d *Document) computeHash(mode HashMode) error {
	switch mode {
	case HashRandom:
		id := uuid.New()
		d.Skeleton.Hash = base64.RawURLEncoding.EncodeToString(id[:])[:hashLength]
		return nil
	case HashContent, "":
		body, err := json.Marshal(struct {
			Bones []Bone `json:"bones"`
			Slots []Slot `json:"slots"`
			Skins []Skin `json:"skins"`
		}{d.Bones, d.Slots, d.Skins})
		if err != nil {
			return fmt.Errorf("failed to hash skeleton: %w", err)
		}
		sum := sha256.Sum256(body)
		d.Skeleton.Hash = base64.RawURLEncoding.EncodeToString(sum[:])[:hashLength]
		return nil
	default:
		return fmt.Errorf("unknown hash mode %q", mode)
	}
}
