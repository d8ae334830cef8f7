// Package bundle packages a rigged character: the skeleton document and one
// cutout image per part group, named after the group so the skeleton's
// attachments resolve to them.
package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/processing"
	"github.com/wrathskeller/rigger/pkg/spine"
	"github.com/wrathskeller/rigger/pkg/types"
)

// SkeletonName is the skeleton document's name inside a bundle
const SkeletonName = "skeleton.json"

// Character is a rigged character ready to be written
type Character struct {
	Skeleton *spine.Document
	Parts    map[body.PartGroupID]*image.NRGBA
}

// Writer encodes characters as zip archives or plain directories
type Writer struct {
	processor *processing.Processor
	encode    types.EncodeConfig
}

// NewWriter creates a Writer that encodes cutouts with cfg
func NewWriter(cfg types.EncodeConfig) *Writer {
	if cfg.Format == "" {
		cfg.Format = "png"
	}
	return &Writer{processor: processing.NewProcessor(), encode: cfg}
}

// PartName returns the file name of a group's cutout
func (w *Writer) PartName(group body.PartGroupID) string {
	return string(group) + w.encode.Extension()
}

// WriteArchive writes the character as a zip archive to out. The zip
// directory is written even when an entry fails, so out is never left
// holding a half-open archive.
func (w *Writer) WriteArchive(out io.Writer, c *Character) error {
	if err := check(c); err != nil {
		return err
	}
	skeleton, err := c.Skeleton.MarshalIndent()
	if err != nil {
		return fmt.Errorf("failed to marshal skeleton: %w", err)
	}

	zw := zip.NewWriter(out)
	if err := w.writeEntries(zw, c, skeleton); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func (w *Writer) writeEntries(zw *zip.Writer, c *Character, skeleton []byte) error {
	f, err := zw.Create(SkeletonName)
	if err != nil {
		return err
	}
	if _, err := f.Write(skeleton); err != nil {
		return err
	}

	for _, g := range partOrder(c) {
		// encoded images are already compressed
		f, err := zw.CreateHeader(&zip.FileHeader{Name: w.PartName(g), Method: zip.Store})
		if err != nil {
			return err
		}
		if err := w.processor.EncodeImage(f, c.Parts[g], w.encode); err != nil {
			return fmt.Errorf("failed to encode %s: %w", g, err)
		}
	}
	return nil
}

// SaveArchive writes the character as a zip archive at path
func (w *Writer) SaveArchive(path string, c *Character) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := w.WriteArchive(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteDir writes the skeleton and cutouts as loose files into dir and
// returns the paths written
func (w *Writer) WriteDir(dir string, c *Character) ([]string, error) {
	if err := check(c); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	skeleton, err := c.Skeleton.MarshalIndent()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal skeleton: %w", err)
	}
	path := filepath.Join(dir, SkeletonName)
	if err := os.WriteFile(path, skeleton, 0644); err != nil {
		return nil, fmt.Errorf("failed to write skeleton: %w", err)
	}
	written := []string{path}

	for _, g := range partOrder(c) {
		path := filepath.Join(dir, w.PartName(g))
		if err := w.processor.SaveImage(c.Parts[g], path, w.encode); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", g, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// ReadSkeleton returns the skeleton document and the part file names
// stored in an archive
func ReadSkeleton(path string) (*spine.Document, []string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var (
		doc   *spine.Document
		parts []string
	)
	for _, f := range zr.File {
		if f.Name != SkeletonName {
			parts = append(parts, f.Name)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, nil, err
		}
		doc = &spine.Document{}
		err = json.NewDecoder(rc).Decode(doc)
		rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", SkeletonName, err)
		}
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("archive has no %s", SkeletonName)
	}
	sort.Strings(parts)
	return doc, parts, nil
}

func check(c *Character) error {
	if c == nil || c.Skeleton == nil {
		return fmt.Errorf("character has no skeleton")
	}
	for _, slot := range c.Skeleton.Slots {
		if _, ok := c.Parts[body.PartGroupID(slot.Attachment)]; !ok {
			return fmt.Errorf("slot %s has no cutout image", slot.Name)
		}
	}
	return nil
}

// partOrder lists the character's parts in taxonomy order, then any extras
// by name
func partOrder(c *Character) []body.PartGroupID {
	out := make([]body.PartGroupID, 0, len(c.Parts))
	seen := make(map[body.PartGroupID]bool, len(c.Parts))
	for _, g := range body.Groups() {
		if _, ok := c.Parts[g]; ok {
			out = append(out, g)
			seen[g] = true
		}
	}
	var extra []string
	for g := range c.Parts {
		if !seen[g] {
			extra = append(extra, string(g))
		}
	}
	sort.Strings(extra)
	for _, g := range extra {
		out = append(out, body.PartGroupID(g))
	}
	return out
}
