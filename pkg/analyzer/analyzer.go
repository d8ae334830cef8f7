package analyzer

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// InputAnalyzer checks source photos before they enter the pipeline
type InputAnalyzer struct {
	config Config
}

// Config holds configuration for input checks
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	// MaxImageSize bounds the longer side; 0 disables the check
	MaxImageSize int
}

// New creates a new InputAnalyzer with default configuration
func New() *InputAnalyzer {
	return &InputAnalyzer{
		config: Config{
			SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
			MinImageSize:     64,
			MaxImageSize:     8192,
		},
	}
}

// NewWithConfig creates a new InputAnalyzer with custom configuration
func NewWithConfig(config Config) *InputAnalyzer {
	return &InputAnalyzer{config: config}
}

// LoadImage loads a photo from file and applies its EXIF orientation
func (a *InputAnalyzer) LoadImage(filepath string) (image.Image, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return a.LoadImageFromReader(bytes.NewReader(data))
}

// LoadImageFromReader loads a photo from an io.Reader
func (a *InputAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// GetImageInfo returns basic information about an image
func (a *InputAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Area:        width * height,
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

func (a *InputAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets the size requirements
func (a *InputAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	if a.config.MaxImageSize > 0 && (bounds.Dx() > a.config.MaxImageSize || bounds.Dy() > a.config.MaxImageSize) {
		return fmt.Errorf("image too large: %dx%d (maximum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MaxImageSize)
	}
	return nil
}
