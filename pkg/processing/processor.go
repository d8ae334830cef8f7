package processing

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/wrathskeller/rigger/pkg/types"
)

// Processor handles image loading and encoding
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Rigger/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return p.decodeImageFromBytes(imageData)
}

// LoadImage loads an image from a file path with WebP support. EXIF
// orientation is applied so keypoints and pixels agree.
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.decodeImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("image: unknown format for %s", path)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// EncodeImage writes img to w in the configured format
func (p *Processor) EncodeImage(w io.Writer, img image.Image, cfg types.EncodeConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: cfg.Lossless, Quality: float32(cfg.Quality)})
	case "jpg", "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(cfg.Quality))
	case "", "png":
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return fmt.Errorf("unsupported output format: %s", cfg.Format)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path string, cfg types.EncodeConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.EncodeImage(f, img, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
