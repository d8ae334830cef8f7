package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "webp":
		return true
	}
	return false
}

// BaseName returns the file name without directory and extension
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GenerateOutputFilename builds <outputDir>/<prefix><input base><suffix>.<format>
func GenerateOutputFilename(inputFile, outputDir, prefix, suffix, format string) string {
	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "png"
		}
	}

	outputName := fmt.Sprintf("%s%s%s.%s", prefix, SanitizeFilename(BaseName(inputFile)), suffix, format)
	return filepath.Join(outputDir, outputName)
}

// SiblingFile returns the path next to photo with the given suffix, such
// as photo.pose.json for photo.jpg, when that file exists
func SiblingFile(photo, suffix string) (string, bool) {
	dir := filepath.Dir(photo)
	path := filepath.Join(dir, BaseName(photo)+suffix)
	return path, FileExists(path)
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
