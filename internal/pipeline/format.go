package pipeline

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"vidscale/internal/services"
)

// SupportedFormats lists the container extensions accepted as input.
var SupportedFormats = []string{"mp4", "mkv", "mov", "avi", "m4v", "webm"}

// DetectFormat returns the lower-cased container extension of path, or a
// validation error when it is not one of SupportedFormats.
func DetectFormat(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "", services.Wrap(services.ErrValidation, "validate", "detect format",
			fmt.Sprintf("%s has no file extension", filepath.Base(path)), nil)
	}
	if !slices.Contains(SupportedFormats, ext) {
		return "", services.Wrap(services.ErrValidation, "validate", "detect format",
			fmt.Sprintf("unsupported format %q (supported: %s)", ext, strings.Join(SupportedFormats, ", ")), nil)
	}
	return ext, nil
}
