package errors

import (
	"path/filepath"
	"strings"
	"unicode"
)

// maxNodeIDLength bounds node identifiers; they double as file names.
const maxNodeIDLength = 255

// ValidateNodeID validates a node identifier. Node ids are executable
// references resolved relative to the task directory, so the rules mirror
// the usual path-safety checks:
//   - No empty ids
//   - No control characters or null bytes
//   - No absolute paths
//   - No path traversal sequences (..)
//   - Maximum length of 255 characters
func ValidateNodeID(id string) error {
	if strings.TrimSpace(id) == "" {
		return New(ErrCodeConfig, "node id cannot be empty")
	}

	if len(id) > maxNodeIDLength {
		return New(ErrCodeConfig, "node id %q too long (max %d characters)", id, maxNodeIDLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeConfig, "node id %q contains invalid control characters", id)
		}
	}

	if filepath.IsAbs(id) || strings.HasPrefix(id, "/") {
		return New(ErrCodeConfig, "node id %q must be relative to the task directory", id)
	}

	for _, part := range strings.FieldsFunc(id, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return New(ErrCodeConfig, "node id %q cannot contain path traversal sequences (..)", id)
		}
	}

	return nil
}

// ValidatePercent checks that a percentage threshold lies in [0, 100].
func ValidatePercent(name string, v float64) error {
	if v < 0 || v > 100 {
		return New(ErrCodeConfig, "%s must be between 0 and 100, got %g", name, v)
	}
	return nil
}

// ValidateNonNegative checks that a threshold or duration is not negative.
func ValidateNonNegative(name string, v float64) error {
	if v < 0 {
		return New(ErrCodeConfig, "%s cannot be negative, got %g", name, v)
	}
	return nil
}
