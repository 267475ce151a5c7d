// Package filename derives safe output file names from input names.
package filename

import (
	"path/filepath"
	"strings"
)

const (
	// DefaultStem is used when no usable name can be derived.
	DefaultStem = "ConvertedCode"
	// Extension is appended to suggested output names.
	Extension = ".cs"
)

// invalidChars is the Windows set, which also covers POSIX ('/' and NUL).
const invalidChars = `<>:"/\|?*`

func isInvalid(r rune) bool {
	return r < 0x20 || strings.ContainsRune(invalidChars, r)
}

// Sanitize replaces every invalid file-name character with '_'. A blank
// result becomes DefaultStem, so the returned name is never empty.
func Sanitize(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if isInvalid(r) {
			return '_'
		}
		return r
	}, name)

	if strings.TrimSpace(sanitized) == "" {
		return DefaultStem
	}
	return sanitized
}

// Suggest returns the output name for input: its sanitized stem plus
// Extension, or DefaultStem+Extension when input has no usable stem.
func Suggest(input string) string {
	base := filepath.Base(strings.TrimSpace(input))
	if base == "." || base == string(filepath.Separator) {
		return DefaultStem + Extension
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(stem) == "" {
		return DefaultStem + Extension
	}
	return Sanitize(stem) + Extension
}
