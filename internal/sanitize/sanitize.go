// Package sanitize cleans untrusted names and paths before they reach the filesystem.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	// MaxFilenameLength is the maximum length of a sanitized filename in bytes.
	MaxFilenameLength = 128

	// HashSuffixLength is the length of the hash suffix added to truncated names.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultFilename is used when sanitization produces an empty result.
	DefaultFilename = "upload"
)

// Filename reduces an uploaded filename to a safe base name.
//
// Rules applied:
//   - Drops any directory components, for both / and \ separators
//   - Keeps ASCII letters, digits, '.', '-' and '_'; everything else becomes '_'
//   - Collapses repeated underscores
//   - Trims leading dots and underscores so the result is never hidden
//   - Truncates to MaxFilenameLength with a hash suffix, keeping the extension
//   - Returns DefaultFilename if the result would be empty
//
// Examples:
//
//	"../../etc/passwd"     -> "passwd"
//	"Q3 report (final).pdf" -> "Q3_report_final_.pdf"
//	"C:\\docs\\plan.docx"  -> "plan.docx"
func Filename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	s := b.String()
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.TrimLeft(s, "._")
	s = strings.TrimRight(s, "_")

	if s == "" || s == "." {
		return DefaultFilename
	}
	if len(s) > MaxFilenameLength {
		s = truncateWithHash(s)
	}
	return s
}

// truncateWithHash shortens s to MaxFilenameLength, appending a hash of the
// full name before the extension to keep distinct names distinct.
//
// Format: <truncated>_<8-char-hash><ext>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(hash[:])[:8]

	ext := filepath.Ext(s)
	if len(ext) > 16 {
		ext = ""
	}
	base := strings.TrimSuffix(s, ext)

	maxBase := MaxFilenameLength - HashSuffixLength - len(ext)
	if len(base) > maxBase {
		base = base[:maxBase]
	}
	base = strings.TrimRight(base, "_")

	return base + suffix + ext
}
