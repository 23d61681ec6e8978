// Package naming implements the storage key naming scheme.
//
// Uploaded files are stored under "{sanitizedBase}__{timestampMillis}{ext}"
// so that repeated uploads of the same filename do not collide. The display
// name shown to clients is recovered by stripping the timestamp marker back
// out.
package naming

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Marker separates the sanitized base name from the upload timestamp.
const Marker = "__"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize replaces every character outside [A-Za-z0-9_-] with an
// underscore. Sanitize is idempotent and total over any input string.
func Sanitize(base string) string {
	return unsafeChars.ReplaceAllString(base, "_")
}

// Encode derives a storage name from an original filename and an upload
// timestamp in milliseconds.
func Encode(originalName string, timestampMillis int64) string {
	ext := path.Ext(originalName)
	base := strings.TrimSuffix(originalName, ext)
	return Sanitize(base) + Marker + strconv.FormatInt(timestampMillis, 10) + ext
}

// Decode recovers the display name from a stored name. If the basename
// carries no timestamp marker the input is returned unchanged, which keeps
// files stored before the scheme existed listable.
func Decode(storedName string) string {
	base := path.Base(storedName)
	idx := strings.Index(base, Marker)
	if idx < 0 {
		return storedName
	}
	return base[:idx] + path.Ext(base)
}
