package store

import (
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// forbiddenPathFilterSubstrings are rejected outright in a raw path filter,
// before any normalization, since they either escape the project root or
// smuggle a glob/SQL wildcard into the LIKE clause.
var forbiddenPathFilterSubstrings = []string{"..", "~", "*", "?", "[", "]", "\x00", "\n", "\r"}

// NormalizePathFilter applies the path filter policy: strip whitespace,
// reject traversal/wildcard/control characters, normalize separators to
// forward slash, strip a leading slash, and append a trailing slash when the
// last segment has no dot (treating it as a directory prefix rather than a
// filename).
func NormalizePathFilter(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	for _, bad := range forbiddenPathFilterSubstrings {
		if strings.Contains(trimmed, bad) {
			return "", cherrors.Config("path_filter contains a disallowed sequence", nil).
				WithDetail("path_filter", raw).WithDetail("disallowed", bad)
		}
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = strings.TrimPrefix(normalized, "/")

	lastSegment := normalized
	if idx := strings.LastIndex(normalized, "/"); idx >= 0 {
		lastSegment = normalized[idx+1:]
	}
	if !strings.Contains(lastSegment, ".") && !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}

	return normalized, nil
}

// pathFilterLikePattern builds the SQL LIKE pattern for a normalized path
// filter, per the spec's `file.path LIKE "%/<normalized>%"` rule.
func pathFilterLikePattern(normalized string) string {
	return "%/" + normalized + "%"
}
