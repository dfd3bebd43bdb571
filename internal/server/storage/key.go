package storage

import (
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeSegment makes value usable as one key or path segment. Runs of
// other characters collapse to "-" and outer dashes are trimmed. Empty and
// dot-only results become "unknown", so a segment never climbs out of its
// parent.
func SafeSegment(value string) string {
	cleaned := strings.Trim(unsafeSegment.ReplaceAllString(value, "-"), "-")
	if cleaned == "" || strings.Trim(cleaned, ".") == "" {
		return "unknown"
	}
	return cleaned
}

// randomName is a 32-hex-char file name with the given extension.
func randomName(ext string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "." + ext
}

// extFromFilename takes the extension of a client file name, lower-cased,
// falling back to jpg.
func extFromFilename(name string) string {
	return cleanExt(strings.TrimPrefix(path.Ext(name), "."))
}

func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return "jpg"
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "jpg"
		}
	}
	return ext
}

// BuildObjectKey lays out prefix/site/report/category/field/draft/<random>.<ext>.
// Empty optional segments are omitted; every call yields a new key.
func BuildObjectKey(prefix string, req UploadRequest) string {
	if prefix == "" {
		prefix = "relatorios"
	}
	parts := []string{strings.Trim(prefix, "/")}
	for _, seg := range []string{req.SiteID, req.ReportID, req.Category, req.FieldKey, req.DraftID} {
		if seg != "" {
			parts = append(parts, SafeSegment(seg))
		}
	}
	parts = append(parts, randomName(extFromFilename(req.Filename)))
	return strings.Join(parts, "/")
}
