package domain

import "strings"

// generatedNamePrefix tags tool names synthesized for portals that publish no
// machine-readable API description.
const generatedNamePrefix = "portal"

// idSuffixLen disambiguates identically-titled portals by appending the
// leading characters of the portal id.
const idSuffixLen = 4

// GeneratedToolName derives the deterministic fallback tool name for a
// portal: lowercase slug of the title with runs of non-alphanumerics folded
// into single underscores, prefixed with a fixed tag and suffixed with the
// first characters of the portal id.
func GeneratedToolName(title, id string) string {
	slug := slugify(title)
	suffix := IDSuffix(id)
	if slug == "" {
		return generatedNamePrefix + "_" + suffix
	}
	return generatedNamePrefix + "_" + slug + "_" + suffix
}

// IDSuffix returns the short id fragment used to disambiguate names.
func IDSuffix(id string) string {
	if len(id) <= idSuffixLen {
		return strings.ToLower(id)
	}
	return strings.ToLower(id[:idSuffixLen])
}

func slugify(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(title) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			if b.Len() > 0 {
				pendingSep = true
			}
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
