// Package category derives a document's category from its URL path.
package category

import (
	"net/url"
	"strings"
)

var translations = map[string]string{
	"lp": "marketing",
	"s":  "support",
}

// FromURL returns the category of rawURL. The first path segment names the
// category, with "lp" and "s" translated and "resources/<x>" mapping to x.
// Unparseable URLs and the root path yield "".
func FromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) < 2 {
		return ""
	}
	parts = parts[1:]
	first := parts[0]
	if cat, ok := translations[first]; ok {
		return cat
	}
	if first == "resources" && len(parts) > 1 && parts[1] != "" {
		return parts[1]
	}
	return first
}
