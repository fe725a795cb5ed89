package assets

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/sells-group/reel-importer/internal/model"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses every run of non-alphanumerics to "-".
func Slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ReelID extracts the short code from a reel or post URL such as
// https://www.instagram.com/reel/DLpBJg-s-_i/. It returns "" when the URL has
// no path.
func ReelID(reelURL string) string {
	u, err := url.Parse(reelURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

// ExternalID returns the manifest id, or ig:<reelID>:<slug> when it is unset.
// Candidates without a reel get manual:<slug>.
func ExternalID(c model.Candidate) string {
	if c.ExternalID != "" {
		return c.ExternalID
	}
	reelID := ReelID(c.ReelURL)
	if reelID == "" {
		return "manual:" + Slug(c.Name)
	}
	return "ig:" + reelID + ":" + Slug(c.Name)
}

// StorageKey returns the bucket-relative key for a produced file.
func StorageKey(c model.Candidate, file string) string {
	return path.Join(Slug(c.Category), Slug(c.Name), file)
}
