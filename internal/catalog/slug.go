package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosimple/unidecode"

	"github.com/starford/quire/internal/apperr"
)

// MaxSlugSuffix is the highest numeric suffix UniqueSlug tries.
const MaxSlugSuffix = 100

// Slugify transliterates title to ASCII, lowercases it, maps every run of
// characters outside [a-z0-9] to a single "-" and trims dashes from both
// ends.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(unidecode.Unidecode(title)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// UniqueSlug derives a slug from title that no live entry uses, appending
// -1, -2 and so on up to MaxSlugSuffix. Past that the error matches both
// apperr.ErrCapacityExceeded and apperr.ErrInvalidTitle.
func (c *Catalog) UniqueSlug(title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		return "", fmt.Errorf("catalog: slug for %q: %w", title, apperr.ErrInvalidTitle)
	}
	if _, taken := c.slugIndex[base]; !taken {
		return base, nil
	}
	for n := 1; n <= MaxSlugSuffix; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, taken := c.slugIndex[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("catalog: slug for %q: %w: %w", title, apperr.ErrCapacityExceeded, apperr.ErrInvalidTitle)
}
