// Package keywords builds the ordered list of search-query variants
// tried for a category, highest priority first.
package keywords

import (
	"regexp"
	"strings"
	"time"
)

// Fallback single-word suggestions kept as a safety net when neither a
// rotation list nor an explicit override is configured.
var builtinOverrides = map[string]string{
	"Electronics":    "wireless earbuds",
	"Fashion":        "mens t-shirt",
	"Beauty":         "face serum",
	"HomeAndKitchen": "non-stick cookware",
	"ToysAndGames":   "lego set",
	"Computers":      "laptop",
	"Books":          "bestselling fiction",
}

type Builder struct {
	Rotation  map[string][]string
	Overrides map[string]string
}

func NewBuilder(rotation map[string][]string, overrides map[string]string) *Builder {
	return &Builder{Rotation: rotation, Overrides: overrides}
}

// Candidates returns deduplicated query variants for category in
// priority order: today's rotation keyword, the remaining rotation
// entries, the explicit override, the built-in fallback, keywords
// derived from the category label, and finally the generic "deals".
// The rotation choice is a pure function of the UTC day and the list,
// so it is stable all day and across restarts.
func (b *Builder) Candidates(category string, now time.Time) []string {
	var candidates []string

	if rotation := b.Rotation[category]; len(rotation) > 0 {
		cleaned := make([]string, 0, len(rotation))
		for _, k := range rotation {
			if t := strings.TrimSpace(k); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		if len(cleaned) > 0 {
			idx := int(now.UTC().Unix()/86400) % len(cleaned)
			candidates = append(candidates, cleaned[idx])
			for i, k := range cleaned {
				if i != idx {
					candidates = append(candidates, k)
				}
			}
		}
	}

	if override := b.Overrides[category]; override != "" {
		candidates = append(candidates, truncate(override, 80))
	}

	if builtin := builtinOverrides[category]; builtin != "" {
		candidates = append(candidates, builtin)
	}

	derived := DeriveFromCategory(category)
	candidates = append(candidates, derived, derived+" deals", derived+" bestsellers")

	candidates = append(candidates, "deals")

	return sanitizeAndDedupe(candidates)
}

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	multiSpace    = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^a-zA-Z0-9_\s'-]`)
)

// DeriveFromCategory turns a taxonomy label like "HomeAndKitchen" into
// a usable search phrase ("home and kitchen"), truncated to 60 chars.
func DeriveFromCategory(category string) string {
	if category == "" {
		return "deals"
	}
	spaced := camelBoundary.ReplaceAllString(category, "$1 $2")
	spaced = strings.ReplaceAll(spaced, "_", " ")
	cleaned := strings.ToLower(multiSpace.ReplaceAllString(spaced, " "))
	cleaned = strings.TrimSpace(disallowed.ReplaceAllString(cleaned, ""))
	cleaned = truncate(cleaned, 60)
	if cleaned == "" {
		return "deals"
	}
	return cleaned
}

// Sanitize restricts a candidate to word characters, spaces, hyphens
// and apostrophes.
func Sanitize(s string) string {
	cleaned := disallowed.ReplaceAllString(s, "")
	return strings.TrimSpace(multiSpace.ReplaceAllString(cleaned, " "))
}

func sanitizeAndDedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		clean := Sanitize(s)
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n])
}
