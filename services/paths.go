package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rpupo63/content-tree-backend/config"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
)

// MaxSlugLength bounds a single path segment in bytes.
const MaxSlugLength = 200

var (
	// posts and tags: lowercase alphanumerics separated by single hyphens
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	// assets also accept '.' and '_' between runs so file names survive
	assetSlugPattern = regexp.MustCompile(`^[a-z0-9]+([-._][a-z0-9]+)*$`)
)

// ValidateSlug reports whether slug is a legal path segment for kind.
// Matching is byte-exact; nothing is trimmed or case-folded.
func ValidateSlug(kind models.Kind, slug string) bool {
	if slug == "" || len(slug) > MaxSlugLength {
		return false
	}
	if kind == models.KindAsset {
		return assetSlugPattern.MatchString(slug)
	}
	return slugPattern.MatchString(slug)
}

func checkSlug(kind models.Kind, slug string) error {
	switch {
	case slug == "":
		return errs.NewInvalidSlugError(slug, "is empty")
	case len(slug) > MaxSlugLength:
		return errs.NewInvalidSlugError(slug, fmt.Sprintf("is longer than %d bytes", MaxSlugLength))
	case !ValidateSlug(kind, slug):
		return errs.NewInvalidSlugError(slug, "must be lowercase letters, digits and single separators")
	}
	return nil
}

// JoinPath returns slug for a root (parentPath == "") and parentPath/slug otherwise.
func JoinPath(parentPath, slug string) string {
	if parentPath == "" {
		return slug
	}
	return parentPath + "/" + slug
}

// IsDescendantPath reports whether candidate is ancestor or lies below it.
func IsDescendantPath(candidate, ancestor string) bool {
	return candidate == ancestor || strings.HasPrefix(candidate, ancestor+"/")
}

// ParentPath is the dirname of a slug path; "" for a root path.
func ParentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// ancestorPaths lists every proper prefix path of path, root first.
func ancestorPaths(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return out
}

// Slugify derives a slug from a display name. Letters and digits are kept
// (lowercased), every other run of characters becomes a single hyphen.
// Asset slugs keep '.' and '_' so "Logo Final.PNG" becomes "logo-final.png".
func Slugify(kind models.Kind, name string) string {
	var result strings.Builder
	pending := byte(0)
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pending != 0 && result.Len() > 0 {
				result.WriteByte(pending)
			}
			pending = 0
			result.WriteRune(r)
		case kind == models.KindAsset && (r == '.' || r == '_'):
			if pending == 0 || pending == '-' {
				pending = byte(r)
			}
		default:
			if pending == 0 {
				pending = '-'
			}
		}
	}

	slug := result.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-._")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}

// GetBaseURL retrieves the public site URL used to build links to live posts.
func GetBaseURL(cfg map[string]string) string {
	return strings.TrimSuffix(config.GetString(cfg, "BASE_URL", ""), "/")
}

// BuildPostURL constructs the public URL of a post from its slug path.
// Returns "" when no base URL is configured.
func BuildPostURL(baseURL, slugPath string) string {
	if baseURL == "" || slugPath == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), slugPath)
}
