package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
)

// maxSuffix bounds the candidate search so a pathological sibling set can't
// spin forever.
const maxSuffix = 10000

// EnsureUnique returns name if no live sibling under parentID uses it,
// otherwise name + " (n)" with the smallest free n >= 1. Every candidate is
// re-checked against the store, so callers must hold the sibling lock.
func EnsureUnique(ctx context.Context, repo database.NodeRepo, kind models.Kind, parentID *uuid.UUID, name string) (string, error) {
	candidate := name
	for n := 1; n <= maxSuffix; n++ {
		taken, err := repo.SiblingNameExists(ctx, kind, parentID, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
	return "", errs.NewDuplicateNameError(name)
}

// ensureUniqueSlug is the path counterpart of EnsureUnique: slug, slug-1,
// slug-2, ... For assets the counter goes before the extension
// (logo.png, logo-1.png).
func ensureUniqueSlug(ctx context.Context, repo database.NodeRepo, kind models.Kind, parentPath, slug string) (string, error) {
	base, ext := slug, ""
	if kind == models.KindAsset {
		if i := strings.LastIndexByte(slug, '.'); i > 0 {
			base, ext = slug[:i], slug[i:]
		}
	}

	candidate := slug
	for n := 1; n <= maxSuffix; n++ {
		taken, err := repo.PathExists(ctx, kind, JoinPath(parentPath, candidate))
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d%s", base, n, ext)
		if len(candidate) > MaxSlugLength {
			break
		}
	}
	return "", errs.NewDuplicatePathError(JoinPath(parentPath, slug))
}

// AssertUniquePath fails with DuplicatePath when a live node other than self
// already owns path. self may be nil for inserts.
func AssertUniquePath(ctx context.Context, repo database.NodeRepo, kind models.Kind, path string, self *uuid.UUID) error {
	existing, err := repo.FindByPath(ctx, kind, path)
	if errs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if self != nil && existing.ID == *self {
		return nil
	}
	return errs.NewDuplicatePathError(path)
}
