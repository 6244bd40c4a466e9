package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/models"
)

// NodeRepo is the persistence contract of the content tree. Unless stated
// otherwise, "live" queries exclude post_version rows.
//
// Lookups of a single row return errs.ErrNotFound when nothing matches.
// Writes that would break (kind, slug_path) uniqueness among live nodes
// return errs.ErrUniqueConstraintViolation.
type NodeRepo interface {
	// FindByID returns any node, versions included.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Node, error)
	// FindByIDs returns the live nodes of kind among ids. Missing ids are skipped.
	FindByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) ([]*models.Node, error)
	FindByPath(ctx context.Context, kind models.Kind, path string) (*models.Node, error)
	FindByPaths(ctx context.Context, kind models.Kind, paths []string) ([]*models.Node, error)
	// FindDescendants returns live nodes whose slug_path starts with path + "/".
	FindDescendants(ctx context.Context, kind models.Kind, path string) ([]*models.Node, error)
	// FindChildren returns live direct children; a nil parent lists roots.
	FindChildren(ctx context.Context, kind models.Kind, parentID *uuid.UUID) ([]*models.Node, error)
	SiblingNameExists(ctx context.Context, kind models.Kind, parentID *uuid.UUID, name string) (bool, error)
	PathExists(ctx context.Context, kind models.Kind, path string) (bool, error)
	CountByStorageKey(ctx context.Context, key string) (int64, error)

	Create(ctx context.Context, node *models.Node) error
	Save(ctx context.Context, node *models.Node) error
	// RewritePathPrefix replaces oldPath with newPath at the start of every
	// live descendant path of oldPath, as one statement.
	RewritePathPrefix(ctx context.Context, kind models.Kind, oldPath, newPath string) (int64, error)
	SetPublishState(ctx context.Context, ids []uuid.UUID, state models.PublishState) (int64, error)
	Delete(ctx context.Context, ids []uuid.UUID) (int64, error)

	// ListVersions orders by revision, newest first.
	ListVersions(ctx context.Context, postID uuid.UUID) ([]*models.Node, error)
	CountVersions(ctx context.Context, postID uuid.UUID) (int64, error)
	MaxRevision(ctx context.Context, postID uuid.UUID) (int, error)
	FindVersionIDs(ctx context.Context, postIDs []uuid.UUID) ([]uuid.UUID, error)
	// DeleteVersions only removes post_version rows parented at postID.
	DeleteVersions(ctx context.Context, postID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)

	// LockNode takes an exclusive row lock on id for the rest of the
	// transaction. Reads issued after it see the latest committed row.
	LockNode(ctx context.Context, id uuid.UUID) error
	// ShareLockNode takes a shared row lock on id: the row can't be updated
	// or deleted until the transaction ends, but other sharers proceed.
	ShareLockNode(ctx context.Context, id uuid.UUID) error
	// LockSubtree takes exclusive row locks on every live descendant of
	// path. It waits for writers that still hold locks inside the subtree,
	// so statements issued after it see their committed rows.
	LockSubtree(ctx context.Context, kind models.Kind, path string) error
	// LockSiblings serialises name resolution under one parent for the rest
	// of the transaction.
	LockSiblings(ctx context.Context, kind models.Kind, parentID *uuid.UUID) error
}

// Store is a NodeRepo that can open transactions. fn's tx must be used for
// every read and write of the operation; returning an error rolls back.
type Store interface {
	NodeRepo
	Transaction(ctx context.Context, fn func(tx NodeRepo) error) error
}

// SiblingLockKey names the per-parent lock.
func SiblingLockKey(kind models.Kind, parentID *uuid.UUID) string {
	if parentID == nil {
		return string(kind) + ":root"
	}
	return string(kind) + ":" + parentID.String()
}
