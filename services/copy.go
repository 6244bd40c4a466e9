package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"gorm.io/datatypes"
)

// CopyInput describes where a copy goes. Name and Slug default to the
// source's.
type CopyInput struct {
	ParentID  *uuid.UUID
	Name      string
	Slug      string
	Recursive bool
}

// Copy duplicates a node, and its whole subtree when recursive, under
// ParentID. Copies get fresh ids and the acting user as author; copied posts
// start as drafts and versions are not carried over. A path collision
// anywhere aborts the whole copy with duplicate_slug.
//
// Descendants are created parents first: each copy's parent is looked up
// among the copies already made, by the dirname of its new path.
func (e *Engine) Copy(ctx context.Context, kind models.Kind, sourceID uuid.UUID, in CopyInput) ([]*models.Node, error) {
	if in.Slug != "" {
		if err := checkSlug(kind, in.Slug); err != nil {
			return nil, err
		}
	}

	var created []*models.Node
	err := e.inTx(ctx, "copy", func(tx database.NodeRepo) error {
		source, err := lockLive(ctx, tx, kind, sourceID, errs.NewInvalidSourceError, tx.ShareLockNode)
		if err != nil {
			return err
		}
		if err := tx.LockSiblings(ctx, kind, in.ParentID); err != nil {
			return err
		}
		parent, err := loadParent(ctx, tx, kind, in.ParentID)
		if err != nil {
			return err
		}
		if in.Recursive && parent != nil && IsDescendantPath(parent.SlugPath, source.SlugPath) {
			return errs.NewInvalidParentError(parent.ID.String(), "is inside the copied subtree")
		}

		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = source.Name
		}
		if kind.UniqueNames() {
			if name, err = EnsureUnique(ctx, tx, kind, in.ParentID, name); err != nil {
				return err
			}
		}
		slug := in.Slug
		if slug == "" {
			slug = source.Slug
		}

		nodes := []*models.Node{source}
		if in.Recursive {
			descendants, err := tx.FindDescendants(ctx, kind, source.SlugPath)
			if err != nil {
				return err
			}
			sort.SliceStable(descendants, func(i, j int) bool {
				if len(descendants[i].SlugPath) != len(descendants[j].SlugPath) {
					return len(descendants[i].SlugPath) < len(descendants[j].SlugPath)
				}
				return descendants[i].SlugPath < descendants[j].SlugPath
			})
			nodes = append(nodes, descendants...)
		}

		oldBase := source.SlugPath
		newBase := JoinPath(pathOf(parent), slug)
		byPath := make(map[string]*models.Node, len(nodes))

		for i, original := range nodes {
			newPath := newBase + original.SlugPath[len(oldBase):]

			var parentID *uuid.UUID
			if i == 0 {
				parentID = in.ParentID
			} else {
				newParent, ok := byPath[ParentPath(newPath)]
				if !ok {
					return fmt.Errorf("copy %s: no copied parent for %s", source.ID, newPath)
				}
				id := newParent.ID
				parentID = &id
			}

			taken, err := tx.PathExists(ctx, kind, newPath)
			if err != nil {
				return err
			}
			if taken {
				return errs.NewDuplicateSlugError(newPath)
			}

			dup, err := duplicate(ctx, original, parentID, newPath)
			if err != nil {
				return err
			}
			if i == 0 {
				dup.Name = name
				dup.Slug = slug
			}
			if err := tx.Create(ctx, dup); err != nil {
				return err
			}
			byPath[newPath] = dup
			created = append(created, dup)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(created))
	for _, n := range created {
		ids = append(ids, n.ID)
	}
	e.notify(ctx, kind, "postCopy", map[string]interface{}{"sourceId": sourceID, "ids": ids})
	return created, nil
}

// duplicate builds an unsaved copy of n at path under parentID.
func duplicate(ctx context.Context, n *models.Node, parentID *uuid.UUID, path string) (*models.Node, error) {
	meta, err := models.CloneMeta(n.Meta)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	dup := &models.Node{
		ID:          uuid.New(),
		Kind:        n.Kind,
		Type:        n.Type,
		Name:        n.Name,
		Slug:        n.Slug,
		SlugPath:    path,
		ParentID:    parentID,
		ContentType: n.ContentType,
		Meta:        meta,
		Tags:        datatypes.JSONSlice[string](append([]string{}, n.Tags...)),
		StorageKey:  n.StorageKey,
		AuthorID:    ActorFrom(ctx),
	}
	if n.Kind == models.KindPost {
		dup.Status = models.StatusDraft
	}
	return dup, nil
}
