package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/rpupo63/content-tree-backend/storage"
	"gorm.io/datatypes"
)

// CreateInput carries the caller-settable fields of a new node. SlugPath is
// never accepted; it is always derived from the parent.
type CreateInput struct {
	ParentID    *uuid.UUID
	Slug        string
	Name        string
	Type        models.NodeType
	Meta        map[string]interface{}
	Tags        []string
	ContentType *string
	StorageKey  *string
	// ResolveName auto-suffixes a clashing name (" (n)") and slug ("-n")
	// instead of failing.
	ResolveName bool
}

// RenameInput changes the name, the slug, or both.
type RenameInput struct {
	Name *string
	Slug *string
}

// TreeChange is the outcome of a rename or move.
type TreeChange struct {
	Node      *models.Node `json:"node"`
	Rewritten int64        `json:"rewritten"`
}

// Create inserts a node under ParentID (or at the root).
//
// Errors:
//   - invalid_parent: the parent is missing, of another kind, a version, or not an asset folder
//   - duplicate_name: a sibling already has the name (assets and tags)
//   - duplicate_path: the derived slug path is taken
func (e *Engine) Create(ctx context.Context, kind models.Kind, in CreateInput) (*models.Node, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.NewMissingRequiredFieldError("name")
	}

	nodeType := in.Type
	if nodeType == "" {
		nodeType = kind.DefaultType()
	}
	if !kind.Allows(nodeType) {
		return nil, errs.NewInvalidFieldError("type", "unsupported "+string(kind)+" type "+string(nodeType))
	}

	slug := in.Slug
	if slug == "" {
		slug = Slugify(kind, name)
	}
	if err := checkSlug(kind, slug); err != nil {
		return nil, err
	}

	if err := e.verifyStorageKey(ctx, kind, nodeType, in.StorageKey); err != nil {
		return nil, err
	}

	meta, err := models.CloneMeta(datatypes.JSONMap(in.Meta))
	if err != nil {
		return nil, errs.NewInvalidFieldError("meta", err.Error())
	}
	if meta == nil {
		meta = datatypes.JSONMap{}
	}

	var created *models.Node
	err = e.inTx(ctx, "create", func(tx database.NodeRepo) error {
		if err := tx.LockSiblings(ctx, kind, in.ParentID); err != nil {
			return err
		}
		parent, err := loadParent(ctx, tx, kind, in.ParentID)
		if err != nil {
			return err
		}
		parentPath := pathOf(parent)

		finalName, finalSlug := name, slug
		if in.ResolveName {
			if finalName, err = EnsureUnique(ctx, tx, kind, in.ParentID, name); err != nil {
				return err
			}
			if finalSlug, err = ensureUniqueSlug(ctx, tx, kind, parentPath, slug); err != nil {
				return err
			}
		} else if kind.UniqueNames() {
			taken, err := tx.SiblingNameExists(ctx, kind, in.ParentID, name)
			if err != nil {
				return err
			}
			if taken {
				return errs.NewDuplicateNameError(name)
			}
		}

		path := JoinPath(parentPath, finalSlug)
		if err := AssertUniquePath(ctx, tx, kind, path, nil); err != nil {
			return err
		}

		node := &models.Node{
			ID:          uuid.New(),
			Kind:        kind,
			Type:        nodeType,
			Name:        finalName,
			Slug:        finalSlug,
			SlugPath:    path,
			ParentID:    in.ParentID,
			ContentType: in.ContentType,
			Meta:        meta,
			Tags:        datatypes.JSONSlice[string](append([]string{}, in.Tags...)),
			StorageKey:  in.StorageKey,
			AuthorID:    ActorFrom(ctx),
		}
		if kind == models.KindPost {
			node.Status = models.StatusDraft
		}
		if err := tx.Create(ctx, node); err != nil {
			return err
		}
		created = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, kind, "postCreate", created)
	return created, nil
}

// verifyStorageKey checks that a file asset points at stored bytes.
func (e *Engine) verifyStorageKey(ctx context.Context, kind models.Kind, nodeType models.NodeType, key *string) error {
	if kind != models.KindAsset || nodeType != models.TypeFile || key == nil || e.storage == nil {
		return nil
	}
	if _, err := e.storage.Stat(ctx, *key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return errs.NewInvalidFieldError("storageKey", "no stored object at "+*key)
		}
		return errs.NewStorageError("stat", *key, err)
	}
	return nil
}

// Get returns a live node of kind.
func (e *Engine) Get(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Node, error) {
	node, err := loadLive(ctx, e.store, kind, id, errs.NewInvalidNodeError)
	if err != nil {
		return nil, readErr("get", err)
	}
	return node, nil
}

// FindByPath returns the live node at path.
func (e *Engine) FindByPath(ctx context.Context, kind models.Kind, path string) (*models.Node, error) {
	node, err := e.store.FindByPath(ctx, kind, path)
	if errs.IsNotFound(err) {
		return nil, errs.NewInvalidNodeError(path)
	}
	if err != nil {
		return nil, readErr("find by path", err)
	}
	return node, nil
}

// FindAncestors returns the chain from the parent up to the root, nearest
// first, and an empty list for a root. Ancestors are prefetched by path and
// then walked through parent pointers without recursion.
func (e *Engine) FindAncestors(ctx context.Context, kind models.Kind, id uuid.UUID) ([]*models.Node, error) {
	node, err := e.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	prefetched, err := e.store.FindByPaths(ctx, kind, ancestorPaths(node.SlugPath))
	if err != nil {
		return nil, readErr("find ancestors", err)
	}
	index := make(map[uuid.UUID]*models.Node, len(prefetched))
	for _, n := range prefetched {
		index[n.ID] = n
	}

	ancestors := []*models.Node{}
	visited := map[uuid.UUID]bool{node.ID: true}
	for cur := node; cur.ParentID != nil; {
		parentID := *cur.ParentID
		if visited[parentID] {
			e.logger.Warn().Str("nodeId", node.ID.String()).Msg("parent cycle detected while walking ancestors")
			break
		}
		visited[parentID] = true

		parent, ok := index[parentID]
		if !ok {
			parent, err = e.store.FindByID(ctx, parentID)
			if errs.IsNotFound(err) {
				break
			}
			if err != nil {
				return nil, readErr("find ancestors", err)
			}
		}
		ancestors = append(ancestors, parent)
		cur = parent
	}
	return ancestors, nil
}

// FindDescendants returns every live node below id (not id itself).
func (e *Engine) FindDescendants(ctx context.Context, kind models.Kind, id uuid.UUID) ([]*models.Node, error) {
	node, err := e.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	descendants, err := e.store.FindDescendants(ctx, kind, node.SlugPath)
	if err != nil {
		return nil, readErr("find descendants", err)
	}
	return descendants, nil
}

// Children lists the direct children of parentID, or the roots when nil.
func (e *Engine) Children(ctx context.Context, kind models.Kind, parentID *uuid.UUID) ([]*models.Node, error) {
	if parentID != nil {
		if _, err := loadLive(ctx, e.store, kind, *parentID, func(id string) *errs.ApiErr {
			return errs.NewInvalidParentError(id, "does not exist")
		}); err != nil {
			return nil, readErr("list children", err)
		}
	}
	children, err := e.store.FindChildren(ctx, kind, parentID)
	if err != nil {
		return nil, readErr("list children", err)
	}
	return children, nil
}

// Rename changes a node's name and/or slug. A slug change rewrites the path
// prefix of every descendant in the same transaction. Renaming a post
// snapshots it first.
func (e *Engine) Rename(ctx context.Context, kind models.Kind, id uuid.UUID, in RenameInput) (*TreeChange, error) {
	if in.Name == nil && in.Slug == nil {
		return nil, errs.NewMissingRequiredFieldError("name or slug")
	}
	var newName string
	if in.Name != nil {
		if newName = strings.TrimSpace(*in.Name); newName == "" {
			return nil, errs.NewInvalidFieldError("name", "must not be empty")
		}
	}
	if in.Slug != nil {
		if err := checkSlug(kind, *in.Slug); err != nil {
			return nil, err
		}
	}

	var change TreeChange
	err := e.inTx(ctx, "rename", func(tx database.NodeRepo) error {
		node, err := lockLive(ctx, tx, kind, id, errs.NewInvalidNodeError, tx.LockNode)
		if err != nil {
			return err
		}
		if err := tx.LockSiblings(ctx, kind, node.ParentID); err != nil {
			return err
		}

		nameChanged := in.Name != nil && newName != node.Name
		if nameChanged {
			if kind.UniqueNames() {
				taken, err := tx.SiblingNameExists(ctx, kind, node.ParentID, newName)
				if err != nil {
					return err
				}
				if taken {
					return errs.NewDuplicateNameError(newName)
				}
			}
			if node.IsLivePost() {
				if _, err := e.snapshot(ctx, tx, node); err != nil {
					return err
				}
			}
			node.Name = newName
		}

		oldPath := node.SlugPath
		if in.Slug != nil && *in.Slug != node.Slug {
			newPath := JoinPath(ParentPath(oldPath), *in.Slug)
			if err := AssertUniquePath(ctx, tx, kind, newPath, &node.ID); err != nil {
				return err
			}
			node.Slug = *in.Slug
			node.SlugPath = newPath
		}

		if node.SlugPath != oldPath {
			if err := tx.LockSubtree(ctx, kind, oldPath); err != nil {
				return err
			}
		}
		if err := tx.Save(ctx, node); err != nil {
			return err
		}
		if node.SlugPath != oldPath {
			n, err := tx.RewritePathPrefix(ctx, kind, oldPath, node.SlugPath)
			if err != nil {
				return err
			}
			change.Rewritten = n
		}
		change.Node = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, kind, "postRename", change)
	return &change, nil
}

// Move reparents a node (nil moves it to the root), keeping its slug and
// rewriting every descendant path in the same transaction.
func (e *Engine) Move(ctx context.Context, kind models.Kind, id uuid.UUID, newParentID *uuid.UUID) (*TreeChange, error) {
	var change TreeChange
	err := e.inTx(ctx, "move", func(tx database.NodeRepo) error {
		node, err := lockLive(ctx, tx, kind, id, errs.NewInvalidNodeError, tx.LockNode)
		if err != nil {
			return err
		}
		// The subtree is locked before the new parent, so two crossing moves
		// deadlock and one aborts instead of both committing a cycle.
		if err := tx.LockSubtree(ctx, kind, node.SlugPath); err != nil {
			return err
		}
		if err := tx.LockSiblings(ctx, kind, newParentID); err != nil {
			return err
		}

		parent, err := loadParent(ctx, tx, kind, newParentID)
		if err != nil {
			return err
		}
		if parent != nil && IsDescendantPath(parent.SlugPath, node.SlugPath) {
			return errs.NewInvalidParentError(parent.ID.String(), "is the node itself or one of its descendants")
		}

		oldPath := node.SlugPath
		newPath := JoinPath(pathOf(parent), node.Slug)
		change.Node = node
		if newPath == oldPath {
			return nil
		}

		if kind.UniqueNames() {
			taken, err := tx.SiblingNameExists(ctx, kind, newParentID, node.Name)
			if err != nil {
				return err
			}
			if taken {
				return errs.NewDuplicateNameError(node.Name)
			}
		}
		if err := AssertUniquePath(ctx, tx, kind, newPath, &node.ID); err != nil {
			return err
		}

		node.ParentID = newParentID
		node.SlugPath = newPath
		if err := tx.Save(ctx, node); err != nil {
			return err
		}
		n, err := tx.RewritePathPrefix(ctx, kind, oldPath, newPath)
		if err != nil {
			return err
		}
		change.Rewritten = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, kind, "postMove", change)
	return &change, nil
}

// Delete removes each node with its whole subtree, plus the versions of
// every deleted post. Unknown ids are skipped. Asset bytes no longer
// referenced by any node are removed after commit; failures there are only
// logged.
func (e *Engine) Delete(ctx context.Context, kind models.Kind, ids []uuid.UUID) ([]uuid.UUID, error) {
	var deleted []uuid.UUID
	var keys []string

	err := e.inTx(ctx, "delete", func(tx database.NodeRepo) error {
		for _, id := range ids {
			if err := tx.LockNode(ctx, id); err != nil && !errs.IsNotFound(err) {
				return err
			}
		}
		roots, err := tx.FindByIDs(ctx, kind, ids)
		if err != nil {
			return err
		}

		seen := make(map[uuid.UUID]bool)
		var doomed []*models.Node
		for _, root := range roots {
			if seen[root.ID] {
				continue
			}
			if err := tx.LockSubtree(ctx, kind, root.SlugPath); err != nil {
				return err
			}
			subtree, err := tx.FindDescendants(ctx, kind, root.SlugPath)
			if err != nil {
				return err
			}
			for _, n := range append([]*models.Node{root}, subtree...) {
				if !seen[n.ID] {
					seen[n.ID] = true
					doomed = append(doomed, n)
				}
			}
		}

		var posts []uuid.UUID
		for _, n := range doomed {
			deleted = append(deleted, n.ID)
			if n.IsLivePost() {
				posts = append(posts, n.ID)
			}
			if n.StorageKey != nil && *n.StorageKey != "" {
				keys = append(keys, *n.StorageKey)
			}
		}
		versions, err := tx.FindVersionIDs(ctx, posts)
		if err != nil {
			return err
		}
		deleted = append(deleted, versions...)

		_, err = tx.Delete(ctx, deleted)
		return err
	})
	if err != nil {
		return nil, err
	}

	if deleted == nil {
		deleted = []uuid.UUID{}
	}
	if len(keys) > 0 {
		e.cleaner.Schedule(keys)
	}
	e.notify(ctx, kind, "postDelete", map[string]interface{}{"ids": deleted})
	return deleted, nil
}
