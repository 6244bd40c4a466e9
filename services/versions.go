package services

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"gorm.io/datatypes"
)

// ContentInput replaces the content-bearing fields of a post. Nil fields are
// left as they are; a non-nil Meta replaces the whole bag.
type ContentInput struct {
	Name        *string
	Meta        map[string]interface{}
	Tags        *[]string
	ContentType *string
}

// VersionList is a post's history, newest first.
type VersionList struct {
	Versions []*models.Node `json:"versions"`
	Count    int64          `json:"count"`
}

// snapshot persists the current state of post as a new post_version row
// inside tx. It must run before the mutation it protects.
func (e *Engine) snapshot(ctx context.Context, tx database.NodeRepo, post *models.Node) (*models.Node, error) {
	if err := tx.LockNode(ctx, post.ID); err != nil {
		return nil, err
	}
	revision, err := tx.MaxRevision(ctx, post.ID)
	if err != nil {
		return nil, err
	}

	meta, err := models.CloneMeta(post.Meta)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	author := ActorFrom(ctx)
	if author == nil {
		author = post.AuthorID
	}

	token := uuid.NewString()
	postID := post.ID
	version := &models.Node{
		ID:          uuid.New(),
		Kind:        models.KindPost,
		Type:        models.TypePostVersion,
		Name:        post.Name,
		Slug:        token,
		SlugPath:    models.VersionPathPrefix + token,
		ParentID:    &postID,
		ContentType: post.ContentType,
		Meta:        meta,
		Tags:        datatypes.JSONSlice[string](append([]string{}, post.Tags...)),
		Revision:    revision + 1,
		AuthorID:    author,
	}
	if err := tx.Create(ctx, version); err != nil {
		return nil, err
	}

	if e.retention > 0 {
		if err := e.prune(ctx, tx, post.ID); err != nil {
			return nil, err
		}
	}
	return version, nil
}

// prune drops the oldest versions beyond the retention cap.
func (e *Engine) prune(ctx context.Context, tx database.NodeRepo, postID uuid.UUID) error {
	versions, err := tx.ListVersions(ctx, postID)
	if err != nil {
		return err
	}
	if len(versions) <= e.retention {
		return nil
	}
	var stale []uuid.UUID
	for _, v := range versions[e.retention:] {
		stale = append(stale, v.ID)
	}
	removed, err := tx.DeleteVersions(ctx, postID, stale)
	if err != nil {
		return err
	}
	e.logger.Debug().Str("postId", postID.String()).Int("pruned", len(removed)).Msg("pruned versions")
	return nil
}

// UpdateContent snapshots a post and then applies in to it, atomically.
func (e *Engine) UpdateContent(ctx context.Context, id uuid.UUID, in ContentInput) (*models.Node, error) {
	var meta datatypes.JSONMap
	if in.Meta != nil {
		var err error
		if meta, err = models.CloneMeta(datatypes.JSONMap(in.Meta)); err != nil {
			return nil, errs.NewInvalidFieldError("meta", err.Error())
		}
	}
	if in.Name != nil && *in.Name == "" {
		return nil, errs.NewInvalidFieldError("name", "must not be empty")
	}

	var post *models.Node
	err := e.inTx(ctx, "update content", func(tx database.NodeRepo) error {
		var err error
		if post, err = lockLive(ctx, tx, models.KindPost, id, errs.NewInvalidPostError, tx.LockNode); err != nil {
			return err
		}
		if _, err := e.snapshot(ctx, tx, post); err != nil {
			return err
		}

		if in.Name != nil {
			post.Name = *in.Name
		}
		if meta != nil {
			post.Meta = meta
		}
		if in.Tags != nil {
			post.Tags = datatypes.JSONSlice[string](append([]string{}, (*in.Tags)...))
		}
		if in.ContentType != nil {
			post.ContentType = in.ContentType
		}
		return tx.Save(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, models.KindPost, "postUpdate", post)
	return post, nil
}

// ListVersions returns the versions of a post, newest first, with their count.
func (e *Engine) ListVersions(ctx context.Context, postID uuid.UUID) (*VersionList, error) {
	if _, err := loadLive(ctx, e.store, models.KindPost, postID, errs.NewInvalidPostError); err != nil {
		return nil, readErr("list versions", err)
	}
	versions, err := e.store.ListVersions(ctx, postID)
	if err != nil {
		return nil, readErr("list versions", err)
	}
	count, err := e.store.CountVersions(ctx, postID)
	if err != nil {
		return nil, readErr("count versions", err)
	}
	if versions == nil {
		versions = []*models.Node{}
	}
	return &VersionList{Versions: versions, Count: count}, nil
}

// CountVersions returns how many versions a post has.
func (e *Engine) CountVersions(ctx context.Context, postID uuid.UUID) (int64, error) {
	if _, err := loadLive(ctx, e.store, models.KindPost, postID, errs.NewInvalidPostError); err != nil {
		return 0, readErr("count versions", err)
	}
	count, err := e.store.CountVersions(ctx, postID)
	if err != nil {
		return 0, readErr("count versions", err)
	}
	return count, nil
}

// loadVersion fetches versionID and checks it belongs to postID.
func loadVersion(ctx context.Context, repo database.NodeRepo, postID, versionID uuid.UUID) (*models.Node, error) {
	version, err := repo.FindByID(ctx, versionID)
	if errs.IsNotFound(err) {
		return nil, errs.NewInvalidVersionError(postID.String(), versionID.String())
	}
	if err != nil {
		return nil, err
	}
	if !version.IsVersion() || version.ParentID == nil || *version.ParentID != postID {
		return nil, errs.NewInvalidVersionError(postID.String(), versionID.String())
	}
	return version, nil
}

// RestoreVersion snapshots the post (so the restore can itself be undone)
// and copies the version's name, meta, tags and content type back onto it.
func (e *Engine) RestoreVersion(ctx context.Context, postID, versionID uuid.UUID) (*models.Node, error) {
	var post *models.Node
	err := e.inTx(ctx, "restore version", func(tx database.NodeRepo) error {
		var err error
		if post, err = lockLive(ctx, tx, models.KindPost, postID, errs.NewInvalidPostError, tx.LockNode); err != nil {
			return err
		}
		version, err := loadVersion(ctx, tx, postID, versionID)
		if err != nil {
			return err
		}
		if _, err := e.snapshot(ctx, tx, post); err != nil {
			return err
		}

		meta, err := models.CloneMeta(version.Meta)
		if err != nil {
			return err
		}
		if meta == nil {
			meta = datatypes.JSONMap{}
		}
		post.Name = version.Name
		post.Meta = meta
		post.Tags = datatypes.JSONSlice[string](append([]string{}, version.Tags...))
		post.ContentType = version.ContentType
		return tx.Save(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, models.KindPost, "postRestoreVersion", map[string]interface{}{
		"post":      post,
		"versionId": versionID,
	})
	return post, nil
}

// DeleteVersions removes the given versions of a post. Ids that are not
// versions of that post, live nodes included, are ignored.
func (e *Engine) DeleteVersions(ctx context.Context, postID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	var deleted []uuid.UUID
	err := e.inTx(ctx, "delete versions", func(tx database.NodeRepo) error {
		if _, err := loadLive(ctx, tx, models.KindPost, postID, errs.NewInvalidPostError); err != nil {
			return err
		}
		var err error
		deleted, err = tx.DeleteVersions(ctx, postID, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []uuid.UUID{}
	}

	e.notify(ctx, models.KindPost, "postDeleteVersions", map[string]interface{}{
		"postId": postID,
		"ids":    deleted,
	})
	return deleted, nil
}

type contentDoc struct {
	Name        string                 `json:"name"`
	Meta        map[string]interface{} `json:"meta"`
	Tags        []string               `json:"tags"`
	ContentType *string                `json:"contentType"`
}

func contentOf(n *models.Node) ([]byte, error) {
	doc := contentDoc{
		Name:        n.Name,
		Meta:        map[string]interface{}(n.Meta),
		Tags:        []string(n.Tags),
		ContentType: n.ContentType,
	}
	if doc.Meta == nil {
		doc.Meta = map[string]interface{}{}
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return json.Marshal(doc)
}

// DiffVersion returns the RFC 7386 merge patch that turns the version's
// content into the post's current content. An empty object means no change.
func (e *Engine) DiffVersion(ctx context.Context, postID, versionID uuid.UUID) (json.RawMessage, error) {
	post, err := loadLive(ctx, e.store, models.KindPost, postID, errs.NewInvalidPostError)
	if err != nil {
		return nil, readErr("diff version", err)
	}
	version, err := loadVersion(ctx, e.store, postID, versionID)
	if err != nil {
		return nil, readErr("diff version", err)
	}

	from, err := contentOf(version)
	if err != nil {
		return nil, errs.NewInternalErrorWithCause("encode version", err)
	}
	to, err := contentOf(post)
	if err != nil {
		return nil, errs.NewInternalErrorWithCause("encode post", err)
	}
	patch, err := jsonpatch.CreateMergePatch(from, to)
	if err != nil {
		return nil, errs.NewInternalErrorWithCause(fmt.Sprintf("diff version %s", versionID), err)
	}
	return json.RawMessage(patch), nil
}
