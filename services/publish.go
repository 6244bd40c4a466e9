package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
)

// PublishOptions controls publish and unpublish. From and Until only apply
// to publish.
type PublishOptions struct {
	Recursive bool
	From      *time.Time
	Until     *time.Time
}

// IsLive reports whether post is visible at now: published, and inside its
// window. The window bounds are inclusive.
func IsLive(post *models.Node, now time.Time) bool {
	if post == nil || post.Status != models.StatusPublished {
		return false
	}
	if post.PublishedFrom != nil && now.Before(*post.PublishedFrom) {
		return false
	}
	if post.PublishedUntil != nil && now.After(*post.PublishedUntil) {
		return false
	}
	return true
}

// EndOfDay moves t to the last nanosecond of its calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// Publish marks posts published. publishedAt is now, publishedFrom defaults
// to now and publishedUntil is pushed to the end of its day.
//
// Parameters:
//   - ids: live post ids; any unknown id fails the whole request with invalid_ids
//   - opts.Recursive: also publish every descendant of each id
//
// Returns the updated posts ordered by slug path.
func (e *Engine) Publish(ctx context.Context, ids []uuid.UUID, opts PublishOptions) ([]*models.Node, error) {
	now := e.now()
	from := now
	if opts.From != nil {
		from = *opts.From
	}
	state := models.PublishState{
		Status:        models.StatusPublished,
		PublishedAt:   &now,
		PublishedFrom: &from,
	}
	if opts.Until != nil {
		until := EndOfDay(*opts.Until)
		if until.Before(from) {
			return nil, errs.NewInvalidFieldError("publishedUntil", "ends before publishedFrom")
		}
		state.PublishedUntil = &until
	}

	updated, err := e.setPublishState(ctx, "publish", ids, opts.Recursive, state)
	if err != nil {
		return nil, err
	}
	e.notify(ctx, models.KindPost, "postPublish", updated)
	return updated, nil
}

// Unpublish returns posts to draft and clears every publish field.
func (e *Engine) Unpublish(ctx context.Context, ids []uuid.UUID, opts PublishOptions) ([]*models.Node, error) {
	updated, err := e.setPublishState(ctx, "unpublish", ids, opts.Recursive, models.PublishState{
		Status: models.StatusDraft,
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, models.KindPost, "postUnpublish", updated)
	return updated, nil
}

func (e *Engine) setPublishState(ctx context.Context, operation string, ids []uuid.UUID, recursive bool, state models.PublishState) ([]*models.Node, error) {
	if len(ids) == 0 {
		return nil, errs.NewMissingRequiredFieldError("ids")
	}

	var updated []*models.Node
	err := e.inTx(ctx, operation, func(tx database.NodeRepo) error {
		targets, err := expandPosts(ctx, tx, ids, recursive)
		if err != nil {
			return err
		}
		if _, err := tx.SetPublishState(ctx, targets, state); err != nil {
			return err
		}
		updated, err = tx.FindByIDs(ctx, models.KindPost, targets)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// expandPosts checks every id is a live post and, when recursive, adds all
// their descendants.
func expandPosts(ctx context.Context, tx database.NodeRepo, ids []uuid.UUID, recursive bool) ([]uuid.UUID, error) {
	posts, err := tx.FindByIDs(ctx, models.KindPost, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[uuid.UUID]bool, len(posts))
	for _, p := range posts {
		found[p.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, errs.NewInvalidIDsError(missing)
	}

	targets := make([]uuid.UUID, 0, len(posts))
	seen := make(map[uuid.UUID]bool)
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}
	for _, p := range posts {
		add(p.ID)
		if !recursive {
			continue
		}
		descendants, err := tx.FindDescendants(ctx, models.KindPost, p.SlugPath)
		if err != nil {
			return nil, err
		}
		for _, d := range descendants {
			add(d.ID)
		}
	}
	return targets, nil
}

// FindLive returns the post at path only while it is live.
func (e *Engine) FindLive(ctx context.Context, path string) (*models.Node, error) {
	post, err := e.FindByPath(ctx, models.KindPost, path)
	if err != nil {
		return nil, err
	}
	if !IsLive(post, e.now()) {
		return nil, errs.NewInvalidNodeError(path)
	}
	return post, nil
}
