package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMeta(t *testing.T, env *testEnv, id uuid.UUID, meta map[string]interface{}) *models.Node {
	t.Helper()
	post, err := env.engine.UpdateContent(context.Background(), id, ContentInput{Meta: meta})
	require.NoError(t, err)
	return post
}

// Scenario B
func TestVersions_UpdateRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.create(t, models.KindPost, nil, "a", withMeta(map[string]interface{}{"body": "v0"}))

	setMeta(t, env, post.ID, map[string]interface{}{"body": "v1"})
	env.clock.Advance(1)
	setMeta(t, env, post.ID, map[string]interface{}{"body": "v2"})

	list, err := env.engine.ListVersions(ctx, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Count)
	require.Len(t, list.Versions, 2)
	assert.Equal(t, 2, list.Versions[0].Revision)
	assert.Equal(t, "v1", list.Versions[0].Meta["body"])
	assert.Equal(t, "v0", list.Versions[1].Meta["body"])

	older := list.Versions[1]
	restored, err := env.engine.RestoreVersion(ctx, post.ID, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.Meta, restored.Meta)

	count, err := env.engine.CountVersions(ctx, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count, "restore snapshots the current state first")

	latest, err := env.engine.ListVersions(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Versions[0].Meta["body"])
	assert.Contains(t, env.notifier.Events(), "post/postRestoreVersion")
}

func TestVersions_SnapshotPrecedesEveryUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.create(t, models.KindPost, nil, "p", withMeta(map[string]interface{}{"body": "start"}))

	updates := []ContentInput{
		{Meta: map[string]interface{}{"body": "one", "nested": map[string]interface{}{"k": "x"}}},
		{Name: strPtr("Renamed")},
		{Tags: &[]string{"go", "cms"}},
		{Meta: map[string]interface{}{"body": "two", "nested": map[string]interface{}{"k": "y"}}},
	}
	for _, in := range updates {
		before, err := env.engine.Get(ctx, models.KindPost, post.ID)
		require.NoError(t, err)
		countBefore, err := env.engine.CountVersions(ctx, post.ID)
		require.NoError(t, err)

		_, err = env.engine.UpdateContent(ctx, post.ID, in)
		require.NoError(t, err)

		list, err := env.engine.ListVersions(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, countBefore+1, list.Count)

		newest := list.Versions[0]
		assert.Equal(t, models.TypePostVersion, newest.Type)
		assert.Equal(t, post.ID, *newest.ParentID)
		assert.Equal(t, before.Name, newest.Name)
		assert.Equal(t, before.Meta, newest.Meta)
		assert.Equal(t, []string(before.Tags), []string(newest.Tags))
	}

	// Versions stay out of tree queries.
	descendants, err := env.engine.FindDescendants(ctx, models.KindPost, post.ID)
	require.NoError(t, err)
	assert.Empty(t, descendants)
	roots, err := env.engine.Children(ctx, models.KindPost, nil)
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}

func TestVersions_RenameSnapshotsOnNameChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.create(t, models.KindPost, nil, "p")

	_, err := env.engine.Rename(ctx, models.KindPost, post.ID, RenameInput{Slug: strPtr("q")})
	require.NoError(t, err)
	count, err := env.engine.CountVersions(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = env.engine.Rename(ctx, models.KindPost, post.ID, RenameInput{Name: strPtr("Q")})
	require.NoError(t, err)
	list, err := env.engine.ListVersions(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, list.Versions, 1)
	assert.Equal(t, "p", list.Versions[0].Name)
}

func TestVersions_RestoreRejectsForeignVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.create(t, models.KindPost, nil, "x")
	y := env.create(t, models.KindPost, nil, "y")
	setMeta(t, env, x.ID, map[string]interface{}{"body": "x1"})

	list, err := env.engine.ListVersions(ctx, x.ID)
	require.NoError(t, err)

	_, err = env.engine.RestoreVersion(ctx, y.ID, list.Versions[0].ID)
	assert.True(t, errs.IsInvalidVersion(err))

	_, err = env.engine.RestoreVersion(ctx, y.ID, x.ID)
	assert.True(t, errs.IsInvalidVersion(err), "a live post is not a version")

	count, err := env.engine.CountVersions(ctx, y.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "a failed restore leaves no snapshot behind")

	_, err = env.engine.ListVersions(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrInvalidPost)
}

func TestVersions_DeleteOnlyTouchesOwnVersions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	x := env.create(t, models.KindPost, nil, "x")
	y := env.create(t, models.KindPost, nil, "y")
	setMeta(t, env, x.ID, map[string]interface{}{"body": "x1"})
	setMeta(t, env, x.ID, map[string]interface{}{"body": "x2"})
	setMeta(t, env, y.ID, map[string]interface{}{"body": "y1"})

	xs, err := env.engine.ListVersions(ctx, x.ID)
	require.NoError(t, err)
	ys, err := env.engine.ListVersions(ctx, y.ID)
	require.NoError(t, err)

	deleted, err := env.engine.DeleteVersions(ctx, x.ID, []uuid.UUID{xs.Versions[0].ID, x.ID, y.ID, ys.Versions[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{xs.Versions[0].ID}, deleted)

	_, err = env.engine.Get(ctx, models.KindPost, x.ID)
	assert.NoError(t, err)
	_, err = env.engine.Get(ctx, models.KindPost, y.ID)
	assert.NoError(t, err)
	count, err := env.engine.CountVersions(ctx, y.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestVersions_Retention(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.VersionRetention = 2 })
	ctx := context.Background()
	post := env.create(t, models.KindPost, nil, "p")

	for _, body := range []string{"1", "2", "3", "4"} {
		setMeta(t, env, post.ID, map[string]interface{}{"body": body})
	}

	list, err := env.engine.ListVersions(ctx, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Count)
	assert.Equal(t, 4, list.Versions[0].Revision)
	assert.Equal(t, 3, list.Versions[1].Revision)
}

func TestVersions_Diff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.create(t, models.KindPost, nil, "p", withMeta(map[string]interface{}{"body": "old", "lead": "same"}))
	setMeta(t, env, post.ID, map[string]interface{}{"body": "new", "lead": "same"})

	list, err := env.engine.ListVersions(ctx, post.ID)
	require.NoError(t, err)

	patch, err := env.engine.DiffVersion(ctx, post.ID, list.Versions[0].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"meta":{"body":"new"}}`, string(patch))
}

func TestUpdateContent_UnknownPost(t *testing.T) {
	env := newTestEnv(t)
	tag := env.create(t, models.KindTag, nil, "go")

	_, err := env.engine.UpdateContent(context.Background(), tag.ID, ContentInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, errs.ErrInvalidPost)
}
