package services

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	folder := env.create(t, models.KindAsset, nil, "docs", withType(models.TypeFolder))
	for _, slug := range []string{"a.pdf", "b.pdf"} {
		env.create(t, models.KindAsset, folder, slug, func(in *CreateInput) {
			if in.Slug == "a.pdf" {
				in.Name = "Report"
			} else {
				in.Name = "Report (1)"
			}
		})
	}

	err := env.store.Transaction(ctx, func(tx database.NodeRepo) error {
		name, err := EnsureUnique(ctx, tx, models.KindAsset, &folder.ID, "Report")
		require.NoError(t, err)
		assert.Equal(t, "Report (2)", name)

		name, err = EnsureUnique(ctx, tx, models.KindAsset, &folder.ID, "Summary")
		require.NoError(t, err)
		assert.Equal(t, "Summary", name)

		name, err = EnsureUnique(ctx, tx, models.KindAsset, nil, "Report")
		require.NoError(t, err)
		assert.Equal(t, "Report", name, "siblings only")

		slug, err := ensureUniqueSlug(ctx, tx, models.KindAsset, "docs", "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "a-1.pdf", slug)
		return nil
	})
	require.NoError(t, err)
}

func TestAssertUniquePath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	node := env.create(t, models.KindPost, nil, "taken")

	assert.NoError(t, AssertUniquePath(ctx, env.store, models.KindPost, "free", nil))
	assert.NoError(t, AssertUniquePath(ctx, env.store, models.KindPost, "taken", &node.ID))
	assert.True(t, errs.IsDuplicatePath(AssertUniquePath(ctx, env.store, models.KindPost, "taken", nil)))
	assert.NoError(t, AssertUniquePath(ctx, env.store, models.KindTag, "taken", nil), "kinds are separate trees")
}

// Scenario E
func TestConcurrentInserts_ResolveDistinctNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	parent := env.create(t, models.KindAsset, nil, "shared", withType(models.TypeFolder))

	var wg sync.WaitGroup
	names := make([]string, 2)
	errors := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node, err := env.engine.Create(ctx, models.KindAsset, CreateInput{
				ParentID:    &parent.ID,
				Name:        "Report",
				Type:        models.TypeFolder,
				ResolveName: true,
			})
			errors[i] = err
			if err == nil {
				names[i] = node.Name
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errors[0])
	require.NoError(t, errors[1])
	sort.Strings(names)
	assert.Equal(t, []string{"Report", "Report (1)"}, names)
	env.assertPathInvariant(t, models.KindAsset)
}

func TestConcurrentInserts_WithoutResolutionOneFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	parent := env.create(t, models.KindAsset, nil, "shared", withType(models.TypeFolder))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Create(ctx, models.KindAsset, CreateInput{
				ParentID: &parent.ID,
				Name:     "Report",
				Type:     models.TypeFolder,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var failures []error
	for err := range results {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	var apiErr *errs.ApiErr
	require.ErrorAs(t, failures[0], &apiErr)
	assert.True(t, apiErr.IsRecoverable())
	assert.True(t, errs.IsDuplicateName(failures[0]))
}
