package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withKey(key string) func(*CreateInput) {
	return func(in *CreateInput) { in.StorageKey = &key }
}

func TestDelete_CleansUnreferencedBytes(t *testing.T) {
	env := newTestEnv(t)
	env.driver.objects["u/a.png"] = true
	env.driver.objects["u/shared.png"] = true
	ctx := context.Background()

	img := env.create(t, models.KindAsset, nil, "img", withType(models.TypeFolder))
	env.create(t, models.KindAsset, img, "a.png", withKey("u/a.png"))
	shared := env.create(t, models.KindAsset, img, "shared.png", withKey("u/shared.png"))
	other := env.create(t, models.KindAsset, nil, "other", withType(models.TypeFolder))
	_, err := env.engine.Copy(ctx, models.KindAsset, shared.ID, CopyInput{ParentID: &other.ID})
	require.NoError(t, err)

	_, err = env.engine.Delete(ctx, models.KindAsset, []uuid.UUID{img.ID})
	require.NoError(t, err)
	env.engine.Cleaner().Wait()

	assert.Equal(t, []string{"u/a.png"}, env.driver.deletedKeys(), "the copy still references shared.png")

	_, err = env.engine.Delete(ctx, models.KindAsset, []uuid.UUID{other.ID})
	require.NoError(t, err)
	env.engine.Cleaner().Wait()

	assert.Equal(t, []string{"u/a.png", "u/shared.png"}, env.driver.deletedKeys())
}

func TestDelete_StorageFailureDoesNotRollBack(t *testing.T) {
	env := newTestEnv(t)
	env.driver.objects["u/a.png"] = true
	env.driver.err = errors.New("bucket unavailable")
	ctx := context.Background()

	asset := env.create(t, models.KindAsset, nil, "a.png", withKey("u/a.png"))
	deleted, err := env.engine.Delete(ctx, models.KindAsset, []uuid.UUID{asset.ID})
	require.NoError(t, err)
	env.engine.Cleaner().Wait()

	assert.Equal(t, []uuid.UUID{asset.ID}, deleted)
	_, err = env.engine.Get(ctx, models.KindAsset, asset.ID)
	assert.True(t, errs.IsInvalidNode(err))
}

func TestAssetCleaner_RunBatches(t *testing.T) {
	env := newTestEnv(t)
	driver := newFakeDriver()
	cleaner := NewAssetCleaner(env.store, driver, 2, zerolog.Nop())

	keys := make([]string, 0, 2501)
	for i := 0; i < 2500; i++ {
		keys = append(keys, fmt.Sprintf("k/%d", i))
	}
	keys = append(keys, "k/0", "")

	result := cleaner.Run(context.Background(), keys)
	assert.Equal(t, 2500, result.Deleted)
	assert.Zero(t, result.Failed)
	assert.Len(t, driver.deletes, 3)
}

func TestAssetCleaner_NoDriver(t *testing.T) {
	env := newTestEnv(t)
	cleaner := NewAssetCleaner(env.store, nil, 0, zerolog.Nop())
	cleaner.Schedule([]string{"k"})
	cleaner.Wait()
	assert.Equal(t, CleanupResult{}, cleaner.Run(context.Background(), []string{"k"}))
}
