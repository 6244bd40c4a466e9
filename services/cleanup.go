package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultCleanupConcurrency = 4

// AssetCleaner deletes asset bytes after the tree deletion that orphaned them
// has committed. The tree is the source of truth: failures here are logged
// and the bytes are left for reconciliation.
type AssetCleaner struct {
	refs        database.NodeRepo
	driver      storage.Driver
	concurrency int
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// CleanupResult summarises one cleanup run.
type CleanupResult struct {
	Deleted int
	Skipped int
	Failed  int
}

func NewAssetCleaner(refs database.NodeRepo, driver storage.Driver, concurrency int, logger zerolog.Logger) *AssetCleaner {
	if concurrency <= 0 {
		concurrency = defaultCleanupConcurrency
	}
	return &AssetCleaner{
		refs:        refs,
		driver:      driver,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "assetCleaner").Logger(),
	}
}

// Schedule runs a cleanup in the background, detached from any request.
func (c *AssetCleaner) Schedule(keys []string) {
	if c.driver == nil || len(keys) == 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(context.Background(), keys)
	}()
}

// Wait blocks until every scheduled cleanup has finished.
func (c *AssetCleaner) Wait() {
	c.wg.Wait()
}

// Run deletes every key that no node references any more, in batches of
// storage.MaxDeleteBatch with bounded concurrency.
func (c *AssetCleaner) Run(ctx context.Context, keys []string) CleanupResult {
	var result CleanupResult
	if c.driver == nil {
		return result
	}

	seen := make(map[string]bool, len(keys))
	var orphaned []string
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		refs, err := c.refs.CountByStorageKey(ctx, key)
		if err != nil {
			c.logger.Error().Err(err).Str("key", key).Msg("failed to count references, keeping bytes")
			result.Skipped++
			continue
		}
		if refs > 0 {
			result.Skipped++
			continue
		}
		orphaned = append(orphaned, key)
	}

	var deleted, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, batch := range storage.Batches(orphaned, storage.MaxDeleteBatch) {
		batch := batch
		g.Go(func() error {
			if err := c.driver.Delete(ctx, batch); err != nil {
				failed.Add(int64(len(batch)))
				storageErr := errs.NewStorageError("delete", batch[0], err)
				c.logger.Error().Err(storageErr).Int("batchSize", len(batch)).Msg(storageErr.GetFullError())
				return storageErr
			}
			deleted.Add(int64(len(batch)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn().Int64("failed", failed.Load()).Msg("asset cleanup finished with failures")
	}

	result.Deleted = int(deleted.Load())
	result.Failed = int(failed.Load())
	c.logger.Debug().
		Int("deleted", result.Deleted).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("asset cleanup")
	return result
}
