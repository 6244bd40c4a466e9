package services

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/rpupo63/content-tree-backend/storage"
)

// OpenAsset returns a file asset and a reader over its stored bytes. The
// caller closes the reader.
func (e *Engine) OpenAsset(ctx context.Context, id uuid.UUID) (*models.Node, io.ReadCloser, error) {
	asset, err := e.Get(ctx, models.KindAsset, id)
	if err != nil {
		return nil, nil, err
	}
	if asset.Type != models.TypeFile || asset.StorageKey == nil || e.storage == nil {
		return nil, nil, errs.NewNotFoundError("asset has no stored content")
	}

	body, err := e.storage.Read(ctx, *asset.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, errs.NewNotFoundError("stored content is missing")
	}
	if err != nil {
		return nil, nil, errs.NewStorageError("read", *asset.StorageKey, err)
	}
	return asset, body, nil
}
