package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/hooks"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/rpupo63/content-tree-backend/storage"
	"github.com/rs/zerolog"
)

// Options configures an Engine. Store is required; everything else has a
// usable zero value.
type Options struct {
	Store    database.Store
	Notifier hooks.Notifier
	Storage  storage.Driver
	Clock    func() time.Time
	Logger   zerolog.Logger
	// VersionRetention caps versions kept per post; 0 keeps all.
	VersionRetention   int
	CleanupConcurrency int
}

// Engine runs every tree, version, publish and copy operation. It holds no
// per-request state; each mutating call is one store transaction.
type Engine struct {
	store     database.Store
	notifier  hooks.Notifier
	storage   storage.Driver
	cleaner   *AssetCleaner
	now       func() time.Time
	logger    zerolog.Logger
	retention int
}

func NewEngine(opts Options) *Engine {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = hooks.Nop{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger.With().Str("serviceName", "contentTree").Logger()

	return &Engine{
		store:     opts.Store,
		notifier:  notifier,
		storage:   opts.Storage,
		cleaner:   NewAssetCleaner(opts.Store, opts.Storage, opts.CleanupConcurrency, logger),
		now:       clock,
		logger:    logger,
		retention: opts.VersionRetention,
	}
}

// Cleaner exposes the post-commit byte cleanup so callers can wait for it on shutdown.
func (e *Engine) Cleaner() *AssetCleaner {
	return e.cleaner
}

// Storage returns the configured byte store, or nil.
func (e *Engine) Storage() storage.Driver {
	return e.storage
}

// inTx runs fn in one transaction. Taxonomy errors pass through untouched,
// a unique-index violation becomes the recoverable DuplicatePath, anything
// else is a fatal TransactionFailure.
func (e *Engine) inTx(ctx context.Context, operation string, fn func(tx database.NodeRepo) error) error {
	err := e.store.Transaction(ctx, fn)
	if err == nil {
		return nil
	}

	var apiErr *errs.ApiErr
	if errors.As(err, &apiErr) {
		return err
	}
	if errs.IsUniqueConstraintViolationError(err) {
		return errs.NewDuplicatePathError("")
	}

	e.logger.Error().Err(err).Str("operation", operation).Msg("transaction rolled back")
	return errs.NewTransactionFailedError(operation, err)
}

func (e *Engine) notify(ctx context.Context, kind models.Kind, action string, payload any) {
	e.notifier.Notify(ctx, string(kind)+"/"+action, payload)
}

// loadLive fetches a live node of kind through repo, turning a miss (or a
// row of another kind, or a version) into the error built by missing.
func loadLive(ctx context.Context, repo database.NodeRepo, kind models.Kind, id uuid.UUID, missing func(id string) *errs.ApiErr) (*models.Node, error) {
	node, err := repo.FindByID(ctx, id)
	if errs.IsNotFound(err) {
		return nil, missing(id.String())
	}
	if err != nil {
		return nil, err
	}
	if node.Kind != kind || node.IsVersion() {
		return nil, missing(id.String())
	}
	return node, nil
}

// lockLive row-locks id with lock and only then reads it, so the node is the
// latest committed version and its path can't move under the caller until
// the transaction ends.
func lockLive(ctx context.Context, repo database.NodeRepo, kind models.Kind, id uuid.UUID, missing func(id string) *errs.ApiErr, lock func(context.Context, uuid.UUID) error) (*models.Node, error) {
	if err := lock(ctx, id); err != nil {
		if errs.IsNotFound(err) {
			return nil, missing(id.String())
		}
		return nil, err
	}
	return loadLive(ctx, repo, kind, id, missing)
}

// loadParent resolves a prospective parent for a node of kind. Versions are
// never parents and asset parents must be folders. The parent row is share
// locked before it is read, so a concurrent rename or move can't rewrite its
// path between this read and the caller's insert.
func loadParent(ctx context.Context, repo database.NodeRepo, kind models.Kind, parentID *uuid.UUID) (*models.Node, error) {
	if parentID == nil {
		return nil, nil
	}
	err := repo.ShareLockNode(ctx, *parentID)
	if errs.IsNotFound(err) {
		return nil, errs.NewInvalidParentError(parentID.String(), "does not exist")
	}
	if err != nil {
		return nil, err
	}
	parent, err := repo.FindByID(ctx, *parentID)
	if errs.IsNotFound(err) {
		return nil, errs.NewInvalidParentError(parentID.String(), "does not exist")
	}
	if err != nil {
		return nil, err
	}
	if parent.Kind != kind || parent.IsVersion() {
		return nil, errs.NewInvalidParentError(parentID.String(), "is not a "+string(kind))
	}
	if kind == models.KindAsset && parent.Type != models.TypeFolder {
		return nil, errs.NewInvalidParentError(parentID.String(), "is not a folder")
	}
	return parent, nil
}

func pathOf(n *models.Node) string {
	if n == nil {
		return ""
	}
	return n.SlugPath
}

func readErr(operation string, err error) error {
	var apiErr *errs.ApiErr
	if errors.As(err, &apiErr) {
		return err
	}
	return errs.NewDatabaseError(operation, "node", err)
}
