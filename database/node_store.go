package database

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const uniqueViolation = "23505"

// NodeStore is the Postgres implementation of Store.
type NodeStore struct {
	db *gorm.DB
}

func NewNodeStore(db *gorm.DB) *NodeStore {
	return &NodeStore{db}
}

// Transaction runs fn against a repo bound to a single database transaction.
func (r *NodeStore) Transaction(ctx context.Context, fn func(tx NodeRepo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&NodeStore{db: tx})
	})
}

func (r *NodeStore) live(ctx context.Context, kind models.Kind) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("kind = ? AND type <> ?", kind, models.TypePostVersion)
}

// FindByID returns a node by its ID
func (r *NodeStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	var node models.Node
	if err := r.db.WithContext(ctx).First(&node, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &node, nil
}

func (r *NodeStore) FindByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) ([]*models.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var nodes []*models.Node
	err := r.live(ctx, kind).Where("id IN ?", ids).Order("slug_path").Find(&nodes).Error
	return nodes, translate(err)
}

func (r *NodeStore) FindByPath(ctx context.Context, kind models.Kind, path string) (*models.Node, error) {
	var node models.Node
	if err := r.live(ctx, kind).Where("slug_path = ?", path).First(&node).Error; err != nil {
		return nil, translate(err)
	}
	return &node, nil
}

func (r *NodeStore) FindByPaths(ctx context.Context, kind models.Kind, paths []string) ([]*models.Node, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	var nodes []*models.Node
	err := r.live(ctx, kind).Where("slug_path IN ?", paths).Find(&nodes).Error
	return nodes, translate(err)
}

// FindDescendants uses the text_pattern_ops index through starts_with.
func (r *NodeStore) FindDescendants(ctx context.Context, kind models.Kind, path string) ([]*models.Node, error) {
	var nodes []*models.Node
	err := r.live(ctx, kind).
		Where("starts_with(slug_path, ?)", path+"/").
		Order("slug_path").
		Find(&nodes).Error
	return nodes, translate(err)
}

func (r *NodeStore) FindChildren(ctx context.Context, kind models.Kind, parentID *uuid.UUID) ([]*models.Node, error) {
	var nodes []*models.Node
	err := withParent(r.live(ctx, kind), parentID).Order("name").Find(&nodes).Error
	return nodes, translate(err)
}

func (r *NodeStore) SiblingNameExists(ctx context.Context, kind models.Kind, parentID *uuid.UUID, name string) (bool, error) {
	var count int64
	err := withParent(r.live(ctx, kind), parentID).
		Model(&models.Node{}).
		Where("name = ?", name).
		Count(&count).Error
	return count > 0, translate(err)
}

func (r *NodeStore) PathExists(ctx context.Context, kind models.Kind, path string) (bool, error) {
	var count int64
	err := r.live(ctx, kind).Model(&models.Node{}).Where("slug_path = ?", path).Count(&count).Error
	return count > 0, translate(err)
}

func (r *NodeStore) CountByStorageKey(ctx context.Context, key string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Node{}).Where("storage_key = ?", key).Count(&count).Error
	return count, translate(err)
}

// Create inserts a new node
func (r *NodeStore) Create(ctx context.Context, node *models.Node) error {
	return translate(r.db.WithContext(ctx).Create(node).Error)
}

// Save writes every column of an existing node
func (r *NodeStore) Save(ctx context.Context, node *models.Node) error {
	return translate(r.db.WithContext(ctx).Save(node).Error)
}

func (r *NodeStore) RewritePathPrefix(ctx context.Context, kind models.Kind, oldPath, newPath string) (int64, error) {
	// substr is 1-based and counts characters, not bytes.
	offset := utf8.RuneCountInString(oldPath) + 1
	res := r.live(ctx, kind).
		Model(&models.Node{}).
		Where("starts_with(slug_path, ?)", oldPath+"/").
		Updates(map[string]interface{}{
			"slug_path":  gorm.Expr("? || substr(slug_path, ?)", newPath, offset),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, translate(res.Error)
}

func (r *NodeStore) SetPublishState(ctx context.Context, ids []uuid.UUID, state models.PublishState) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.live(ctx, models.KindPost).
		Model(&models.Node{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":          state.Status,
			"published_at":    state.PublishedAt,
			"published_from":  state.PublishedFrom,
			"published_until": state.PublishedUntil,
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, translate(res.Error)
}

// Delete removes nodes by id, versions included
func (r *NodeStore) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Node{})
	return res.RowsAffected, translate(res.Error)
}

func (r *NodeStore) versions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Node{}).Where("type = ?", models.TypePostVersion)
}

func (r *NodeStore) ListVersions(ctx context.Context, postID uuid.UUID) ([]*models.Node, error) {
	var nodes []*models.Node
	err := r.versions(ctx).Where("parent_id = ?", postID).Order("revision DESC").Find(&nodes).Error
	return nodes, translate(err)
}

func (r *NodeStore) CountVersions(ctx context.Context, postID uuid.UUID) (int64, error) {
	var count int64
	err := r.versions(ctx).Where("parent_id = ?", postID).Count(&count).Error
	return count, translate(err)
}

func (r *NodeStore) MaxRevision(ctx context.Context, postID uuid.UUID) (int, error) {
	var max int
	err := r.versions(ctx).
		Where("parent_id = ?", postID).
		Select("COALESCE(MAX(revision), 0)").
		Scan(&max).Error
	return max, translate(err)
}

func (r *NodeStore) FindVersionIDs(ctx context.Context, postIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.versions(ctx).Where("parent_id IN ?", postIDs).Pluck("id", &ids).Error
	return ids, translate(err)
}

func (r *NodeStore) DeleteVersions(ctx context.Context, postID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var deleted []uuid.UUID
	if err := r.versions(ctx).
		Where("parent_id = ? AND id IN ?", postID, ids).
		Pluck("id", &deleted).Error; err != nil {
		return nil, translate(err)
	}
	if len(deleted) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", deleted).Delete(&models.Node{}).Error; err != nil {
		return nil, translate(err)
	}
	return deleted, nil
}

func (r *NodeStore) LockNode(ctx context.Context, id uuid.UUID) error {
	var node models.Node
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&node, "id = ?", id).Error
	return translate(err)
}

func (r *NodeStore) ShareLockNode(ctx context.Context, id uuid.UUID) error {
	var node models.Node
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id").
		First(&node, "id = ?", id).Error
	return translate(err)
}

func (r *NodeStore) LockSubtree(ctx context.Context, kind models.Kind, path string) error {
	var ids []uuid.UUID
	err := r.live(ctx, kind).
		Model(&models.Node{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("starts_with(slug_path, ?)", path+"/").
		Pluck("id", &ids).Error
	return translate(err)
}

func (r *NodeStore) LockSiblings(ctx context.Context, kind models.Kind, parentID *uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", SiblingLockKey(kind, parentID)).Error
	return translate(err)
}

func withParent(db *gorm.DB, parentID *uuid.UUID) *gorm.DB {
	if parentID == nil {
		return db.Where("parent_id IS NULL")
	}
	return db.Where("parent_id = ?", *parentID)
}

// translate maps driver errors onto the errs sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", errs.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", errs.ErrUniqueConstraintViolation, pgErr.ConstraintName)
	}
	return err
}
