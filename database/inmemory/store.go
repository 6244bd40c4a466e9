package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
)

// Store implements database.Store in memory. Transactions are serialised and
// run against a copy of the node map that replaces the committed map only
// when fn succeeds, so a failed transaction leaves no trace.
type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	nodes map[uuid.UUID]*models.Node
	now   func() time.Time
}

var _ database.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nodes: make(map[uuid.UUID]*models.Node),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx database.NodeRepo) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := make(map[uuid.UUID]*models.Node, len(s.nodes))
	for id, n := range s.nodes {
		working[id] = n
	}
	s.mu.RUnlock()

	tx := &state{nodes: working, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.nodes = working
	s.mu.Unlock()
	return nil
}

func (s *Store) read() *state {
	return &state{nodes: s.nodes, now: s.now}
}

// === Reads ===

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindByID(ctx, id)
}

func (s *Store) FindByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindByIDs(ctx, kind, ids)
}

func (s *Store) FindByPath(ctx context.Context, kind models.Kind, path string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindByPath(ctx, kind, path)
}

func (s *Store) FindByPaths(ctx context.Context, kind models.Kind, paths []string) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindByPaths(ctx, kind, paths)
}

func (s *Store) FindDescendants(ctx context.Context, kind models.Kind, path string) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindDescendants(ctx, kind, path)
}

func (s *Store) FindChildren(ctx context.Context, kind models.Kind, parentID *uuid.UUID) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindChildren(ctx, kind, parentID)
}

func (s *Store) SiblingNameExists(ctx context.Context, kind models.Kind, parentID *uuid.UUID, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().SiblingNameExists(ctx, kind, parentID, name)
}

func (s *Store) PathExists(ctx context.Context, kind models.Kind, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().PathExists(ctx, kind, path)
}

func (s *Store) CountByStorageKey(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().CountByStorageKey(ctx, key)
}

func (s *Store) ListVersions(ctx context.Context, postID uuid.UUID) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListVersions(ctx, postID)
}

func (s *Store) CountVersions(ctx context.Context, postID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().CountVersions(ctx, postID)
}

func (s *Store) MaxRevision(ctx context.Context, postID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().MaxRevision(ctx, postID)
}

func (s *Store) FindVersionIDs(ctx context.Context, postIDs []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindVersionIDs(ctx, postIDs)
}

// === Writes run as single-statement transactions ===

func (s *Store) Create(ctx context.Context, node *models.Node) error {
	return s.Transaction(ctx, func(tx database.NodeRepo) error { return tx.Create(ctx, node) })
}

func (s *Store) Save(ctx context.Context, node *models.Node) error {
	return s.Transaction(ctx, func(tx database.NodeRepo) error { return tx.Save(ctx, node) })
}

func (s *Store) RewritePathPrefix(ctx context.Context, kind models.Kind, oldPath, newPath string) (n int64, err error) {
	err = s.Transaction(ctx, func(tx database.NodeRepo) error {
		n, err = tx.RewritePathPrefix(ctx, kind, oldPath, newPath)
		return err
	})
	return n, err
}

func (s *Store) SetPublishState(ctx context.Context, ids []uuid.UUID, st models.PublishState) (n int64, err error) {
	err = s.Transaction(ctx, func(tx database.NodeRepo) error {
		n, err = tx.SetPublishState(ctx, ids, st)
		return err
	})
	return n, err
}

func (s *Store) Delete(ctx context.Context, ids []uuid.UUID) (n int64, err error) {
	err = s.Transaction(ctx, func(tx database.NodeRepo) error {
		n, err = tx.Delete(ctx, ids)
		return err
	})
	return n, err
}

func (s *Store) DeleteVersions(ctx context.Context, postID uuid.UUID, ids []uuid.UUID) (out []uuid.UUID, err error) {
	err = s.Transaction(ctx, func(tx database.NodeRepo) error {
		out, err = tx.DeleteVersions(ctx, postID, ids)
		return err
	})
	return out, err
}

// Locks are no-ops outside a transaction and inside one, since transactions
// never overlap.
func (s *Store) LockNode(ctx context.Context, id uuid.UUID) error {
	_, err := s.FindByID(ctx, id)
	return err
}

func (s *Store) ShareLockNode(ctx context.Context, id uuid.UUID) error {
	return s.LockNode(ctx, id)
}

func (s *Store) LockSubtree(ctx context.Context, kind models.Kind, path string) error {
	return nil
}

func (s *Store) LockSiblings(ctx context.Context, kind models.Kind, parentID *uuid.UUID) error {
	return nil
}

// state is the lock-free view used by reads and by open transactions.
// Stored nodes are never mutated; writes replace the map entry.
type state struct {
	nodes map[uuid.UUID]*models.Node
	now   func() time.Time
}

func isLive(n *models.Node, kind models.Kind) bool {
	return n.Kind == kind && !n.IsVersion()
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func clone(n *models.Node) (*models.Node, error) {
	c, err := n.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone node %s: %w", n.ID, err)
	}
	return c, nil
}

func (st *state) collect(match func(*models.Node) bool, less func(a, b *models.Node) bool) ([]*models.Node, error) {
	var out []*models.Node
	for _, n := range st.nodes {
		if !match(n) {
			continue
		}
		c, err := clone(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if less != nil {
		sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out, nil
}

func bySlugPath(a, b *models.Node) bool { return a.SlugPath < b.SlugPath }

func (st *state) FindByID(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	n, ok := st.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, errs.ErrNotFound)
	}
	return clone(n)
}

func (st *state) FindByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) ([]*models.Node, error) {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return st.collect(func(n *models.Node) bool {
		_, ok := want[n.ID]
		return ok && isLive(n, kind)
	}, bySlugPath)
}

func (st *state) FindByPath(ctx context.Context, kind models.Kind, path string) (*models.Node, error) {
	for _, n := range st.nodes {
		if isLive(n, kind) && n.SlugPath == path {
			return clone(n)
		}
	}
	return nil, fmt.Errorf("%s %q: %w", kind, path, errs.ErrNotFound)
}

func (st *state) FindByPaths(ctx context.Context, kind models.Kind, paths []string) ([]*models.Node, error) {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	return st.collect(func(n *models.Node) bool {
		_, ok := want[n.SlugPath]
		return ok && isLive(n, kind)
	}, bySlugPath)
}

func (st *state) FindDescendants(ctx context.Context, kind models.Kind, path string) ([]*models.Node, error) {
	prefix := path + "/"
	return st.collect(func(n *models.Node) bool {
		return isLive(n, kind) && strings.HasPrefix(n.SlugPath, prefix)
	}, bySlugPath)
}

func (st *state) FindChildren(ctx context.Context, kind models.Kind, parentID *uuid.UUID) ([]*models.Node, error) {
	return st.collect(func(n *models.Node) bool {
		return isLive(n, kind) && sameParent(n.ParentID, parentID)
	}, func(a, b *models.Node) bool { return a.Name < b.Name })
}

func (st *state) SiblingNameExists(ctx context.Context, kind models.Kind, parentID *uuid.UUID, name string) (bool, error) {
	for _, n := range st.nodes {
		if isLive(n, kind) && sameParent(n.ParentID, parentID) && n.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) PathExists(ctx context.Context, kind models.Kind, path string) (bool, error) {
	for _, n := range st.nodes {
		if isLive(n, kind) && n.SlugPath == path {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) CountByStorageKey(ctx context.Context, key string) (int64, error) {
	var count int64
	for _, n := range st.nodes {
		if n.StorageKey != nil && *n.StorageKey == key {
			count++
		}
	}
	return count, nil
}

// pathTaken reports whether another live node of kind already owns path.
func (st *state) pathTaken(kind models.Kind, path string, self uuid.UUID) bool {
	for _, n := range st.nodes {
		if n.ID != self && isLive(n, kind) && n.SlugPath == path {
			return true
		}
	}
	return false
}

func (st *state) Create(ctx context.Context, node *models.Node) error {
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	if _, exists := st.nodes[node.ID]; exists {
		return fmt.Errorf("node %s: %w", node.ID, errs.ErrUniqueConstraintViolation)
	}
	if !node.IsVersion() && st.pathTaken(node.Kind, node.SlugPath, node.ID) {
		return fmt.Errorf("%s %q: %w", node.Kind, node.SlugPath, errs.ErrUniqueConstraintViolation)
	}
	now := st.now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	if node.UpdatedAt.IsZero() {
		node.UpdatedAt = now
	}
	stored, err := clone(node)
	if err != nil {
		return err
	}
	st.nodes[node.ID] = stored
	return nil
}

func (st *state) Save(ctx context.Context, node *models.Node) error {
	if _, ok := st.nodes[node.ID]; !ok {
		return fmt.Errorf("node %s: %w", node.ID, errs.ErrNotFound)
	}
	if !node.IsVersion() && st.pathTaken(node.Kind, node.SlugPath, node.ID) {
		return fmt.Errorf("%s %q: %w", node.Kind, node.SlugPath, errs.ErrUniqueConstraintViolation)
	}
	node.UpdatedAt = st.now()
	stored, err := clone(node)
	if err != nil {
		return err
	}
	st.nodes[node.ID] = stored
	return nil
}

func (st *state) RewritePathPrefix(ctx context.Context, kind models.Kind, oldPath, newPath string) (int64, error) {
	prefix := oldPath + "/"
	rewritten := make(map[uuid.UUID]string)
	for id, n := range st.nodes {
		if isLive(n, kind) && strings.HasPrefix(n.SlugPath, prefix) {
			rewritten[id] = newPath + n.SlugPath[len(oldPath):]
		}
	}

	// The statement fails as a whole if any rewritten path lands on a
	// node outside the rewritten set.
	final := make(map[string]uuid.UUID)
	for id, n := range st.nodes {
		if !isLive(n, kind) {
			continue
		}
		path := n.SlugPath
		if p, ok := rewritten[id]; ok {
			path = p
		}
		if other, dup := final[path]; dup && other != id {
			return 0, fmt.Errorf("%s %q: %w", kind, path, errs.ErrUniqueConstraintViolation)
		}
		final[path] = id
	}

	now := st.now()
	for id, path := range rewritten {
		c, err := clone(st.nodes[id])
		if err != nil {
			return 0, err
		}
		c.SlugPath = path
		c.UpdatedAt = now
		st.nodes[id] = c
	}
	return int64(len(rewritten)), nil
}

func (st *state) SetPublishState(ctx context.Context, ids []uuid.UUID, ps models.PublishState) (int64, error) {
	var count int64
	now := st.now()
	for _, id := range ids {
		n, ok := st.nodes[id]
		if !ok || !isLive(n, models.KindPost) {
			continue
		}
		c, err := clone(n)
		if err != nil {
			return 0, err
		}
		c.Status = ps.Status
		c.PublishedAt = ps.PublishedAt
		c.PublishedFrom = ps.PublishedFrom
		c.PublishedUntil = ps.PublishedUntil
		c.UpdatedAt = now
		st.nodes[id] = c
		count++
	}
	return count, nil
}

func (st *state) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var count int64
	for _, id := range ids {
		if _, ok := st.nodes[id]; ok {
			delete(st.nodes, id)
			count++
		}
	}
	return count, nil
}

func isVersionOf(n *models.Node, postID uuid.UUID) bool {
	return n.IsVersion() && n.ParentID != nil && *n.ParentID == postID
}

func (st *state) ListVersions(ctx context.Context, postID uuid.UUID) ([]*models.Node, error) {
	return st.collect(func(n *models.Node) bool {
		return isVersionOf(n, postID)
	}, func(a, b *models.Node) bool { return a.Revision > b.Revision })
}

func (st *state) CountVersions(ctx context.Context, postID uuid.UUID) (int64, error) {
	var count int64
	for _, n := range st.nodes {
		if isVersionOf(n, postID) {
			count++
		}
	}
	return count, nil
}

func (st *state) MaxRevision(ctx context.Context, postID uuid.UUID) (int, error) {
	max := 0
	for _, n := range st.nodes {
		if isVersionOf(n, postID) && n.Revision > max {
			max = n.Revision
		}
	}
	return max, nil
}

func (st *state) FindVersionIDs(ctx context.Context, postIDs []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, postID := range postIDs {
		for id, n := range st.nodes {
			if isVersionOf(n, postID) {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (st *state) DeleteVersions(ctx context.Context, postID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	var deleted []uuid.UUID
	for _, id := range ids {
		n, ok := st.nodes[id]
		if !ok || !isVersionOf(n, postID) {
			continue
		}
		delete(st.nodes, id)
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (st *state) LockNode(ctx context.Context, id uuid.UUID) error {
	if _, ok := st.nodes[id]; !ok {
		return fmt.Errorf("node %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

func (st *state) ShareLockNode(ctx context.Context, id uuid.UUID) error {
	return st.LockNode(ctx, id)
}

// LockSubtree is a no-op: transactions already run one at a time.
func (st *state) LockSubtree(ctx context.Context, kind models.Kind, path string) error {
	return nil
}

func (st *state) LockSiblings(ctx context.Context, kind models.Kind, parentID *uuid.UUID) error {
	return nil
}
