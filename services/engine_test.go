package services

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/database/inmemory"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/rpupo63/content-tree-backend/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Notify(ctx context.Context, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeDriver struct {
	mu      sync.Mutex
	objects map[string]bool
	deletes [][]string
	err     error
}

func newFakeDriver(keys ...string) *fakeDriver {
	d := &fakeDriver{objects: map[string]bool{}}
	for _, k := range keys {
		d.objects[k] = true
	}
	return d
}

func (d *fakeDriver) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.objects[key] {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (d *fakeDriver) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.objects[key] {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key}, nil
}

func (d *fakeDriver) Delete(ctx context.Context, keys []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletes = append(d.deletes, append([]string(nil), keys...))
	if d.err != nil {
		return d.err
	}
	for _, k := range keys {
		delete(d.objects, k)
	}
	return nil
}

func (d *fakeDriver) deletedKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, batch := range d.deletes {
		out = append(out, batch...)
	}
	sort.Strings(out)
	return out
}

type testEnv struct {
	engine   *Engine
	store    *inmemory.Store
	clock    *fakeClock
	notifier *recorder
	driver   *fakeDriver
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    inmemory.New(),
		clock:    &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		notifier: &recorder{},
		driver:   newFakeDriver(),
	}
	o := Options{
		Store:    env.store,
		Notifier: env.notifier,
		Storage:  env.driver,
		Clock:    env.clock.Now,
		Logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	env.engine = NewEngine(o)
	return env
}

func (env *testEnv) create(t *testing.T, kind models.Kind, parent *models.Node, slug string, opts ...func(*CreateInput)) *models.Node {
	t.Helper()
	in := CreateInput{Slug: slug, Name: slug}
	if parent != nil {
		id := parent.ID
		in.ParentID = &id
	}
	for _, opt := range opts {
		opt(&in)
	}
	node, err := env.engine.Create(context.Background(), kind, in)
	require.NoError(t, err)
	return node
}

func withType(t models.NodeType) func(*CreateInput) {
	return func(in *CreateInput) { in.Type = t }
}

func withMeta(meta map[string]interface{}) func(*CreateInput) {
	return func(in *CreateInput) { in.Meta = meta }
}

// allLive walks the tree of kind from its roots.
func (env *testEnv) allLive(t *testing.T, kind models.Kind) []*models.Node {
	t.Helper()
	ctx := context.Background()
	var out []*models.Node
	queue := []*uuid.UUID{nil}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := env.engine.Children(ctx, kind, parent)
		require.NoError(t, err)
		for _, c := range children {
			out = append(out, c)
			id := c.ID
			queue = append(queue, &id)
		}
	}
	return out
}

// assertPathInvariant checks that every live node's path is its parent's
// path joined with its slug, and that paths are unique.
func (env *testEnv) assertPathInvariant(t *testing.T, kind models.Kind) {
	t.Helper()
	nodes := env.allLive(t, kind)
	byID := make(map[uuid.UUID]*models.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	paths := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		parentPath := ""
		if n.ParentID != nil {
			p, ok := byID[*n.ParentID]
			require.True(t, ok, "parent of %s missing", n.SlugPath)
			parentPath = p.SlugPath
		}
		require.Equal(t, JoinPath(parentPath, n.Slug), n.SlugPath)
		require.False(t, paths[n.SlugPath], "duplicate path %s", n.SlugPath)
		paths[n.SlugPath] = true
	}
}
