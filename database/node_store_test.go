package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestTranslate(t *testing.T) {
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	tests := []struct {
		name  string
		in    error
		check func(t *testing.T, out error)
	}{
		{
			name:  "nil",
			in:    nil,
			check: func(t *testing.T, out error) { assert.NoError(t, out) },
		},
		{
			name:  "record not found",
			in:    gorm.ErrRecordNotFound,
			check: func(t *testing.T, out error) { assert.True(t, errs.IsNotFound(out)) },
		},
		{
			name:  "wrapped record not found",
			in:    fmt.Errorf("first: %w", gorm.ErrRecordNotFound),
			check: func(t *testing.T, out error) { assert.True(t, errs.IsNotFound(out)) },
		},
		{
			name: "unique violation",
			in:   &pgconn.PgError{Code: "23505", ConstraintName: "idx_nodes_live_slug_path"},
			check: func(t *testing.T, out error) {
				assert.True(t, errs.IsUniqueConstraintViolationError(out))
				assert.Contains(t, out.Error(), "idx_nodes_live_slug_path")
			},
		},
		{
			name: "wrapped unique violation",
			in:   fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}),
			check: func(t *testing.T, out error) {
				assert.True(t, errs.IsUniqueConstraintViolationError(out))
			},
		},
		{
			name: "other postgres error passes through",
			in:   deadlock,
			check: func(t *testing.T, out error) {
				assert.Same(t, deadlock, out)
				assert.False(t, errs.IsUniqueConstraintViolationError(out))
				assert.False(t, errs.IsNotFound(out))
			},
		},
		{
			name: "plain error passes through",
			in:   errors.New("connection reset"),
			check: func(t *testing.T, out error) {
				assert.EqualError(t, out, "connection reset")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, translate(tc.in))
		})
	}
}

type statement struct {
	SQL  string
	Vars []interface{}
}

// dryRunStore builds a NodeStore that renders SQL without a connection.
func dryRunStore(t *testing.T) (*NodeStore, *[]statement) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "host=localhost user=cms dbname=cms sslmode=disable",
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)

	var stmts []statement
	capture := func(tx *gorm.DB) {
		stmts = append(stmts, statement{
			SQL:  tx.Statement.SQL.String(),
			Vars: append([]interface{}(nil), tx.Statement.Vars...),
		})
	}
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture_query", capture))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:capture_update", capture))
	require.NoError(t, db.Callback().Delete().After("gorm:delete").Register("test:capture_delete", capture))
	require.NoError(t, db.Callback().Raw().After("gorm:raw").Register("test:capture_raw", capture))

	return NewNodeStore(db), &stmts
}

func TestRewritePathPrefix_Statement(t *testing.T) {
	store, stmts := dryRunStore(t)

	_, err := store.RewritePathPrefix(context.Background(), models.KindPost, "café", "menu")
	require.NoError(t, err)

	require.Len(t, *stmts, 1)
	got := (*stmts)[0]
	assert.True(t, strings.HasPrefix(got.SQL, `UPDATE "nodes" SET`), got.SQL)
	assert.Contains(t, got.SQL, "|| substr(slug_path, ")
	assert.Contains(t, got.SQL, "starts_with(slug_path, ")
	assert.Contains(t, got.SQL, "type <> ")
	assert.Contains(t, got.Vars, "menu")
	assert.Contains(t, got.Vars, "café/")
	// substr is 1-based and counts characters: "café" is 4 runes but 5 bytes.
	assert.Contains(t, got.Vars, 5)
	assert.NotContains(t, got.Vars, 6)
	assert.Contains(t, got.Vars, models.TypePostVersion)
}

func TestSetPublishState_Statement(t *testing.T) {
	store, stmts := dryRunStore(t)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	_, err := store.SetPublishState(context.Background(), ids, models.PublishState{Status: models.StatusPublished})
	require.NoError(t, err)

	require.Len(t, *stmts, 1)
	got := (*stmts)[0]
	for _, column := range []string{`"status"=`, `"published_at"=`, `"published_from"=`, `"published_until"=`, `"updated_at"=`} {
		assert.Contains(t, got.SQL, column)
	}
	assert.Contains(t, got.SQL, "id IN (")
	assert.Contains(t, got.Vars, models.StatusPublished)
	assert.Contains(t, got.Vars, models.KindPost)
	assert.Contains(t, got.Vars, ids[0])
	assert.Contains(t, got.Vars, ids[1])

	*stmts = nil
	n, err := store.SetPublishState(context.Background(), nil, models.PublishState{Status: models.StatusDraft})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, *stmts)
}

func TestDeleteVersions_OnlyTouchesVersionsOfThePost(t *testing.T) {
	store, stmts := dryRunStore(t)
	postID := uuid.New()
	versionID := uuid.New()

	deleted, err := store.DeleteVersions(context.Background(), postID, []uuid.UUID{versionID})
	require.NoError(t, err)
	assert.Empty(t, deleted)

	// No rows come back in a dry run, so only the guarded lookup is issued.
	require.Len(t, *stmts, 1)
	got := (*stmts)[0]
	assert.True(t, strings.HasPrefix(got.SQL, `SELECT "id" FROM "nodes"`), got.SQL)
	assert.Contains(t, got.SQL, "type = ")
	assert.Contains(t, got.SQL, "parent_id = ")
	assert.Contains(t, got.Vars, models.TypePostVersion)
	assert.Contains(t, got.Vars, postID)
	assert.Contains(t, got.Vars, versionID)
}

func TestLocks_Statements(t *testing.T) {
	store, stmts := dryRunStore(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.LockNode(ctx, id))
	require.NoError(t, store.ShareLockNode(ctx, id))
	require.NoError(t, store.LockSubtree(ctx, models.KindAsset, "media"))
	require.NoError(t, store.LockSiblings(ctx, models.KindAsset, nil))

	require.Len(t, *stmts, 4)
	assert.True(t, strings.HasSuffix((*stmts)[0].SQL, "FOR UPDATE"), (*stmts)[0].SQL)
	assert.True(t, strings.HasSuffix((*stmts)[1].SQL, "FOR SHARE"), (*stmts)[1].SQL)

	subtree := (*stmts)[2]
	assert.True(t, strings.HasSuffix(subtree.SQL, "FOR UPDATE"), subtree.SQL)
	assert.Contains(t, subtree.SQL, "starts_with(slug_path, ")
	assert.Contains(t, subtree.Vars, "media/")
	assert.Contains(t, subtree.Vars, models.KindAsset)

	assert.Equal(t, "SELECT pg_advisory_xact_lock(hashtext($1))", (*stmts)[3].SQL)
	assert.Equal(t, []interface{}{"asset:root"}, (*stmts)[3].Vars)
}

func TestNodeIndexes_LivePathUniqueness(t *testing.T) {
	unique := nodeIndexes[0]

	assert.Contains(t, unique, "CREATE UNIQUE INDEX")
	assert.Contains(t, unique, "(kind, slug_path)")
	assert.Contains(t, unique, "WHERE type <> '"+string(models.TypePostVersion)+"'")
	assert.Contains(t, nodeIndexes[1], "text_pattern_ops")
	assert.Contains(t, nodeIndexes[2], "WHERE type = '"+string(models.TypePostVersion)+"'")
}

func TestDSN(t *testing.T) {
	dsn, err := DSN(map[string]string{"DB_TYPE": "postgres", "DATABASE_URL": "postgres://cms@db/cms"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://cms@db/cms", dsn)

	dsn, err = DSN(map[string]string{"DB_TYPE": "supa", "SUPABASE_DB_HOST": "db.example", "SUPABASE_DB_USER": "cms"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "host=db.example")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "sslmode=require")

	_, err = DSN(map[string]string{"DB_TYPE": "postgres"})
	assert.Error(t, err)

	_, err = DSN(map[string]string{"DB_TYPE": "mysql"})
	assert.Error(t, err)
}
