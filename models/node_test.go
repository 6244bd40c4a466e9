package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestNode_CloneIsDeep(t *testing.T) {
	parent := uuid.New()
	ct := "article"
	n := &Node{
		ID:          uuid.New(),
		Kind:        KindPost,
		Type:        TypePost,
		ParentID:    &parent,
		ContentType: &ct,
		Meta: datatypes.JSONMap{
			"title": "Hello",
			"blocks": []interface{}{
				map[string]interface{}{"kind": "text", "body": "first"},
			},
		},
		Tags: datatypes.JSONSlice[string]{"go"},
	}

	c, err := n.Clone()
	require.NoError(t, err)

	c.Meta["title"] = "Changed"
	c.Meta["blocks"].([]interface{})[0].(map[string]interface{})["body"] = "mutated"
	c.Tags[0] = "rust"
	*c.ParentID = uuid.New()
	*c.ContentType = "page"

	assert.Equal(t, "Hello", n.Meta["title"])
	assert.Equal(t, "first", n.Meta["blocks"].([]interface{})[0].(map[string]interface{})["body"])
	assert.Equal(t, "go", n.Tags[0])
	assert.Equal(t, parent, *n.ParentID)
	assert.Equal(t, "article", *n.ContentType)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("posts")
	require.NoError(t, err)
	assert.Equal(t, KindPost, k)

	k, err = ParseKind("asset")
	require.NoError(t, err)
	assert.Equal(t, KindAsset, k)

	_, err = ParseKind("users")
	assert.Error(t, err)
}

func TestKind_Allows(t *testing.T) {
	assert.True(t, KindPost.Allows(TypePage))
	assert.False(t, KindPost.Allows(TypePostVersion))
	assert.True(t, KindAsset.Allows(TypeFolder))
	assert.False(t, KindTag.Allows(TypeFile))
}

func TestFindColumnMismatches(t *testing.T) {
	missing := findColumnMismatches(
		[]string{"id", "kind", "legacy_flag"},
		modelColumns(Node{}),
	)
	assert.Equal(t, []string{"legacy_flag"}, missing)
}
