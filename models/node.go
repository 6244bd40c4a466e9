package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Kind selects which tree a node belongs to. Each kind is an independent
// materialized-path tree sharing the nodes table.
type Kind string

const (
	KindPost  Kind = "post"
	KindAsset Kind = "asset"
	KindTag   Kind = "tag"
)

// NodeType is the per-kind discriminator.
type NodeType string

const (
	TypePost             NodeType = "post"
	TypePage             NodeType = "page"
	TypeFragment         NodeType = "fragment"
	TypePostFolder       NodeType = "folder"
	TypeHierarchicalPost NodeType = "hierarchical_post"
	TypePostVersion      NodeType = "post_version"

	TypeFile   NodeType = "file"
	TypeFolder NodeType = "folder"

	TypeTag       NodeType = "tag"
	TypeNamespace NodeType = "namespace"
)

// Status is the stored publish state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// VersionPathPrefix marks synthetic version paths. The underscore is outside
// every slug grammar, so a version path never collides with a live one.
const VersionPathPrefix = "_version/"

var kindTypes = map[Kind][]NodeType{
	KindPost:  {TypePost, TypePage, TypeFragment, TypePostFolder, TypeHierarchicalPost},
	KindAsset: {TypeFile, TypeFolder},
	KindTag:   {TypeTag, TypeNamespace},
}

// ParseKind accepts both singular and plural forms ("post", "posts").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "post", "posts":
		return KindPost, nil
	case "asset", "assets":
		return KindAsset, nil
	case "tag", "tags":
		return KindTag, nil
	}
	return "", fmt.Errorf("unknown node kind %q", s)
}

// DefaultType is used when a create request does not name a type.
func (k Kind) DefaultType() NodeType {
	switch k {
	case KindAsset:
		return TypeFile
	case KindTag:
		return TypeTag
	default:
		return TypePost
	}
}

// Allows reports whether t is a live node type of kind k.
func (k Kind) Allows(t NodeType) bool {
	for _, allowed := range kindTypes[k] {
		if allowed == t {
			return true
		}
	}
	return false
}

// UniqueNames reports whether sibling names must be distinct for this kind.
// Assets and tags behave like a file system; posts may share titles.
func (k Kind) UniqueNames() bool {
	return k == KindAsset || k == KindTag
}

// Node is the generic tree row behind posts, assets, tags and post versions.
type Node struct {
	ID             uuid.UUID                   `json:"id" db:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid();not null"`
	Kind           Kind                        `json:"kind" db:"kind" gorm:"type:text;not null;index:idx_node_kind_parent,priority:1"`
	Type           NodeType                    `json:"type" db:"type" gorm:"type:text;not null"`
	Name           string                      `json:"name" db:"name" gorm:"type:text;not null"`
	Slug           string                      `json:"slug" db:"slug" gorm:"type:text;not null"`
	SlugPath       string                      `json:"slugPath" db:"slug_path" gorm:"type:text;not null"`
	ParentID       *uuid.UUID                  `json:"parentId,omitempty" db:"parent_id" gorm:"type:uuid;index:idx_node_kind_parent,priority:2"`
	Status         Status                      `json:"status,omitempty" db:"status" gorm:"type:text"`
	PublishedAt    *time.Time                  `json:"publishedAt,omitempty" db:"published_at" gorm:"type:timestamptz"`
	PublishedFrom  *time.Time                  `json:"publishedFrom,omitempty" db:"published_from" gorm:"type:timestamptz"`
	PublishedUntil *time.Time                  `json:"publishedUntil,omitempty" db:"published_until" gorm:"type:timestamptz"`
	ContentType    *string                     `json:"contentType,omitempty" db:"content_type" gorm:"type:text"`
	Meta           datatypes.JSONMap           `json:"meta,omitempty" db:"meta" gorm:"type:jsonb"`
	Tags           datatypes.JSONSlice[string] `json:"tags,omitempty" db:"tags" gorm:"type:jsonb"`
	StorageKey     *string                     `json:"storageKey,omitempty" db:"storage_key" gorm:"type:text;index"`
	Revision       int                         `json:"revision,omitempty" db:"revision" gorm:"type:integer;not null;default:0"`
	AuthorID       *string                     `json:"authorId,omitempty" db:"author_id" gorm:"type:text"`
	CreatedAt      time.Time                   `json:"createdAt" db:"created_at" gorm:"type:timestamptz;not null"`
	UpdatedAt      time.Time                   `json:"updatedAt" db:"updated_at" gorm:"type:timestamptz;not null"`
}

func (Node) TableName() string { return "nodes" }

// IsVersion reports whether the node is a post_version snapshot.
func (n *Node) IsVersion() bool {
	return n.Type == TypePostVersion
}

// IsLivePost reports whether the node is a post that is not a version.
func (n *Node) IsLivePost() bool {
	return n.Kind == KindPost && !n.IsVersion()
}

// Clone returns a deep copy. Meta goes through a JSON round trip so nested
// maps and slices are never shared between the copy and the original.
func (n *Node) Clone() (*Node, error) {
	c := *n
	meta, err := CloneMeta(n.Meta)
	if err != nil {
		return nil, err
	}
	c.Meta = meta
	if n.Tags != nil {
		c.Tags = append(datatypes.JSONSlice[string]{}, n.Tags...)
	}
	c.ParentID = cloneUUID(n.ParentID)
	c.PublishedAt = cloneTime(n.PublishedAt)
	c.PublishedFrom = cloneTime(n.PublishedFrom)
	c.PublishedUntil = cloneTime(n.PublishedUntil)
	c.ContentType = cloneString(n.ContentType)
	c.StorageKey = cloneString(n.StorageKey)
	c.AuthorID = cloneString(n.AuthorID)
	return &c, nil
}

// CloneMeta deep-copies a meta bag.
func CloneMeta(m datatypes.JSONMap) (datatypes.JSONMap, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	out := datatypes.JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return out, nil
}

// PublishState is the set of columns toggled by publish/unpublish.
type PublishState struct {
	Status         Status
	PublishedAt    *time.Time
	PublishedFrom  *time.Time
	PublishedUntil *time.Time
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
