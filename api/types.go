package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/models"
)

// routeHandlers contains all the handlers for different route types
type routeHandlers struct {
	nodeHandler   nodeHandler
	postHandler   postHandler
	healthHandler healthHandler
}

// ErrorResponse represents an error response from the API
// @Description Error response structure
type ErrorResponse struct {
	Error   string `json:"error" example:"duplicate path: a node already exists at \"docs/intro\""`
	Code    string `json:"code,omitempty" example:"duplicate_path"`
	Status  string `json:"status" example:"error"`
	Field   string `json:"field,omitempty" example:"slug"`
	Details string `json:"details,omitempty" example:"Additional error details"`
	Cause   string `json:"cause,omitempty" example:"Underlying error cause"`
}

type createNodeRequest struct {
	ParentID    *uuid.UUID             `json:"parentId"`
	Slug        string                 `json:"slug"`
	Name        string                 `json:"name"`
	Type        models.NodeType        `json:"type"`
	Meta        map[string]interface{} `json:"meta"`
	Tags        []string               `json:"tags"`
	ContentType *string                `json:"contentType"`
	StorageKey  *string                `json:"storageKey"`
	ResolveName bool                   `json:"resolveName"`
}

type renameRequest struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

type moveRequest struct {
	ParentID *uuid.UUID `json:"parentId"`
}

type copyRequest struct {
	ParentID  *uuid.UUID `json:"parentId"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Recursive bool       `json:"recursive"`
}

type idsRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type publishRequest struct {
	IDs            []uuid.UUID `json:"ids"`
	Recursive      bool        `json:"recursive"`
	PublishedFrom  *time.Time  `json:"publishedFrom"`
	PublishedUntil *time.Time  `json:"publishedUntil"`
}

type contentRequest struct {
	Name        *string                `json:"name"`
	Meta        map[string]interface{} `json:"meta"`
	Tags        *[]string              `json:"tags"`
	ContentType *string                `json:"contentType"`
}

// NodeCollection is a list response
type NodeCollection struct {
	Nodes []*models.Node `json:"nodes"`
	Total int            `json:"total"`
}

func newNodeCollection(nodes []*models.Node) NodeCollection {
	if nodes == nil {
		nodes = []*models.Node{}
	}
	return NodeCollection{Nodes: nodes, Total: len(nodes)}
}

// DeletedResponse lists the ids removed by a delete
type DeletedResponse struct {
	DeletedIDs []uuid.UUID `json:"deletedIds"`
}

// LivePostResponse is a live post with its public URL, when one is configured
type LivePostResponse struct {
	Node *models.Node `json:"node"`
	URL  string       `json:"url,omitempty"`
}

// DiffResponse carries a JSON merge patch from a version to the live post
type DiffResponse struct {
	Patch json.RawMessage `json:"patch"`
}
