package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/rpupo63/content-tree-backend/services"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// nodeHandler serves the operations shared by posts, assets and tags. The
// kind comes from the {kind} path segment.
type nodeHandler struct {
	responder Responder
	logger    zerolog.Logger
	engine    *services.Engine
}

func newNodeHandler(engine *services.Engine) nodeHandler {
	logger := log.With().Str("handlerName", "nodeHandler").Logger()

	return nodeHandler{
		responder: NewResponder(logger),
		logger:    logger,
		engine:    engine,
	}
}

// createNode creates a node under an optional parent
// @Summary Create node
// @Description Creates a post, asset or tag. The slug path is derived from the parent.
// @Tags Nodes
// @Accept json
// @Produce json
// @Param kind path string true "posts, assets or tags"
// @Success 201 {object} models.Node
// @Failure 400 {object} ErrorResponse "invalid_parent, invalid_slug"
// @Failure 409 {object} ErrorResponse "duplicate_name, duplicate_path"
// @Router /{kind} [post]
func (h nodeHandler) createNode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req createNodeRequest
		if err := decodeJSON(r, "create node", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		node, err := h.engine.Create(r.Context(), kind, services.CreateInput{
			ParentID:    req.ParentID,
			Slug:        req.Slug,
			Name:        req.Name,
			Type:        req.Type,
			Meta:        req.Meta,
			Tags:        req.Tags,
			ContentType: req.ContentType,
			StorageKey:  req.StorageKey,
			ResolveName: req.ResolveName,
		})
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		h.responder.WriteStatusJSON(w, http.StatusCreated, node)
	}
}

// findByPath looks a node up by its slug path
// @Summary Find node by path
// @Tags Nodes
// @Produce json
// @Param kind path string true "posts, assets or tags"
// @Param path query string true "slug path, e.g. docs/intro"
// @Success 200 {object} models.Node
// @Failure 404 {object} ErrorResponse "invalid_node"
// @Router /{kind} [get]
func (h nodeHandler) findByPath() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		path := r.URL.Query().Get("path")
		if path == "" {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("path"))
			return
		}

		node, err := h.engine.FindByPath(r.Context(), kind, path)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, node)
	}
}

func (h nodeHandler) getNode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		node, err := h.engine.Get(r.Context(), kind, id)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, node)
	}
}

// listChildren lists direct children of ?parentId=, or the roots
func (h nodeHandler) listChildren() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		parentID, err := optionalUUIDQuery(r, "parentId")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		children, err := h.engine.Children(r.Context(), kind, parentID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, newNodeCollection(children))
	}
}

// getAncestors returns the ancestor chain, nearest first
func (h nodeHandler) getAncestors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		ancestors, err := h.engine.FindAncestors(r.Context(), kind, id)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, newNodeCollection(ancestors))
	}
}

func (h nodeHandler) getDescendants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		descendants, err := h.engine.FindDescendants(r.Context(), kind, id)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, newNodeCollection(descendants))
	}
}

// renameNode changes a node's name and/or slug
// @Summary Rename node
// @Description Renaming the slug rewrites the path of every descendant in the same transaction.
// @Tags Nodes
// @Accept json
// @Produce json
// @Param kind path string true "posts, assets or tags"
// @Param id path string true "Node ID" format(uuid)
// @Success 200 {object} services.TreeChange "Updated node and number of rewritten descendants"
// @Failure 404 {object} ErrorResponse "invalid_node"
// @Failure 409 {object} ErrorResponse "duplicate_path, duplicate_name"
// @Router /{kind}/{id} [patch]
func (h nodeHandler) renameNode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req renameRequest
		if err := decodeJSON(r, "rename node", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		change, err := h.engine.Rename(r.Context(), kind, id, services.RenameInput{Name: req.Name, Slug: req.Slug})
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, change)
	}
}

func (h nodeHandler) moveNode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req moveRequest
		if err := decodeJSON(r, "move node", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		change, err := h.engine.Move(r.Context(), kind, id, req.ParentID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, change)
	}
}

// copyNode duplicates a node, or its whole subtree
// @Summary Copy node
// @Tags Nodes
// @Accept json
// @Produce json
// @Param kind path string true "posts, assets or tags"
// @Param id path string true "Source node ID" format(uuid)
// @Success 201 {object} NodeCollection "Created copies, parents first"
// @Failure 404 {object} ErrorResponse "invalid_source"
// @Failure 409 {object} ErrorResponse "duplicate_slug"
// @Router /{kind}/{id}/copy [post]
func (h nodeHandler) copyNode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req copyRequest
		if err := decodeJSON(r, "copy node", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		created, err := h.engine.Copy(r.Context(), kind, id, services.CopyInput{
			ParentID:  req.ParentID,
			Name:      req.Name,
			Slug:      req.Slug,
			Recursive: req.Recursive,
		})
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteStatusJSON(w, http.StatusCreated, newNodeCollection(created))
	}
}

// deleteNodes deletes each id with its subtree; unknown ids are ignored
func (h nodeHandler) deleteNodes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ctxGetKind(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req idsRequest
		if err := decodeJSON(r, "delete nodes", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		deleted, err := h.engine.Delete(r.Context(), kind, req.IDs)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, DeletedResponse{DeletedIDs: deleted})
	}
}

// streamAsset writes the stored bytes of a file asset
func (h nodeHandler) streamAsset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		asset, body, err := h.engine.OpenAsset(r.Context(), id)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		defer body.Close()

		contentType := "application/octet-stream"
		if asset.ContentType != nil && *asset.ContentType != "" {
			contentType = *asset.ContentType
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(asset.Slug))
		if _, err := io.Copy(w, body); err != nil {
			h.logger.Error().Err(err).Str("assetId", asset.ID.String()).Msg("error streaming asset")
		}
	}
}

// requireKind rejects requests whose {kind} is not kind
func requireKind(kind models.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, err := ctxGetKind(r.Context()); err != nil || got != kind {
				NewResponder(log.Logger).WriteError(w, errs.NewNotFoundError("no such route for this kind"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
