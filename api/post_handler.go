package api

import (
	"net/http"

	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/services"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// postHandler serves the post-only surface: content updates, versions and
// publishing.
type postHandler struct {
	responder Responder
	logger    zerolog.Logger
	engine    *services.Engine
	baseURL   string
}

func newPostHandler(engine *services.Engine, baseURL string) postHandler {
	logger := log.With().Str("handlerName", "postHandler").Logger()

	return postHandler{
		responder: NewResponder(logger),
		logger:    logger,
		engine:    engine,
		baseURL:   baseURL,
	}
}

// updateContent snapshots the post, then applies the new content
// @Summary Update post content
// @Description Every content update stores the previous state as a new version.
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID" format(uuid)
// @Success 200 {object} models.Node
// @Failure 404 {object} ErrorResponse "invalid_post"
// @Router /posts/{id}/content [put]
func (h postHandler) updateContent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req contentRequest
		if err := decodeJSON(r, "update content", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		post, err := h.engine.UpdateContent(r.Context(), id, services.ContentInput{
			Name:        req.Name,
			Meta:        req.Meta,
			Tags:        req.Tags,
			ContentType: req.ContentType,
		})
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, post)
	}
}

// publish publishes posts, optionally with their descendants
// @Summary Publish posts
// @Tags Posts
// @Accept json
// @Produce json
// @Success 200 {object} NodeCollection
// @Failure 400 {object} ErrorResponse "invalid_ids"
// @Router /posts/publish [post]
func (h postHandler) publish() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishRequest
		if err := decodeJSON(r, "publish", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if len(req.IDs) == 0 {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("ids"))
			return
		}

		posts, err := h.engine.Publish(r.Context(), req.IDs, services.PublishOptions{
			Recursive: req.Recursive,
			From:      req.PublishedFrom,
			Until:     req.PublishedUntil,
		})
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		h.logger.Info().Int("count", len(posts)).Msg("posts published")
		h.responder.WriteJSON(w, newNodeCollection(posts))
	}
}

func (h postHandler) unpublish() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishRequest
		if err := decodeJSON(r, "unpublish", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if len(req.IDs) == 0 {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("ids"))
			return
		}

		posts, err := h.engine.Unpublish(r.Context(), req.IDs, services.PublishOptions{Recursive: req.Recursive})
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		h.logger.Info().Int("count", len(posts)).Msg("posts unpublished")
		h.responder.WriteJSON(w, newNodeCollection(posts))
	}
}

// findLive returns the post at ?path= only while it is live
func (h postHandler) findLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("path"))
			return
		}

		post, err := h.engine.FindLive(r.Context(), path)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		resp := LivePostResponse{Node: post}
		if h.baseURL != "" {
			resp.URL = services.BuildPostURL(h.baseURL, post.SlugPath)
		}
		h.responder.WriteJSON(w, resp)
	}
}

func (h postHandler) listVersions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		versions, err := h.engine.ListVersions(r.Context(), id)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, versions)
	}
}

// restoreVersion copies a version's content back onto its post
// @Summary Restore version
// @Description The current state is snapshotted first, so a restore can itself be undone.
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID" format(uuid)
// @Param versionId path string true "Version ID" format(uuid)
// @Success 200 {object} models.Node
// @Failure 404 {object} ErrorResponse "invalid_post, invalid_version"
// @Router /posts/{id}/versions/{versionId}/restore [post]
func (h postHandler) restoreVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		versionID, err := uuidParam(r, "versionId")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		post, err := h.engine.RestoreVersion(r.Context(), id, versionID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, post)
	}
}

func (h postHandler) diffVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		versionID, err := uuidParam(r, "versionId")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		patch, err := h.engine.DiffVersion(r.Context(), id, versionID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, DiffResponse{Patch: patch})
	}
}

func (h postHandler) deleteVersions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req idsRequest
		if err := decodeJSON(r, "delete versions", &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		deleted, err := h.engine.DeleteVersions(r.Context(), id, req.IDs)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, DeletedResponse{DeletedIDs: deleted})
	}
}
