package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/rpupo63/content-tree-backend/models"
)

// setupRoutes mounts the tree surface under /{kind}, where kind is posts,
// assets or tags. Post-only and asset-only routes share the same prefix and
// reject the other kinds with a 404.
func setupRoutes(r chi.Router, handlers *routeHandlers, authMiddleware authMiddleware) {
	r.Get("/health", handlers.healthHandler.health())

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.authenticate)
		r.Use(ColoredHTTPLoggingMiddleware)

		r.Route("/{kind}", func(r chi.Router) {
			r.Use(kindContext)

			// Node Handler endpoints
			r.Get("/", handlers.nodeHandler.findByPath())
			r.Post("/", handlers.nodeHandler.createNode())
			r.Get("/children", handlers.nodeHandler.listChildren())
			r.Post("/delete", handlers.nodeHandler.deleteNodes())
			r.Get("/{id}", handlers.nodeHandler.getNode())
			r.Patch("/{id}", handlers.nodeHandler.renameNode())
			r.Post("/{id}/move", handlers.nodeHandler.moveNode())
			r.Post("/{id}/copy", handlers.nodeHandler.copyNode())
			r.Get("/{id}/ancestors", handlers.nodeHandler.getAncestors())
			r.Get("/{id}/descendants", handlers.nodeHandler.getDescendants())

			// Post Handler endpoints
			r.Group(func(r chi.Router) {
				r.Use(requireKind(models.KindPost))

				r.Post("/publish", handlers.postHandler.publish())
				r.Post("/unpublish", handlers.postHandler.unpublish())
				r.Get("/live", handlers.postHandler.findLive())
				r.Put("/{id}/content", handlers.postHandler.updateContent())
				r.Get("/{id}/versions", handlers.postHandler.listVersions())
				r.Delete("/{id}/versions", handlers.postHandler.deleteVersions())
				r.Post("/{id}/versions/{versionId}/restore", handlers.postHandler.restoreVersion())
				r.Get("/{id}/versions/{versionId}/diff", handlers.postHandler.diffVersion())
			})

			// Asset bytes
			r.Group(func(r chi.Router) {
				r.Use(requireKind(models.KindAsset))

				r.Get("/{id}/content", handlers.nodeHandler.streamAsset())
			})
		})
	})
}
