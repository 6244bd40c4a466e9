package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/services"
)

// initializeHandlers creates and returns all handlers organized in a routeHandlers struct
func initializeHandlers(engine *services.Engine, cfg map[string]string, health func(context.Context) error) *routeHandlers {
	return &routeHandlers{
		nodeHandler:   newNodeHandler(engine),
		postHandler:   newPostHandler(engine, services.GetBaseURL(cfg)),
		healthHandler: newHealthHandler(health),
	}
}

func decodeJSON(r *http.Request, payloadType string, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errs.NewMalformedPayloadError(payloadType, err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, errs.NewMissingRequiredFieldError(name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.NewInvalidFieldError(name, "must be a UUID")
	}
	return id, nil
}

// optionalUUIDQuery parses ?name=; an absent or empty value is nil.
func optionalUUIDQuery(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errs.NewInvalidFieldError(name, "must be a UUID")
	}
	return &id, nil
}
