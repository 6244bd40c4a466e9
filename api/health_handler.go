package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type healthHandler struct {
	responder Responder
	logger    zerolog.Logger
	check     func(context.Context) error
}

func newHealthHandler(check func(context.Context) error) healthHandler {
	logger := log.With().Str("handlerName", "healthHandler").Logger()

	return healthHandler{
		responder: NewResponder(logger),
		logger:    logger,
		check:     check,
	}
}

// health reports whether the store answers
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h healthHandler) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.check != nil {
			if err := h.check(r.Context()); err != nil {
				h.logger.Error().Err(err).Msg("health check failed")
				h.responder.WriteStatusJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		h.responder.WriteJSON(w, map[string]string{"status": "ok"})
	}
}
