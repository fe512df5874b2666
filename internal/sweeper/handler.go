package sweeper

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"khata/internal/transport/http/shared"
	request "khata/pkg/platform/middleware/request"
)

type triggerResponse struct {
	Status   string `json:"status"`
	Matured  int    `json:"matured"`
	Repaired int    `json:"repaired"`
}

// Register mounts the on-demand trigger. The guard is supplied by the
// caller; production wraps the route with the ops-token middleware.
func (s *Sweeper) Register(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Route("/ops", func(r chi.Router) {
		r.With(guard).Post("/sweep", s.handleTrigger)
	})
}

func (s *Sweeper) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := s.RunNow(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "on-demand sweep failed",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	s.logger.InfoContext(ctx, "on-demand sweep finished",
		"request_id", request.GetRequestID(ctx),
		"matured", result.Matured,
		"repaired", result.Repaired,
	)
	shared.WriteJSON(w, http.StatusOK, triggerResponse{
		Status:   "success",
		Matured:  result.Matured,
		Repaired: result.Repaired,
	})
}
