package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/gray-logic-presence/internal/presence"
	"github.com/nerrad567/gray-logic-presence/internal/router"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/router", s.handleRouter)
			r.Post("/scan", s.handleScan)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Route("/{mac}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/history", s.handleDeviceHistory)
				})
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth reports "ok" when the engine is polling and "degraded" when
// setup failed and only the empty registry is served.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.engine.Status().OK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"devices": s.engine.Devices().Len(),
	})
}

// routerResponse describes the polled router and its setup outcome.
type routerResponse struct {
	UniqueID   string            `json:"unique_id"`
	Info       router.DeviceInfo `json:"device_info"`
	ShortModel string            `json:"short_model"`
	Status     statusResponse    `json:"status"`
}

type statusResponse struct {
	OK    bool               `json:"ok"`
	Kind  presence.ErrorKind `json:"kind,omitempty"`
	Error string             `json:"error,omitempty"`
}

func (s *Server) handleRouter(w http.ResponseWriter, _ *http.Request) {
	info := s.engine.DeviceInfo()
	st := s.engine.Status()

	resp := routerResponse{
		UniqueID:   s.engine.UniqueID(),
		Info:       info,
		ShortModel: info.ShortModel(),
		Status:     statusResponse{OK: st.OK, Kind: st.Kind},
	}
	if st.Err != nil {
		resp.Status.Error = st.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
