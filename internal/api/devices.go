package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-presence/internal/presence"
)

// WebSocket event channels.
const (
	EventDeviceUpdated = "device.updated"
	EventDeviceNew     = "device.new"
)

// devicesResponse is the body of the device list and of WebSocket events.
type devicesResponse struct {
	RouterID string            `json:"router_id"`
	Devices  []presence.Record `json:"devices"`
	Count    int               `json:"count"`
}

// devicesPayload snapshots the whole registry.
func (s *Server) devicesPayload() devicesResponse {
	devices := s.engine.Devices().All()
	if devices == nil {
		devices = []presence.Record{}
	}
	return devicesResponse{RouterID: s.engine.UniqueID(), Devices: devices, Count: len(devices)}
}

// handleListDevices returns every known device.
// The optional connected=true|false query parameter filters by connectivity.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	resp := s.devicesPayload()

	if raw := r.URL.Query().Get("connected"); raw != "" {
		want, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "connected must be true or false")
			return
		}
		filtered := make([]presence.Record, 0, len(resp.Devices))
		for _, rec := range resp.Devices {
			if rec.Connected == want {
				filtered = append(filtered, rec)
			}
		}
		resp.Devices = filtered
		resp.Count = len(filtered)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	mac := normalizeMAC(chi.URLParam(r, "mac"))
	rec, ok := s.engine.Devices().Get(mac)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeviceHistory returns the device's recorded transitions, newest first.
// The history store may hold devices the live registry has not seen since a
// restart, so the registry is not consulted.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	mac := normalizeMAC(chi.URLParam(r, "mac"))
	entries, err := s.history.GetHistory(r.Context(), mac, limit)
	if err != nil {
		s.logger.Error("reading device history failed", "mac", mac, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mac":     mac,
		"history": entries,
		"count":   len(entries),
	})
}

// scanResponse summarises a triggered scan.
type scanResponse struct {
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms"`
	Hosts      int       `json:"hosts"`
	Skipped    int       `json:"skipped"`
	New        int       `json:"new"`
	Devices    int       `json:"devices"`
	Connected  int       `json:"connected"`
}

// handleScan runs a scan now, or joins the one already running.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Status().OK {
		writeUnavailable(w, "router setup failed; restart the service after fixing the router configuration")
		return
	}

	res := s.engine.ScanNow(r.Context())
	if res.Err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeRouter, res.Err.Error())
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		At:         res.At,
		DurationMS: res.Duration.Milliseconds(),
		Hosts:      res.Hosts,
		Skipped:    res.Skipped,
		New:        res.New,
		Devices:    res.Devices,
		Connected:  res.Connected,
	})
}

// normalizeMAC accepts the colon form as well as the underscore and dash
// forms used in MQTT topics and URLs, in any case.
func normalizeMAC(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("_", ":", "-", ":").Replace(s)
}
