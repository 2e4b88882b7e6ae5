package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports the server version, controller phase and the health
// of every optional component. Any failing component or an unusable device
// registry makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.health)+1)
	healthy := true

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	if s.devices.Usable() {
		components["hardware"] = "ok"
	} else {
		components["hardware"] = "no usable devices"
		healthy = false
	}

	st := s.controller.Status()
	status, code := "ok", http.StatusOK
	if !healthy || st.Stopped {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"phase":      st.Phase,
		"components": components,
	})
}

// handleStatus returns the controller snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleListDevices returns hardware availability from the last self-test.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
		"usable":  s.devices.Usable(),
	})
}
