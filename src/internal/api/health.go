package api

import (
	"fmt"
	"net/http"
)

// CheckHealth verifies the mark map is reachable and well-typed.
// GET /health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Healthy: true,
		Checks:  make(map[string]CheckResult),
	}

	if err := h.svc.Check(r.Context()); err != nil {
		response.Healthy = false
		response.Checks["mark_map"] = CheckResult{
			Passed:  false,
			Message: "Mark map check failed: " + err.Error(),
		}
	} else {
		response.Checks["mark_map"] = CheckResult{
			Passed:  true,
			Message: "Mark map is accessible",
		}
	}

	response.Checks["outlet_groups"] = CheckResult{
		Passed:  true,
		Message: h.svc.Catalog().String(),
	}

	if h.listeners != nil {
		for _, l := range h.listeners.Listeners() {
			check := CheckResult{Passed: l.Serving}
			switch {
			case l.Serving && l.Restarts == 0:
				check.Message = fmt.Sprintf("Serving on %s", l.Addr)
			case l.Serving:
				check.Message = fmt.Sprintf("Serving on %s after %d restart(s), last error: %s", l.Addr, l.Restarts, l.LastError)
			default:
				check.Message = fmt.Sprintf("Not serving on %s (%d restart(s)): %s", l.Addr, l.Restarts, l.LastError)
				response.Healthy = false
			}
			response.Checks["listener_"+l.Name] = check
		}
	}

	statusCode := http.StatusOK
	if !response.Healthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}
