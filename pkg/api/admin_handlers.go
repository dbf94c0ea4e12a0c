package api

import (
	"net/http"
	"time"

	"github.com/caregate/caregate/pkg/blocklist"
	"github.com/caregate/caregate/pkg/httputil"
	"github.com/caregate/caregate/pkg/observability"
)

// AdminHandlers implements the operator blocklist API.
type AdminHandlers struct {
	blocks *blocklist.Blocklist
}

func NewAdminHandlers(blocks *blocklist.Blocklist) *AdminHandlers {
	return &AdminHandlers{blocks: blocks}
}

// blockIP handles POST /api/v1/admin/blocklist
func (h *AdminHandlers) blockIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP              string `json:"ip"`
		DurationMinutes int    `json:"durationMinutes"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.IP == "" {
		httputil.WriteBadRequest(w, "ip is required")
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if err := h.blocks.Block(r.Context(), req.IP, duration); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Block write failed")
		httputil.WriteInternalError(w)
		return
	}
	if duration <= 0 {
		duration = blocklist.DefaultBlockDuration
	}

	httputil.WriteData(w, r, http.StatusOK, map[string]interface{}{
		"ip":           req.IP,
		"blockedUntil": time.Now().UTC().Add(duration),
	})
}

// unblockIP handles DELETE /api/v1/admin/blocklist/{ip}
func (h *AdminHandlers) unblockIP(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ParsePathString(r, "ip")
	if err := h.blocks.Unblock(r.Context(), ip); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Unblock failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, map[string]string{"ip": ip, "status": "unblocked"})
}

// blockStatus handles GET /api/v1/admin/blocklist/{ip}
func (h *AdminHandlers) blockStatus(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ParsePathString(r, "ip")
	blocked, err := h.blocks.IsBlocked(r.Context(), ip)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Block lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, map[string]interface{}{"ip": ip, "blocked": blocked})
}
