package dashboard

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/auth"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

type Handler struct {
	log messagelog.Repository
}

func NewHandler(log messagelog.Repository) *Handler {
	return &Handler{log: log}
}

// Usage returns the trailing-24h hourly sent histogram (all 24 buckets,
// zero-filled) plus lifetime totals.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	now := time.Now().UTC()
	counts, err := h.log.HourlyCounts(r.Context(), client.ID, now.Add(-24*time.Hour))
	if err != nil {
		slog.Error("querying hourly usage", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	usage := make([]messagelog.HourlyCount, 24)
	for i := 0; i < 24; i++ {
		hour := fmt.Sprintf("%02d", i)
		usage[i] = messagelog.HourlyCount{Hour: hour, Count: counts[hour]}
	}

	totals, err := h.log.CountTotals(r.Context(), client.ID)
	if err != nil {
		slog.Error("querying usage totals", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	total := totals.Sent + totals.Received
	percentSent := 0.0
	if total > 0 {
		percentSent = math.Round(float64(totals.Sent)/float64(total)*10000) / 100
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"usage": usage,
		"summary": map[string]any{
			"sent":         totals.Sent,
			"received":     totals.Received,
			"total":        total,
			"percent_sent": percentSent,
		},
	})
}
