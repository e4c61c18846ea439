package stats

import (
	"time"

	"go_lpp/internal/httpx"
	"go_lpp/internal/model"
	"go_lpp/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler serves derived, read-only fleet statistics
type Handler struct {
	store *store.Store
}

// NewHandler creates a new stats handler
func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// Stats is the dashboard summary payload
type Stats struct {
	TotalDevices int `json:"totalDevices"`
	Active24h    int `json:"active24h"`
	Customers    int `json:"customers"`
	Policies     int `json:"policies"`
}

// Get handles GET /api/v1/stats
func (h *Handler) Get(c *gin.Context) {
	var out Stats
	now := time.Now()
	h.store.View(func(st *model.State) {
		out.TotalDevices = len(st.Devices)
		out.Customers = len(st.Customers)
		out.Policies = len(st.Policies)
		for _, d := range st.Devices {
			seen, err := time.Parse(time.RFC3339, d.LastSeen)
			if err != nil {
				continue
			}
			if now.Sub(seen) <= 24*time.Hour {
				out.Active24h++
			}
		}
	})

	httpx.OK(c, out)
}
