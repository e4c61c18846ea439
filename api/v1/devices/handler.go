package devices

import (
	"go_lpp/internal/enroll"
	"go_lpp/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler handles device management requests
type Handler struct {
	enroll *enroll.Service
}

// NewHandler creates a new devices handler
func NewHandler(enrollSvc *enroll.Service) *Handler {
	return &Handler{enroll: enrollSvc}
}

// CreateRequest represents the request to create a device directly. When a
// customer is given, the device inherits the tenant's current policy
// snapshot and revision.
type CreateRequest struct {
	Hostname   string `json:"hostname"`
	Distro     string `json:"distro"`
	CustomerID string `json:"customerId"`
}

// List handles GET /api/v1/devices
func (h *Handler) List(c *gin.Context) {
	httpx.OK(c, h.enroll.ListDevices())
}

// Create handles POST /api/v1/devices
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	device := h.enroll.CreateDevice(req.Hostname, req.Distro, req.CustomerID)
	httpx.OK(c, device)
}
