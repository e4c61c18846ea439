package policies

import (
	"errors"

	"go_lpp/internal/httpx"
	"go_lpp/internal/policyset"

	"github.com/gin-gonic/gin"
)

// Handler handles policy management requests
type Handler struct {
	policies *policyset.Service
}

// NewHandler creates a new policies handler
func NewHandler(policies *policyset.Service) *Handler {
	return &Handler{policies: policies}
}

// CreateRequest represents the request to create a policy. Args accepts a
// JSON object or a JSON-encoded string; anything else degrades to an empty
// parameter set.
type CreateRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PackageName string `json:"packageName"`
	Args        any    `json:"args"`
	Bash        string `json:"bash"`
}

// List handles GET /api/v1/policies
func (h *Handler) List(c *gin.Context) {
	httpx.OK(c, h.policies.ListPolicies())
}

// Create handles POST /api/v1/policies
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	policy, err := h.policies.CreatePolicy(req.ID, req.Name, req.Description, req.PackageName, req.Args, req.Bash)
	if err != nil {
		if errors.Is(err, policyset.ErrNameRequired) {
			httpx.FailErr(c, httpx.ErrParamMissing(err.Error()))
			return
		}
		httpx.FailErr(c, httpx.ErrInternalError("failed to create policy", err))
		return
	}

	httpx.OK(c, policy)
}

// Delete handles POST /api/v1/policies/:id/delete. The id cascades out of
// every customer's and device's set in the same step.
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("policy id required"))
		return
	}

	h.policies.DeletePolicy(id)
	httpx.OK(c, gin.H{"ok": true})
}
