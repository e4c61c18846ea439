package customers

import (
	"errors"

	"go_lpp/internal/httpx"
	"go_lpp/internal/policyset"

	"github.com/gin-gonic/gin"
)

// Handler handles customer (tenant) management requests
type Handler struct {
	policies *policyset.Service
}

// NewHandler creates a new customers handler
func NewHandler(policies *policyset.Service) *Handler {
	return &Handler{policies: policies}
}

// CreateRequest represents the request to create a customer
type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

// SetPoliciesRequest replaces the customer's full policy set
type SetPoliciesRequest struct {
	PolicyIDs []string `json:"policyIds"`
}

// DeltaRequest applies a single add or remove to the customer's policy set
type DeltaRequest struct {
	PolicyID string `json:"policyId" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

// List handles GET /api/v1/customers
func (h *Handler) List(c *gin.Context) {
	httpx.OK(c, h.policies.ListCustomers())
}

// Create handles POST /api/v1/customers
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("name required"))
		return
	}

	customer, err := h.policies.CreateCustomer(req.Name)
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing(err.Error()))
		return
	}

	httpx.OK(c, customer)
}

// Get handles GET /api/v1/customers/:id
func (h *Handler) Get(c *gin.Context) {
	customer, err := h.policies.GetCustomer(c.Param("id"))
	if err != nil {
		httpx.FailErr(c, httpx.ErrNotFound("customer not found"))
		return
	}
	httpx.OK(c, customer)
}

// Delete handles POST /api/v1/customers/:id/delete. Devices owned by the
// customer are unassigned, not deleted.
func (h *Handler) Delete(c *gin.Context) {
	h.policies.DeleteCustomer(c.Param("id"))
	httpx.OK(c, gin.H{"ok": true})
}

// GetPolicies handles GET /api/v1/customers/:id/policies, returning the
// assigned set plus every available policy for assignment UIs.
func (h *Handler) GetPolicies(c *gin.Context) {
	customer, err := h.policies.GetCustomer(c.Param("id"))
	if err != nil {
		httpx.FailErr(c, httpx.ErrNotFound("customer not found"))
		return
	}

	httpx.OK(c, gin.H{
		"policyIds": customer.PolicyIDs,
		"available": h.policies.ListPolicies(),
	})
}

// SetPolicies handles PUT /api/v1/customers/:id/policies. The incoming ids
// are filtered to existing policies; the revision bumps by one and the new
// snapshot fans out to every owned device before this returns.
func (h *Handler) SetPolicies(c *gin.Context) {
	var req SetPoliciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("policyIds must be an array"))
		return
	}

	ids, rev, err := h.policies.SetCustomerPolicies(c.Param("id"), req.PolicyIDs)
	if err != nil {
		httpx.FailErr(c, httpx.ErrNotFound("customer not found"))
		return
	}

	httpx.OK(c, gin.H{"policyIds": ids, "rev": rev})
}

// ApplyDelta handles POST /api/v1/customers/:id/policies with a granular
// add/remove. An unknown policy id is rejected without mutating state.
func (h *Handler) ApplyDelta(c *gin.Context) {
	var req DeltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	ids, rev, err := h.policies.ApplyPolicyDelta(c.Param("id"), req.PolicyID, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, policyset.ErrCustomerNotFound):
			httpx.FailErr(c, httpx.ErrNotFound("customer not found"))
		case errors.Is(err, policyset.ErrUnknownPolicy):
			httpx.FailErr(c, httpx.ErrParamInvalid("unknown policy"))
		default:
			httpx.FailErr(c, httpx.ErrParamInvalid("action must be add or remove"))
		}
		return
	}

	httpx.OK(c, gin.H{"policyIds": ids, "rev": rev})
}
