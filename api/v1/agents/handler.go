package agents

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go_lpp/internal/auth"
	"go_lpp/internal/config"
	"go_lpp/internal/distrib"
	"go_lpp/internal/enroll"
	"go_lpp/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler handles the agent-facing wire plus enrollment token issuance.
//
// Agent endpoints speak the raw shapes the agent expects (agent_id,
// policies, rev, ETag) rather than the admin response envelope; changing
// them would break deployed agents.
type Handler struct {
	enroll  *enroll.Service
	distrib *distrib.Service
	cfg     *config.Config
	logger  *logrus.Entry
}

// NewHandler creates a new agents handler
func NewHandler(enrollSvc *enroll.Service, distribSvc *distrib.Service, cfg *config.Config, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{enroll: enrollSvc, distrib: distribSvc, cfg: cfg, logger: logger}
}

// CreateTokenRequest represents the request to issue an enrollment token
type CreateTokenRequest struct {
	CustomerID string `json:"customerId" binding:"required"`
	OS         string `json:"os"`
}

// MapAgentRequest represents the debug request to re-map an agent identity
type MapAgentRequest struct {
	AgentID  string `json:"agentId" binding:"required"`
	DeviceID string `json:"deviceId" binding:"required"`
}

// CreateToken handles POST /api/v1/enroll/token. The token is bound to the
// tenant at issuance and flushed durably before the response: the caller
// pastes it into an installer and must be able to rely on it.
func (h *Handler) CreateToken(c *gin.Context) {
	var req CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	token, err := h.enroll.IssueToken(req.CustomerID, req.OS)
	if err != nil {
		httpx.FailErr(c, httpx.ErrNotFound("customer not found"))
		return
	}

	httpx.OK(c, gin.H{"token": token})
}

// Enroll handles POST /api/v1/agents/enroll?token=...&hostname=...&distro=...
//
// Enrollment never fails on a bad token: the device is created unassigned so
// a lost or replayed install request cannot brick provisioning.
func (h *Handler) Enroll(c *gin.Context) {
	token := c.Query("token")
	hostname := c.Query("hostname")
	distro := c.Query("distro")

	res := h.enroll.Enroll(token, hostname, distro)

	deviceJWT, err := auth.GenerateAgentToken(res.AgentID, h.cfg.JWT.Issuer)
	if err != nil {
		h.logger.WithError(err).Warn("failed to issue agent credential")
		deviceJWT = ""
	}

	c.JSON(http.StatusCreated, gin.H{
		"agent_id":   res.AgentID,
		"device_id":  res.DeviceID,
		"device_jwt": deviceJWT,
	})
}

// EffectivePolicy handles GET /api/v1/agents/:id/effective-policy.
//
// The If-None-Match header carries the validator from a previous response;
// when it still matches, the reply is 304 with no manifest payload. The
// validator is derived purely from the effective revision, so it changes
// exactly when the policy set could have changed.
func (h *Handler) EffectivePolicy(c *gin.Context) {
	id := c.Param("id")
	res := h.distrib.EffectivePolicy(id, c.GetHeader("If-None-Match"))

	c.Header("ETag", res.Validator)
	if res.NotModified {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent_id": id,
		"policies": res.Policies,
		"rev":      res.Revision,
	})
}

// Heartbeat handles POST /api/v1/agents/:id/heartbeat. Unknown identifiers
// are a no-op success.
func (h *Handler) Heartbeat(c *gin.Context) {
	h.enroll.Heartbeat(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// IngestResults handles POST /api/v1/agents/results: the agent reports the
// outcome of its last manifest apply. Counts as a heartbeat.
func (h *Handler) IngestResults(c *gin.Context) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	identifier := ""
	if raw, ok := body["agent_id"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			identifier = s
		} else {
			var n int
			if err := json.Unmarshal(raw, &n); err == nil {
				identifier = strconv.Itoa(n)
			}
		}
	}

	payload, _ := json.Marshal(body)
	h.enroll.IngestResult(identifier, payload)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// MapAgent handles POST /api/v1/agents/map, an operator escape hatch to
// re-point an agent identity at a device.
func (h *Handler) MapAgent(c *gin.Context) {
	var req MapAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("agentId & deviceId required"))
		return
	}

	if err := h.enroll.MapAgent(req.AgentID, req.DeviceID); err != nil {
		httpx.FailErr(c, httpx.ErrNotFound("device not found"))
		return
	}

	httpx.OK(c, gin.H{"ok": true})
}
