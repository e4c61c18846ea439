package auth

import (
	"time"

	"go_lpp/internal/auth"
	"go_lpp/internal/config"
	"go_lpp/internal/httpx"

	"github.com/gin-gonic/gin"
)

// LoginRequest represents login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents login response data
type LoginResponse struct {
	Token    string   `json:"token"`
	ExpireAt string   `json:"expireAt"`
	User     UserInfo `json:"user"`
}

// UserInfo represents user information in response
type UserInfo struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginHandler checks credentials against the directory gate and issues a
// session JWT. The gate yields only pass/fail plus a principal; wrong
// password and unknown user produce the same error.
func LoginHandler(gate auth.Gate, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
			return
		}

		principal, err := gate.Authenticate(req.Username, req.Password)
		if err != nil {
			httpx.FailErr(c, httpx.ErrInvalidToken("invalid credentials"))
			return
		}

		expireAt := time.Now().Add(time.Duration(cfg.JWT.ExpireMinutes) * time.Minute)
		token, err := auth.GenerateToken(principal.Username, principal.Role, expireAt, cfg.JWT.Issuer)
		if err != nil {
			httpx.FailErr(c, httpx.ErrInternalError("failed to generate token", err))
			return
		}

		httpx.OK(c, LoginResponse{
			Token:    token,
			ExpireAt: expireAt.Format(time.RFC3339),
			User: UserInfo{
				Username: principal.Username,
				Role:     principal.Role,
			},
		})
	}
}
