package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ueexam/backend/internal/models"
	"github.com/ueexam/backend/pkg/response"
	"github.com/ueexam/backend/pkg/utils"
)

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RoleRequest is the body for POST /api/auth/get-role.
type RoleRequest struct {
	UID string `json:"uid" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string              `json:"token"`
	User  models.StaffAccount `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   *Repository
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// Login handles POST /api/auth/login for staff and admin accounts.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	acc, err := h.repo.GetStaffByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.Error("login lookup failed", zap.Error(err))
		response.Internal(c, "login failed")
		return
	}
	if acc == nil || !utils.CheckPassword(req.Password, acc.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(acc.ID, acc.UID, acc.Email, acc.Role)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}

	response.OK(c, TokenResponse{Token: token, User: *acc})
}

// GetRole handles POST /api/auth/get-role, resolving a UID to its role.
func (h *Handler) GetRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role, err := h.repo.GetRoleByUID(c.Request.Context(), req.UID)
	if err != nil {
		h.logger.Error("role lookup failed", zap.Error(err), zap.String("uid", req.UID))
		response.Internal(c, "role lookup failed")
		return
	}
	if role == "" {
		response.NotFound(c, "unknown uid")
		return
	}
	response.OK(c, gin.H{"uid": req.UID, "role": role})
}
