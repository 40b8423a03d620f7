package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/service"
)

// AuthHandler serves the demo and email auth endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/auth/user", h.GetUser)
	router.POST("/auth/user", h.PostUser)
}

// GetUser returns the default demo user, creating it on first call.
func (h *AuthHandler) GetUser(c *gin.Context) {
	user, err := h.auth.GetOrCreateUser(c.Request.Context(), service.DemoUsername, "데모 사용자")
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

type userRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PostUser handles demo get-or-create plus the signup/signin/anonymous
// actions.
func (h *AuthHandler) PostUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeInvalidData, err.Error()))
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case "signup":
		if req.Email == "" || req.Password == "" {
			respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "이메일과 비밀번호가 필요합니다."))
			return
		}
		user, token, err := h.auth.SignUp(ctx, req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusCreated, gin.H{"user": user, "token": token})
	case "signin":
		if req.Email == "" || req.Password == "" {
			respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "이메일과 비밀번호가 필요합니다."))
			return
		}
		user, token, err := h.auth.SignIn(ctx, req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"user": user, "token": token})
	case "anonymous":
		user, err := h.auth.Anonymous(ctx)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusCreated, user)
	case "":
		if req.Username == "" {
			respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "Username is required"))
			return
		}
		user, err := h.auth.GetOrCreateUser(ctx, req.Username, req.FullName)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusOK, user)
	default:
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeInvalidData, "unknown action"))
	}
}
