package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/services"
)

// SignupRequest represents the request body for registering an account
type SignupRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// LoginRequest represents the request body for logging in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Signup handles POST /api/v1/auth/signup - registers a customer or provider
func (a *API) Signup(c *gin.Context) {
	var req SignupRequest
	if !bindJSON(c, &req) {
		return
	}

	principal, err := a.identity.Signup(c.Request.Context(), services.SignupInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Phone:       req.Phone,
		Password:    req.Password,
		Role:        req.Role,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusCreated, principal)
}

// Login handles POST /api/v1/auth/login - exchanges credentials for a session token
func (a *API) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := a.identity.Authenticate(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, session)
}

// Logout handles POST /api/v1/auth/logout - ends the current session
func (a *API) Logout(c *gin.Context) {
	if err := a.identity.Invalidate(c.Request.Context(), middleware.GetSessionToken(c)); err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"logged_out": true})
}

// Me handles GET /api/v1/auth/me - returns the authenticated principal
func (a *API) Me(c *gin.Context) {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, principal)
}
