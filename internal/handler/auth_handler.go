package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
	cookies     middleware.CookieOptions
}

// NewAuthHandler sets up the routing dependencies for credential and session endpoints
func NewAuthHandler(authService service.AuthService, cookies middleware.CookieOptions) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies}
}

// RegisterRoutes binds the /auth endpoints. limit guards every endpoint that
// accepts a credential or a code.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate, limit gin.HandlerFunc) {
	auth := router.Group("/auth")
	{
		// Public routes
		auth.POST("/register", limit, h.Register)
		auth.POST("/login", limit, h.Login)
		auth.POST("/refresh", limit, h.Refresh)
		auth.POST("/resetPassword", limit, h.RequestPasswordReset)
		auth.PATCH("/resetPassword", limit, h.ResetPassword)
		auth.POST("/verify-email", limit, h.VerifyEmail)
		auth.POST("/verify-email/resend", limit, h.ResendEmailVerification)
		auth.POST("/verify-phone", limit, h.VerifyPhone)
		auth.POST("/verify-phone/resend", limit, h.ResendPhoneVerification)

		// Any authenticated user
		authed := middleware.Policy{}
		auth.POST("/logout", append(gate.Route(authed), h.Logout)...)
		auth.POST("/logout-all", append(gate.Route(authed), h.LogoutAll)...)
		auth.GET("/me", append(gate.Route(authed), h.GetMe)...)
		auth.DELETE("/me", append(gate.Route(authed), h.DeleteAccount)...)
		auth.PUT("/password", append(gate.Route(authed), limit, h.ChangePassword)...)
		auth.POST("/email", append(gate.Route(authed), limit, h.RequestEmailUpdate)...)
		auth.PATCH("/email", append(gate.Route(authed), limit, h.ConfirmEmailUpdate)...)
		auth.POST("/phone", append(gate.Route(authed), limit, h.RequestPhoneUpdate)...)
		auth.PATCH("/phone", append(gate.Route(authed), limit, h.ConfirmPhoneUpdate)...)
	}
}

// Register handles POST /auth/register
// @Summary      Register account
// @Description  Creates an unverified customer account and sends verification codes
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Registration Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// Login handles POST /auth/login to authenticate and return a token pair
// @Summary      Login user
// @Description  Authenticates a verified user by email and password, returning access and refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	tokens, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}

	middleware.SetTokenCookies(c, h.cookies, tokens.AccessToken, tokens.RefreshToken)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokens))
}

// Refresh handles POST /auth/refresh
// @Summary      Refresh access token
// @Description  Issues a new access token for a live refresh token. The refresh_token cookie wins over the body.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshRequest  false  "Refresh Token"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, cookieErr := c.Cookie(middleware.RefreshTokenCookie)
	if cookieErr != nil || refreshToken == "" {
		var req service.RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err)
			return
		}
		refreshToken = req.RefreshToken
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		response.Fail(c, err)
		return
	}

	middleware.SetTokenCookies(c, h.cookies, tokens.AccessToken, "")
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokens))
}

// Logout handles POST /auth/logout and ends the current session
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.CurrentSession(c)); err != nil {
		response.Fail(c, err)
		return
	}
	middleware.ClearTokenCookies(c, h.cookies)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Logged out"))
}

// LogoutAll handles POST /auth/logout-all and ends every session of the user
// @Summary      Logout everywhere
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if err := h.authService.LogoutAll(c.Request.Context(), session.User.ID); err != nil {
		response.Fail(c, err)
		return
	}
	middleware.ClearTokenCookies(c, h.cookies)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Logged out from all sessions"))
}

// GetMe handles GET /auth/me
// @Summary      Get current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.ToUserResponse(middleware.CurrentSession(c).User)))
}

// DeleteAccount handles DELETE /auth/me
// @Summary      Delete own account
// @Description  Deletes the account with its codes, sessions and payment methods
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/me [delete]
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if err := h.authService.DeleteAccount(c.Request.Context(), session.User.ID); err != nil {
		response.Fail(c, err)
		return
	}
	middleware.ClearTokenCookies(c, h.cookies)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Account deleted successfully"))
}

// VerifyEmail handles POST /auth/verify-email
// @Summary      Verify email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.VerifyEmailRequest  true  "Email and code"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      404      {object}  response.Response
// @Router       /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req service.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	user, err := h.authService.VerifyEmail(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// VerifyPhone handles POST /auth/verify-phone
// @Summary      Verify phone
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.VerifyPhoneRequest  true  "Phone and code"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      404      {object}  response.Response
// @Router       /auth/verify-phone [post]
func (h *AuthHandler) VerifyPhone(c *gin.Context) {
	var req service.VerifyPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	user, err := h.authService.VerifyPhone(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// ResendEmailVerification handles POST /auth/verify-email/resend
// @Summary      Resend email verification code
// @Description  Always accepted; a code is only sent when an unvalidated account owns the address
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ResendRequest  true  "Email address"
// @Success      202      {object}  response.Response
// @Router       /auth/verify-email/resend [post]
func (h *AuthHandler) ResendEmailVerification(c *gin.Context) {
	var req service.ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	if err := h.authService.ResendEmailVerification(c.Request.Context(), req.Target); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, "If the address is pending verification, a new code has been sent"))
}

// ResendPhoneVerification handles POST /auth/verify-phone/resend
// @Summary      Resend phone verification code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ResendRequest  true  "Phone number"
// @Success      202      {object}  response.Response
// @Router       /auth/verify-phone/resend [post]
func (h *AuthHandler) ResendPhoneVerification(c *gin.Context) {
	var req service.ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	if err := h.authService.ResendPhoneVerification(c.Request.Context(), req.Target); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, "If the number is pending verification, a new code has been sent"))
}

// RequestPasswordReset handles POST /auth/resetPassword
// @Summary      Request password reset
// @Description  Always answers 202 so the response never reveals whether the account exists
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PasswordResetRequest  true  "Email"
// @Success      202      {object}  response.Response
// @Router       /auth/resetPassword [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req service.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, "If the account exists, a reset code has been sent"))
}

// ResetPassword handles PATCH /auth/resetPassword
// @Summary      Reset password
// @Description  Consumes a reset code, sets the new password and ends every session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ResetPasswordRequest  true  "Email, code and new password"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /auth/resetPassword [patch]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req service.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Password updated"))
}

// ChangePassword handles PUT /auth/password
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ChangePasswordRequest  true  "Old and new password"
// @Success      200      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	if err := h.authService.ChangePassword(c.Request.Context(), session.User.ID, req); err != nil {
		response.Fail(c, err)
		return
	}
	middleware.ClearTokenCookies(c, h.cookies)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Password changed, please log in again"))
}

// RequestEmailUpdate handles POST /auth/email
// @Summary      Request email change
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.UpdateEmailRequest  true  "New email"
// @Success      202      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /auth/email [post]
func (h *AuthHandler) RequestEmailUpdate(c *gin.Context) {
	var req service.UpdateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	if err := h.authService.RequestEmailUpdate(c.Request.Context(), session.User.ID, req.Email); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, "Confirmation code sent"))
}

// ConfirmEmailUpdate handles PATCH /auth/email
// @Summary      Confirm email change
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ConfirmEmailRequest  true  "New email and code"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /auth/email [patch]
func (h *AuthHandler) ConfirmEmailUpdate(c *gin.Context) {
	var req service.ConfirmEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	user, err := h.authService.ConfirmEmailUpdate(c.Request.Context(), session.User.ID, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// RequestPhoneUpdate handles POST /auth/phone
// @Summary      Request phone change
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.UpdatePhoneRequest  true  "New phone"
// @Success      202      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /auth/phone [post]
func (h *AuthHandler) RequestPhoneUpdate(c *gin.Context) {
	var req service.UpdatePhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	if err := h.authService.RequestPhoneUpdate(c.Request.Context(), session.User.ID, req.Phone); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, "Confirmation code sent"))
}

// ConfirmPhoneUpdate handles PATCH /auth/phone
// @Summary      Confirm phone change
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ConfirmPhoneRequest  true  "New phone and code"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      404      {object}  response.Response
// @Router       /auth/phone [patch]
func (h *AuthHandler) ConfirmPhoneUpdate(c *gin.Context) {
	var req service.ConfirmPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	session := middleware.CurrentSession(c)
	user, err := h.authService.ConfirmPhoneUpdate(c.Request.Context(), session.User.ID, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}
