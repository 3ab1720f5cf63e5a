package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/logging"
	"storefront/internal/model"
	"storefront/internal/service"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionKey  = "session"
	ResourceKey = "resource"

	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Authenticator validates an access token and returns the session behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*service.Session, error)
}

// DenialRecorder receives an audit entry for every authorization denial.
type DenialRecorder interface {
	Record(ctx context.Context, entry *model.AuditLog) error
	Publish(entries ...*model.AuditLog)
}

// Ownership names the resolver and the route parameter holding the resource id.
type Ownership struct {
	Resolver service.ResourceResolver
	Param    string
}

// Policy declares how a route is protected. A Public route skips every gate.
type Policy struct {
	Public    bool
	Roles     []string
	Ownership *Ownership
}

// Gate builds the authentication, role and ownership middleware.
type Gate struct {
	auth   Authenticator
	denied DenialRecorder
}

// NewGate returns a Gate. denied may be nil.
func NewGate(auth Authenticator, denied DenialRecorder) *Gate {
	return &Gate{auth: auth, denied: denied}
}

// Route expands a policy into its handler chain, gates in evaluation order.
func (g *Gate) Route(p Policy) gin.HandlersChain {
	if p.Public {
		return nil
	}
	chain := gin.HandlersChain{g.Authenticate()}
	if len(p.Roles) > 0 {
		chain = append(chain, g.RequireRole(p.Roles...))
	}
	if p.Ownership != nil {
		chain = append(chain, g.RequireOwnership(p.Ownership.Resolver, p.Ownership.Param))
	}
	return chain
}

// Authenticate resolves the bearer token into a session. The Authorization
// header wins over the access_token cookie.
func (g *Gate) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			response.Fail(c, err)
			return
		}

		session, err := g.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, err)
			return
		}

		c.Set(SessionKey, session)
		ctx := logging.WithContext(c.Request.Context(),
			logging.FromContext(c.Request.Context()).With("user_id", session.User.ID.String()))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", apperror.New(apperror.ErrUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'")
		}
		return strings.TrimSpace(token), nil
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", apperror.New(apperror.ErrUnauthorized, "Authorization is missing")
}

// RequireRole must run after Authenticate.
func (g *Gate) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := CurrentSession(c)
		var subject *model.User
		if session != nil {
			subject = session.User
		}
		if err := service.Authorize(subject, uuid.Nil, allowedRoles); err != nil {
			g.deny(c, subject, err)
			return
		}
		c.Next()
	}
}

// RequireOwnership loads the resource named by the route parameter and stores
// it under ResourceKey for the handler. Must run after Authenticate.
func (g *Gate) RequireOwnership(resolver service.ResourceResolver, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := CurrentSession(c)
		if session == nil {
			response.Fail(c, apperror.New(apperror.ErrUnauthorized, "Authentication required"))
			return
		}

		id, err := uuid.Parse(c.Param(param))
		if err != nil {
			response.Fail(c, apperror.New(apperror.ErrValidation, "invalid "+param))
			return
		}

		res, err := service.AuthorizeResource(c.Request.Context(), session.User, resolver, id)
		if err != nil {
			g.deny(c, session.User, err)
			return
		}

		c.Set(ResourceKey, res)
		c.Next()
	}
}

// deny answers err; forbidden outcomes are also written to the audit log.
func (g *Gate) deny(c *gin.Context, subject *model.User, err error) {
	if g.denied != nil && apperror.HTTPStatus(err) == http.StatusForbidden {
		entry := &model.AuditLog{
			Action:     model.ActionAccessDenied,
			EntityName: c.Request.Method + " " + c.FullPath(),
			EntityID:   c.Param("id"),
			Details:    "{}",
		}
		if subject != nil {
			entry.UserID = &subject.ID
		}
		if recErr := g.denied.Record(c.Request.Context(), entry); recErr != nil {
			logging.FromContext(c.Request.Context()).Warn("failed to record access denial", "error", recErr)
		} else {
			g.denied.Publish(entry)
		}
	}
	response.Fail(c, err)
}

// CurrentSession returns the session set by Authenticate, or nil.
func CurrentSession(c *gin.Context) *service.Session {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*service.Session)
	return s
}

// Resource returns the resource loaded by RequireOwnership.
func Resource[T any](c *gin.Context) (T, bool) {
	v, ok := c.Get(ResourceKey)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// CookieOptions controls the session cookies.
type CookieOptions struct {
	// Secure switches to SameSite=None; Secure for cross-origin production use.
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func SetTokenCookies(c *gin.Context, opts CookieOptions, accessToken, refreshToken string) {
	setSameSite(c, opts.Secure)
	c.SetCookie(AccessTokenCookie, accessToken, int(opts.AccessTTL.Seconds()), "/", "", opts.Secure, true)
	if refreshToken != "" {
		c.SetCookie(RefreshTokenCookie, refreshToken, int(opts.RefreshTTL.Seconds()), "/", "", opts.Secure, true)
	}
}

// ClearTokenCookies removes access_token and refresh_token cookies
func ClearTokenCookies(c *gin.Context, opts CookieOptions) {
	setSameSite(c, opts.Secure)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", opts.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", opts.Secure, true)
}

func setSameSite(c *gin.Context, secure bool) {
	if secure {
		c.SetSameSite(http.SameSiteNoneMode)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
}
