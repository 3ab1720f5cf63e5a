package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/ratelimit"
	"storefront/internal/repository"
	"storefront/internal/security"
	"storefront/internal/service"
	"storefront/internal/testutil"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type inbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (i *inbox) Send(_ context.Context, msg notify.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
	return nil
}

var codeRe = regexp.MustCompile(`(?:: |code is )([A-Z0-9]{6})\b`)

func (i *inbox) code(t *testing.T, target string) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	for n := len(i.msgs) - 1; n >= 0; n-- {
		if i.msgs[n].Target == target {
			m := codeRe.FindStringSubmatch(i.msgs[n].Body)
			require.NotNil(t, m)
			return m[1]
		}
	}
	t.Fatalf("nothing sent to %s", target)
	return ""
}

func (i *inbox) sentTo(target string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, m := range i.msgs {
		if m.Target == target {
			n++
		}
	}
	return n
}

type app struct {
	router *gin.Engine
	db     *gorm.DB
	inbox  *inbox
	users  repository.UserRepository
}

type appOption func(codes repository.VerificationCodeRepository) repository.VerificationCodeRepository

func newApp(t *testing.T, limit ratelimit.Config, opts ...appOption) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	logger := testutil.DiscardLogger()
	box := &inbox{}

	cipher, err := security.NewCipher("aes-256-cbc", "test-key", "test-iv")
	require.NoError(t, err)
	hasher, err := security.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	issuer := security.NewTokenIssuer("test-secret", 15*time.Minute)

	users := repository.NewUserRepository(db)
	txManager := repository.NewTransactionManager(db)
	audit := service.NewAuditService(repository.NewAuditRepository(db), nil, logger)
	codeRepo := repository.NewVerificationCodeRepository(db)
	for _, opt := range opts {
		codeRepo = opt(codeRepo)
	}
	codes := service.NewVerificationService(codeRepo, txManager, cipher, box, logger,
		service.VerificationSettings{CodeLength: 6, CodeTTL: 10 * time.Minute, PublicURL: "http://shop.test"})
	auth := service.NewAuthService(users, repository.NewRefreshTokenRepository(db), txManager, codes, audit, hasher, issuer, logger,
		service.AuthSettings{AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 24 * time.Hour})

	router := handler.NewRouter(handler.Dependencies{
		Auth:           auth,
		Users:          service.NewUserService(users, txManager, audit),
		Orders:         service.NewOrderService(repository.NewOrderRepository(db)),
		PaymentMethods: service.NewPaymentMethodService(repository.NewPaymentMethodRepository(db), cipher),
		Audit:          audit,
		Limiter:        ratelimit.NewMemoryLimiter(limit),
		Cookies:        middleware.CookieOptions{AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour},
		Logger:         logger,
	})
	return &app{router: router, db: db, inbox: box, users: users}
}

func defaultApp(t *testing.T) *app {
	return newApp(t, ratelimit.Config{Requests: 1000, Window: time.Minute, Burst: 1000})
}

func (a *app) call(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var res response.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func decode[T any](t *testing.T, res response.Response) T {
	t.Helper()
	raw, err := json.Marshal(res.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// signup registers, verifies and logs in, returning the access token.
func (a *app) signup(t *testing.T, email, password string) (string, service.UserResponse) {
	t.Helper()
	w, res := a.call(t, http.MethodPost, "/auth/register", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, w.Code, res.Error)

	w, res = a.call(t, http.MethodPost, "/auth/verify-email", "", gin.H{"email": email, "code": a.inbox.code(t, email)})
	require.Equal(t, http.StatusOK, w.Code, res.Error)
	user := decode[service.UserResponse](t, res)

	return a.login(t, email, password), user
}

func (a *app) login(t *testing.T, email, password string) string {
	t.Helper()
	w, res := a.call(t, http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, res.Error)
	return decode[service.TokenResponse](t, res).AccessToken
}

func (a *app) promote(t *testing.T, id string, role string) {
	t.Helper()
	require.NoError(t, a.db.Model(&model.User{}).Where("id = ?", id).Update("role", role).Error)
}

func TestRegisterAndLogin(t *testing.T) {
	a := defaultApp(t)

	w, res := a.call(t, http.MethodPost, "/auth/register", "", gin.H{"email": "Ann@Shop.test", "password": "Abcdef1!"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotContains(t, w.Body.String(), "password")
	user := decode[service.UserResponse](t, res)
	require.Equal(t, "ann@shop.test", user.Email)
	require.False(t, user.Verified)

	w, res = a.call(t, http.MethodPost, "/auth/register", "", gin.H{"email": "ann@shop.test", "password": "Abcdef1!"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "User already exists", res.Error)

	w, res = a.call(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ann@shop.test", "password": "Abcdef1!"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "User not verified", res.Error)

	w, _ = a.call(t, http.MethodPost, "/auth/verify-email", "", gin.H{"email": "ann@shop.test", "code": a.inbox.code(t, "ann@shop.test")})
	require.Equal(t, http.StatusOK, w.Code)

	w, res = a.call(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ann@shop.test", "password": "Abcdef1!"})
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decode[service.TokenResponse](t, res)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Len(t, w.Result().Cookies(), 2)

	w, res = a.call(t, http.MethodGet, "/auth/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, user.ID, decode[service.UserResponse](t, res).ID)

	w, _ = a.call(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_DoesNotRevealAccounts(t *testing.T) {
	a := defaultApp(t)
	a.signup(t, "bea@shop.test", "Abcdef1!")

	_, wrongPassword := a.call(t, http.MethodPost, "/auth/login", "", gin.H{"email": "bea@shop.test", "password": "nope-nope"})
	w, unknown := a.call(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ghost@shop.test", "password": "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, wrongPassword.Error, unknown.Error)
}

func TestPasswordReset(t *testing.T) {
	a := defaultApp(t)
	oldToken, _ := a.signup(t, "cat@shop.test", "Abcdef1!")

	for _, email := range []string{"cat@shop.test", "ghost@shop.test"} {
		w, _ := a.call(t, http.MethodPost, "/auth/resetPassword", "", gin.H{"email": email})
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	require.Zero(t, a.inbox.sentTo("ghost@shop.test"))

	w, _ := a.call(t, http.MethodPatch, "/auth/resetPassword", "", gin.H{"email": "cat@shop.test", "code": "ZZZZZZ", "new_password": "Newpass1!"})
	require.Equal(t, http.StatusNotFound, w.Code)

	code := a.inbox.code(t, "cat@shop.test")
	w, _ = a.call(t, http.MethodPatch, "/auth/resetPassword", "", gin.H{"email": "cat@shop.test", "code": code, "new_password": "Newpass1!"})
	require.Equal(t, http.StatusOK, w.Code)

	// single use
	w, _ = a.call(t, http.MethodPatch, "/auth/resetPassword", "", gin.H{"email": "cat@shop.test", "code": code, "new_password": "Other1!!x"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.call(t, http.MethodGet, "/auth/me", oldToken, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	a.login(t, "cat@shop.test", "Newpass1!")
}

type brokenCodeStore struct {
	repository.VerificationCodeRepository
}

func (brokenCodeStore) Replace(context.Context, *model.VerificationCode) error {
	return errors.New("connection reset by peer")
}

func TestPasswordReset_StoreFailureLooksLikeSuccess(t *testing.T) {
	a := newApp(t, ratelimit.Config{Requests: 1000, Window: time.Minute, Burst: 1000},
		func(codes repository.VerificationCodeRepository) repository.VerificationCodeRepository {
			return brokenCodeStore{codes}
		})
	require.NoError(t, a.users.Create(context.Background(), &model.User{
		Email:             "eve@shop.test",
		PasswordHash:      "x",
		Role:              model.RoleCustomer,
		Verified:          true,
		EmailValidated:    true,
		PasswordChangedAt: time.Now(),
	}))

	for _, email := range []string{"eve@shop.test", "ghost@shop.test"} {
		w, _ := a.call(t, http.MethodPost, "/auth/resetPassword", "", gin.H{"email": email})
		require.Equal(t, http.StatusAccepted, w.Code, email)
	}
	require.NoError(t, a.users.Create(context.Background(), &model.User{
		Email:             "fay@shop.test",
		PasswordHash:      "x",
		Role:              model.RoleCustomer,
		PasswordChangedAt: time.Now(),
	}))
	w, _ := a.call(t, http.MethodPost, "/auth/verify-email/resend", "", gin.H{"target": "fay@shop.test"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Zero(t, a.inbox.sentTo("eve@shop.test"))
	require.Zero(t, a.inbox.sentTo("fay@shop.test"))
}

func TestLogoutEndsSession(t *testing.T) {
	a := defaultApp(t)
	token, _ := a.signup(t, "dan@shop.test", "Abcdef1!")

	w, _ := a.call(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.call(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserRoutes_Authorization(t *testing.T) {
	a := defaultApp(t)
	aliceToken, alice := a.signup(t, "alice@shop.test", "Abcdef1!")
	bobToken, _ := a.signup(t, "bob@shop.test", "Abcdef1!")
	_, staff := a.signup(t, "staff@shop.test", "Abcdef1!")
	a.promote(t, staff.ID.String(), model.RoleStaff)
	staffToken := a.login(t, "staff@shop.test", "Abcdef1!")

	path := "/users/" + alice.ID.String()

	w, _ := a.call(t, http.MethodGet, path, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, res := a.call(t, http.MethodGet, path, bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "Access denied", res.Error)

	w, _ = a.call(t, http.MethodGet, path, staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.call(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = a.call(t, http.MethodGet, "/users", bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, res = a.call(t, http.MethodGet, "/users?limit=2", staffToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, res.Meta)
	require.EqualValues(t, 3, res.Meta.Total)
	require.Equal(t, 2, res.Meta.Limit)

	w, _ = a.call(t, http.MethodPut, path+"/role", staffToken, gin.H{"role": model.RoleStaff})
	require.Equal(t, http.StatusForbidden, w.Code)

	var denials int64
	require.NoError(t, a.db.Model(&model.AuditLog{}).Where("action = ?", model.ActionAccessDenied).Count(&denials).Error)
	require.EqualValues(t, 3, denials)
}

func TestOrdersAndPaymentMethods_Ownership(t *testing.T) {
	a := defaultApp(t)
	aliceToken, _ := a.signup(t, "alice@shop.test", "Abcdef1!")
	bobToken, _ := a.signup(t, "bob@shop.test", "Abcdef1!")

	w, res := a.call(t, http.MethodPost, "/orders", aliceToken, gin.H{
		"items": []gin.H{{"sku": "TEA-1", "name": "Green tea", "quantity": 2, "unit_price": "4.50"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, res.Error)
	order := decode[service.OrderResponse](t, res)
	require.Equal(t, "9", order.Total.String())

	w, _ = a.call(t, http.MethodGet, "/orders/"+order.ID.String(), aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = a.call(t, http.MethodGet, "/orders/"+order.ID.String(), bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, res = a.call(t, http.MethodGet, "/orders", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, res.Meta.Total)

	card := gin.H{"card_number": "4242424242424242", "holder_name": "Alice", "expiry_month": 12, "expiry_year": time.Now().Year() + 2}
	w, res = a.call(t, http.MethodPost, "/payment-methods", aliceToken, card)
	require.Equal(t, http.StatusCreated, w.Code, res.Error)
	method := decode[service.PaymentMethodResponse](t, res)
	require.Equal(t, "************4242", method.CardNumber)

	w, _ = a.call(t, http.MethodPost, "/payment-methods", aliceToken, card)
	require.Equal(t, http.StatusConflict, w.Code)

	w, _ = a.call(t, http.MethodDelete, "/payment-methods/"+method.ID.String(), bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.call(t, http.MethodDelete, "/payment-methods/"+method.ID.String(), aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLogs_AdminOnly(t *testing.T) {
	a := defaultApp(t)
	_, admin := a.signup(t, "root@shop.test", "Abcdef1!")
	customerToken, _ := a.signup(t, "eve@shop.test", "Abcdef1!")
	a.promote(t, admin.ID.String(), model.RoleAdmin)
	adminToken := a.login(t, "root@shop.test", "Abcdef1!")

	w, _ := a.call(t, http.MethodGet, "/audit-logs", customerToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, res := a.call(t, http.MethodGet, "/audit-logs?action="+model.ActionLogin, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]service.AuditLogResponse](t, res)
	require.Len(t, logs, 3)
	for _, l := range logs {
		require.Equal(t, model.ActionLogin, l.Action)
	}
}

func TestCredentialEndpointsAreRateLimited(t *testing.T) {
	a := newApp(t, ratelimit.Config{Requests: 3, Window: time.Minute, Burst: 3})

	var last *httptest.ResponseRecorder
	for range 4 {
		last, _ = a.call(t, http.MethodPost, "/auth/login", "", gin.H{"email": "x@shop.test", "password": "whatever1"})
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.NotEmpty(t, last.Header().Get("Retry-After"))

	// other routes keep their own bucket
	w, _ := a.call(t, http.MethodPost, "/auth/resetPassword", "", gin.H{"email": "x@shop.test"})
	require.Equal(t, http.StatusAccepted, w.Code)
}
