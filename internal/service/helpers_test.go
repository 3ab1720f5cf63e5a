package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/repository"
	"storefront/internal/security"
	"storefront/internal/testutil"
)

const (
	testCodeTTL    = 10 * time.Minute
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 7 * 24 * time.Hour
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

var codePattern = regexp.MustCompile(`(?:: |code is )([A-Z0-9]{6})\b`)

// lastCode returns the plaintext code most recently sent to target.
func (n *recordingNotifier) lastCode(t *testing.T, target string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].Target != target {
			continue
		}
		m := codePattern.FindStringSubmatch(n.msgs[i].Body)
		require.NotNil(t, m, "no code in %q", n.msgs[i].Body)
		return m[1]
	}
	t.Fatalf("no message sent to %s", target)
	return ""
}

func (n *recordingNotifier) count(target string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if m.Target == target {
			c++
		}
	}
	return c
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *recordingPublisher) Publish(msg []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

type harness struct {
	db        *gorm.DB
	clock     *fakeClock
	notifier  *recordingNotifier
	publisher *recordingPublisher
	cipher    *security.Cipher
	hasher    *security.PasswordHasher
	issuer    *security.TokenIssuer

	users     repository.UserRepository
	tokens    repository.RefreshTokenRepository
	codeRepo  repository.VerificationCodeRepository
	txManager repository.TransactionManager

	codes VerificationService
	audit AuditService
	auth  AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, testutil.NewDB(t))
}

func newHarnessOn(t *testing.T, db *gorm.DB) *harness {
	t.Helper()

	h := &harness{
		db:        db,
		clock:     &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}

	var err error
	h.cipher, err = security.NewCipher("aes-256-cbc", "test-key", "test-iv")
	require.NoError(t, err)
	h.hasher, err = security.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	h.issuer = security.NewTokenIssuer("test-secret", testAccessTTL).WithClock(h.clock.Now)

	logger := testutil.DiscardLogger()
	h.users = repository.NewUserRepository(h.db)
	h.tokens = repository.NewRefreshTokenRepository(h.db)
	h.codeRepo = repository.NewVerificationCodeRepository(h.db)
	h.txManager = repository.NewTransactionManager(h.db)

	h.audit = NewAuditService(repository.NewAuditRepository(h.db), h.publisher, logger)
	h.codes = NewVerificationService(h.codeRepo, h.txManager, h.cipher, h.notifier, logger, VerificationSettings{
		CodeLength: 6,
		CodeTTL:    testCodeTTL,
		PublicURL:  "http://shop.test",
		Now:        h.clock.Now,
	})
	h.auth = h.newAuth(h.users, h.codes)
	return h
}

// newAuth builds an AuthService over the harness stores with users and codes
// swapped for the given implementations.
func (h *harness) newAuth(users repository.UserRepository, codes VerificationService) AuthService {
	return NewAuthService(users, h.tokens, h.txManager, codes, h.audit, h.hasher, h.issuer, testutil.DiscardLogger(), AuthSettings{
		AccessTokenTTL:  testAccessTTL,
		RefreshTokenTTL: testRefreshTTL,
		Now:             h.clock.Now,
	})
}

func (h *harness) countCodes(t *testing.T, target string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&model.VerificationCode{}).Where("target_value = ?", target).Count(&n).Error)
	return n
}

// registerVerified creates an account and confirms its email.
func (h *harness) registerVerified(t *testing.T, email, password string) *UserResponse {
	t.Helper()
	ctx := context.Background()

	_, err := h.auth.Register(ctx, RegisterRequest{Email: email, Password: password})
	require.NoError(t, err)
	user, err := h.auth.VerifyEmail(ctx, VerifyEmailRequest{Email: email, Code: h.notifier.lastCode(t, email)})
	require.NoError(t, err)
	return user
}

func (h *harness) createUser(t *testing.T, email, role string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "x", Role: role, Verified: true, PasswordChangedAt: h.clock.Now()}
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}
