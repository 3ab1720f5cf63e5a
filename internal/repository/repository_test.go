package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/testutil"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func createUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "hash", Role: model.RoleCustomer, PasswordChangedAt: base}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func TestUserRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &model.User{
		Email:             "a@x.com",
		Username:          strPtr("alice"),
		Phone:             strPtr("+15550001"),
		PasswordHash:      "hash",
		Role:              model.RoleCustomer,
		PasswordChangedAt: base,
	}
	require.NoError(t, repo.Create(ctx, u))
	require.NotEqual(t, uuid.Nil, u.ID)

	t.Run("lookups", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)

		got, err = repo.GetByPhone(ctx, "+15550001")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)

		_, err = repo.GetByID(ctx, uuid.New())
		require.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("duplicate identity is a conflict", func(t *testing.T) {
		dup := &model.User{Email: "b@x.com", Username: strPtr("alice"), PasswordHash: "h", Role: model.RoleCustomer, PasswordChangedAt: base}
		require.ErrorIs(t, repo.Create(ctx, dup), apperror.ErrConflict)
	})

	t.Run("exists by identity", func(t *testing.T) {
		tests := []struct {
			name     string
			email    string
			username *string
			phone    *string
			want     bool
		}{
			{"email", "a@x.com", nil, nil, true},
			{"username", "new@x.com", strPtr("alice"), nil, true},
			{"phone", "new@x.com", nil, strPtr("+15550001"), true},
			{"none", "new@x.com", strPtr("bob"), strPtr("+15550002"), false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.ExistsByIdentity(ctx, tt.email, tt.username, tt.phone)
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("update password", func(t *testing.T) {
		changed := base.Add(time.Hour)
		require.NoError(t, repo.UpdatePassword(ctx, u.ID, "new-hash", changed))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "new-hash", got.PasswordHash)
		require.True(t, got.PasswordChangedAt.Equal(changed))

		require.ErrorIs(t, repo.UpdatePassword(ctx, uuid.New(), "x", changed), apperror.ErrNotFound)
	})

	t.Run("update fields leaves other columns alone", func(t *testing.T) {
		require.NoError(t, repo.UpdateFields(ctx, u.ID, map[string]interface{}{"email_validated": true}))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.EmailValidated)
		require.Equal(t, "new-hash", got.PasswordHash)

		require.ErrorIs(t, repo.UpdateFields(ctx, uuid.New(), map[string]interface{}{"verified": true}), apperror.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		createUser(t, db, "c@x.com")
		users, total, err := repo.List(ctx, 1, 1)
		require.NoError(t, err)
		require.EqualValues(t, 2, total)
		require.Len(t, users, 1)
	})
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	u := createUser(t, db, "a@x.com")
	other := createUser(t, db, "b@x.com")

	codes := NewVerificationCodeRepository(db)
	tokens := NewRefreshTokenRepository(db)
	require.NoError(t, codes.Replace(ctx, &model.VerificationCode{
		Code: "c1", Type: model.CodeTypeEmail, Purpose: model.PurposeVerifyEmail,
		TargetValue: "a@x.com", UserID: u.ID, ExpiresAt: base.Add(time.Hour),
	}))
	require.NoError(t, tokens.Create(ctx, &model.RefreshToken{UserID: u.ID, Token: "t1", ExpiresAt: base.Add(time.Hour), CreatedAt: base}))
	require.NoError(t, tokens.Create(ctx, &model.RefreshToken{UserID: other.ID, Token: "t2", ExpiresAt: base.Add(time.Hour), CreatedAt: base}))

	require.NoError(t, NewUserRepository(db).Delete(ctx, u.ID))

	_, err := codes.FindByTarget(ctx, "a@x.com")
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = tokens.GetByToken(ctx, "t1")
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = tokens.GetByToken(ctx, "t2")
	require.NoError(t, err)

	require.ErrorIs(t, NewUserRepository(db).Delete(ctx, u.ID), apperror.ErrNotFound)
}

func TestVerificationCodeRepository(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewVerificationCodeRepository(db)
	u := createUser(t, db, "a@x.com")

	newCode := func(cipher string, expires time.Time) *model.VerificationCode {
		return &model.VerificationCode{
			Code: cipher, Type: model.CodeTypeEmail, Purpose: model.PurposeVerifyEmail,
			TargetValue: "a@x.com", UserID: u.ID, ExpiresAt: expires,
		}
	}

	require.NoError(t, repo.Replace(ctx, newCode("first", base.Add(time.Hour))))
	require.NoError(t, repo.Replace(ctx, newCode("second", base.Add(time.Hour))))

	var count int64
	require.NoError(t, db.Model(&model.VerificationCode{}).Where("target_value = ?", "a@x.com").Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, err := repo.Find(ctx, CodeLookup{Cipher: "first", Target: "a@x.com", Purpose: model.PurposeVerifyEmail, Type: model.CodeTypeEmail})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := repo.Find(ctx, CodeLookup{Cipher: "second", Target: "a@x.com", Purpose: model.PurposeVerifyEmail, Type: model.CodeTypeEmail})
	require.NoError(t, err)

	_, err = repo.Find(ctx, CodeLookup{Cipher: "second", Target: "a@x.com", Purpose: model.PurposeResetPassword, Type: model.CodeTypeEmail})
	require.ErrorIs(t, err, apperror.ErrNotFound, "purpose is part of the match")

	t.Run("cipher collision on another target is a conflict", func(t *testing.T) {
		clash := newCode("second", base.Add(time.Hour))
		clash.TargetValue = "other@x.com"
		require.ErrorIs(t, repo.Replace(ctx, clash), apperror.ErrConflict)
	})

	t.Run("delete reports removal once", func(t *testing.T) {
		removed, err := repo.Delete(ctx, got.ID)
		require.NoError(t, err)
		require.True(t, removed)

		removed, err = repo.Delete(ctx, got.ID)
		require.NoError(t, err)
		require.False(t, removed)
	})

	t.Run("delete expired", func(t *testing.T) {
		require.NoError(t, repo.Replace(ctx, newCode("old", base.Add(-time.Minute))))
		other := newCode("live", base.Add(time.Hour))
		other.TargetValue = "live@x.com"
		require.NoError(t, repo.Replace(ctx, other))

		n, err := repo.DeleteExpired(ctx, base)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		_, err = repo.FindByTarget(ctx, "live@x.com")
		require.NoError(t, err)
	})
}

func TestRefreshTokenRepository(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(db)
	u := createUser(t, db, "a@x.com")

	live := &model.RefreshToken{UserID: u.ID, Token: "live", ExpiresAt: base.Add(time.Hour), CreatedAt: base}
	stale := &model.RefreshToken{UserID: u.ID, Token: "stale", ExpiresAt: base.Add(-time.Hour), CreatedAt: base.Add(-2 * time.Hour)}
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, stale))

	require.ErrorIs(t, repo.Create(ctx, &model.RefreshToken{UserID: u.ID, Token: "live", ExpiresAt: base, CreatedAt: base}), apperror.ErrConflict)

	got, err := repo.GetByID(ctx, live.ID)
	require.NoError(t, err)
	require.Equal(t, "live", got.Token)
	require.True(t, got.Live(base))
	require.False(t, got.Live(base.Add(time.Hour)))

	n, err := repo.DeleteExpired(ctx, base)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = repo.DeleteByUser(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = repo.GetByToken(ctx, "live")
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTransactionManager_RollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	u := createUser(t, db, "a@x.com")
	tokens := NewRefreshTokenRepository(db)

	err := NewTransactionManager(db).RunInTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, tokens.Create(txCtx, &model.RefreshToken{UserID: u.ID, Token: "t", ExpiresAt: base, CreatedAt: base}))
		return apperror.New(apperror.ErrValidation, "abort")
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = tokens.GetByToken(ctx, "t")
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestOrderRepository(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)
	alice := createUser(t, db, "a@x.com")
	bob := createUser(t, db, "b@x.com")

	order := &model.Order{
		UserID: alice.ID,
		Status: model.OrderStatusPending,
		Total:  decimal.RequireFromString("20.50"),
		Items: []model.OrderItem{
			{SKU: "SKU-1", Name: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("10.25")},
		},
	}
	require.NoError(t, repo.Create(ctx, order))
	require.NoError(t, repo.Create(ctx, &model.Order{UserID: bob.ID, Status: model.OrderStatusPending, Total: decimal.Zero}))

	got, err := repo.FindByIDWithItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.True(t, got.Total.Equal(decimal.RequireFromString("20.5")))

	orders, total, err := repo.List(ctx, &alice.ID, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, orders, 1)

	_, total, err = repo.List(ctx, nil, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, model.OrderStatusPaid))
	require.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), model.OrderStatusPaid), apperror.ErrNotFound)
}

func TestPaymentMethodRepository_DuplicateCard(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewPaymentMethodRepository(db)
	u := createUser(t, db, "a@x.com")

	pm := &model.PaymentMethod{UserID: u.ID, CardNumber: "cipher-1", HolderName: "A", Last4: "4242", ExpiryMonth: 1, ExpiryYear: 2030}
	require.NoError(t, repo.Create(ctx, pm))

	dup := &model.PaymentMethod{UserID: u.ID, CardNumber: "cipher-1", HolderName: "A", Last4: "4242", ExpiryMonth: 1, ExpiryYear: 2030}
	require.ErrorIs(t, repo.Create(ctx, dup), apperror.ErrConflict)

	methods, err := repo.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, methods, 1)

	require.NoError(t, repo.Delete(ctx, pm.ID))
	_, err = repo.GetByID(ctx, pm.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAuditRepository_Filter(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewAuditRepository(db)
	uid := uuid.New()

	require.NoError(t, repo.Log(ctx, &model.AuditLog{UserID: &uid, Action: model.ActionLogin, Details: "{}"}))
	require.NoError(t, repo.Log(ctx, &model.AuditLog{Action: model.ActionLoginFailed, Details: "{}"}))
	require.NoError(t, repo.Log(ctx, &model.AuditLog{UserID: &uid, Action: model.ActionLogout, Details: "{}"}))

	logs, total, err := repo.List(ctx, AuditFilter{}, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, logs, 2)

	_, total, err = repo.List(ctx, AuditFilter{UserID: uid.String()}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	logs, total, err = repo.List(ctx, AuditFilter{Action: model.ActionLoginFailed}, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Nil(t, logs[0].UserID)
}
