package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/notify"
)

func TestVerification_IssueSupersedesPreviousCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	require.NoError(t, h.codes.Issue(ctx, model.PurposeVerifyEmail, "a@x.com", owner))
	first := h.notifier.lastCode(t, "a@x.com")
	require.NoError(t, h.codes.Issue(ctx, model.PurposeVerifyEmail, "a@x.com", owner))
	second := h.notifier.lastCode(t, "a@x.com")

	require.EqualValues(t, 1, h.countCodes(t, "a@x.com"))

	if first != second {
		_, err := h.codes.Consume(ctx, first, "a@x.com", model.PurposeVerifyEmail)
		require.ErrorIs(t, err, apperror.ErrNotFound)
	}

	code, err := h.codes.Consume(ctx, second, "a@x.com", model.PurposeVerifyEmail)
	require.NoError(t, err)
	require.Equal(t, owner.ID, code.UserID)

	_, err = h.codes.Consume(ctx, second, "a@x.com", model.PurposeVerifyEmail)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	require.EqualValues(t, 0, h.countCodes(t, "a@x.com"))
}

func TestVerification_StoresCiphertext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	require.NoError(t, h.codes.Issue(ctx, model.PurposeResetPassword, "a@x.com", owner))
	raw := h.notifier.lastCode(t, "a@x.com")

	stored, err := h.codeRepo.FindByTarget(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotEqual(t, raw, stored.Code)
	require.Equal(t, model.CodeTypeEmail, stored.Type)
	require.True(t, h.clock.Now().Add(testCodeTTL).Equal(stored.ExpiresAt))

	plain, err := h.cipher.Decrypt(stored.Code)
	require.NoError(t, err)
	require.Equal(t, raw, plain)
}

func TestVerification_ConsumeMatchesPurposeAndCase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	require.NoError(t, h.codes.Issue(ctx, model.PurposeVerifyEmail, "a@x.com", owner))
	raw := h.notifier.lastCode(t, "a@x.com")

	_, err := h.codes.Consume(ctx, raw, "a@x.com", model.PurposeResetPassword)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = h.codes.Consume(ctx, raw, "b@x.com", model.PurposeVerifyEmail)
	require.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = h.codes.Consume(ctx, "  "+strings.ToLower(raw)+" ", "a@x.com", model.PurposeVerifyEmail)
	require.NoError(t, err)
}

func TestVerification_ExpiredCodeIsRejectedAndDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	require.NoError(t, h.codes.Issue(ctx, model.PurposeVerifyEmail, "a@x.com", owner))
	raw := h.notifier.lastCode(t, "a@x.com")

	// expiresAt == now already counts as expired.
	h.clock.Advance(testCodeTTL)

	_, err := h.codes.Consume(ctx, raw, "a@x.com", model.PurposeVerifyEmail)
	require.ErrorIs(t, err, apperror.ErrExpired)
	require.EqualValues(t, 0, h.countCodes(t, "a@x.com"))

	_, err = h.codes.Consume(ctx, raw, "a@x.com", model.PurposeVerifyEmail)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestVerification_ConcurrentIssueLeavesOneCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.codes.Issue(ctx, model.PurposeVerifyEmail, "a@x.com", owner)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, h.countCodes(t, "a@x.com"))
	require.Equal(t, workers, h.notifier.count("a@x.com"))
}

func TestVerification_NotifierFailureIsNotPropagated(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	require.NoError(t, h.codes.Issue(context.Background(), model.PurposeVerifyEmail, "a@x.com", owner))
	require.EqualValues(t, 1, h.countCodes(t, "a@x.com"))
}

func TestVerification_PhoneCodesGoOverSMS(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	require.NoError(t, h.codes.Issue(context.Background(), model.PurposeVerifyPhone, "+15550001", owner))

	h.notifier.mu.Lock()
	msg := h.notifier.msgs[len(h.notifier.msgs)-1]
	h.notifier.mu.Unlock()
	require.Equal(t, notify.ChannelSMS, msg.Channel)
	require.Equal(t, "+15550001", msg.Target)
}

func TestVerification_UnknownPurpose(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(t, "a@x.com", model.RoleCustomer)

	err := h.codes.Issue(context.Background(), "launch-missiles", "a@x.com", owner)
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = h.codes.Consume(context.Background(), "ABCDEF", "a@x.com", "launch-missiles")
	require.ErrorIs(t, err, apperror.ErrValidation)
}
