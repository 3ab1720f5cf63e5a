package security

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperror"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher("aes-256-cbc", "test-key", "test-iv")
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plain := range []string{"", "A", "AB12CD", "4242424242424242", strings.Repeat("x", 16), "пароль🔒"} {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		require.NotEqual(t, plain, enc)

		dec, err := c.Decrypt(enc)
		require.NoError(t, err)
		require.Equal(t, plain, dec)
	}
}

func TestCipher_Deterministic(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("ZX81QP")
	require.NoError(t, err)
	b, err := c.Encrypt("ZX81QP")
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := c.Encrypt("ZX81QQ")
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestCipher_KeyChangeBreaksCiphertext(t *testing.T) {
	c := newTestCipher(t)
	enc, err := c.Encrypt("secret-value")
	require.NoError(t, err)

	other, err := NewCipher("aes-256-cbc", "another-key", "test-iv")
	require.NoError(t, err)

	dec, err := other.Decrypt(enc)
	if err == nil {
		require.NotEqual(t, "secret-value", dec)
	} else {
		require.ErrorIs(t, err, apperror.ErrCrypto)
	}
}

func TestCipher_HexKeyMaterial(t *testing.T) {
	key := strings.Repeat("ab", 16)
	iv := strings.Repeat("01", 16)
	c, err := NewCipher("aes-128-cbc", key, iv)
	require.NoError(t, err)

	enc, err := c.Encrypt("hello")
	require.NoError(t, err)
	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, "hello", dec)
}

func TestCipher_DecryptMalformed(t *testing.T) {
	c := newTestCipher(t)

	// Two blocks where the second one is pure padding; flipping the last byte of
	// the first block turns the padding byte into 0x11.
	valid, err := c.Encrypt(strings.Repeat("p", 16))
	require.NoError(t, err)
	raw, err := hex.DecodeString(valid)
	require.NoError(t, err)
	raw[15] ^= 0x01
	badPadding := hex.EncodeToString(raw)

	tests := []struct {
		name  string
		input string
	}{
		{"not hex", "zz-not-hex"},
		{"empty", ""},
		{"short block", "abcdef"},
		{"odd block length", strings.Repeat("ab", 17)},
		{"bad padding", badPadding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Decrypt(tt.input)
			require.ErrorIs(t, err, apperror.ErrCrypto)
			require.Empty(t, out)
		})
	}
}

func TestNewCipher_UnknownAlgorithm(t *testing.T) {
	_, err := NewCipher("des-ede3-cbc", "k", "iv")
	require.Error(t, err)
}

func TestPasswordHasher(t *testing.T) {
	h, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash1, err := h.Hash("Abcdef1!")
	require.NoError(t, err)
	hash2, err := h.Hash("Abcdef1!")
	require.NoError(t, err)

	require.NotEqual(t, "Abcdef1!", hash1)
	require.NotEqual(t, hash1, hash2, "salts must differ")

	require.True(t, h.Verify("Abcdef1!", hash1))
	require.True(t, h.Verify("Abcdef1!", hash2))
	require.False(t, h.Verify("Abcdef1?", hash1))
	require.False(t, h.Verify("Abcdef1!", "not-a-hash"))

	h.Burn("anything")
}

func TestRandomCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 200 {
		code, err := RandomCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, strings.ContainsRune(codeCharset, r))
		}
		seen[code] = struct{}{}
	}
	require.Greater(t, len(seen), 190)

	_, err := RandomCode(0)
	require.Error(t, err)
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, err := RandomToken(32)
	require.NoError(t, err)

	require.Len(t, a, 43)
	require.NotEqual(t, a, b)
}

func TestTokenIssuer(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer("secret", 15*time.Minute).WithClock(func() time.Time { return now })

	userID, refreshID := uuid.New(), uuid.New()
	token, err := issuer.Issue(userID, refreshID)
	require.NoError(t, err)

	gotUser, gotRefresh, err := issuer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, userID, gotUser)
	require.Equal(t, refreshID, gotRefresh)

	t.Run("expired", func(t *testing.T) {
		later := NewTokenIssuer("secret", 15*time.Minute).WithClock(func() time.Time { return now.Add(16 * time.Minute) })
		_, _, err := later.Parse(token)
		require.ErrorIs(t, err, apperror.ErrUnauthorized)
		require.Equal(t, "Token expired", err.Error())
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("other", 15*time.Minute).WithClock(func() time.Time { return now })
		_, _, err := other.Parse(token)
		require.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
			RefreshTokenID:   refreshID.String(),
			RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String(), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		})
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, _, err = issuer.Parse(s)
		require.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := issuer.Parse("not.a.token")
		require.ErrorIs(t, err, apperror.ErrUnauthorized)
	})
}
