package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondiv/shop/internal/domain"
)

func testUser() *domain.User {
	return &domain.User{ID: uuid.New(), Login: "bob", Username: "Bob", Role: domain.RoleSeller}
}

func TestIssueAndValidate(t *testing.T) {
	tm := NewTokenManager("secret", "shop", "shop-clients", 30*time.Minute)
	user := testUser()

	tok, err := tm.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, tok.Lifetime)

	claims, err := tm.ValidateToken(tok.Value)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
	assert.Equal(t, domain.RoleSeller, claims.Role)
	assert.Equal(t, "Bob", claims.Username)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateRejectsForeignSecretIssuerAndAudience(t *testing.T) {
	user := testUser()
	tok, err := NewTokenManager("secret", "shop", "shop-clients", time.Minute).Issue(user)
	require.NoError(t, err)

	for name, tm := range map[string]*TokenManager{
		"secret":   NewTokenManager("other", "shop", "shop-clients", time.Minute),
		"issuer":   NewTokenManager("secret", "other", "shop-clients", time.Minute),
		"audience": NewTokenManager("secret", "shop", "other", time.Minute),
	} {
		_, err := tm.ValidateToken(tok.Value)
		assert.Error(t, err, name)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", "", "", time.Minute)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, err := tm.Issue(testUser())
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateToken(tok.Value)
	assert.Error(t, err)
}

func TestExtractTokenPrefersCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})

	got, err := ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", got)
}

func TestExtractTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")

	got, err := ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractToken(r)
	assert.Error(t, err)

	r.Header.Del("Authorization")
	_, err = ExtractToken(r)
	assert.ErrorIs(t, err, ErrNoToken)
}
