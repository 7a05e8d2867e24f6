package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondiv/shop/internal/domain"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.auth.Register(ctx, RegisterInput{Login: "alice", Username: "Alice", Password: "pass", Role: "buyer"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Username)
	assert.Equal(t, domain.RoleBuyer, u.Role)

	stored, err := f.store.Users().GetByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "pass", stored.PasswordHash)

	res, err := f.auth.Login(ctx, "alice", "pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)

	claims, err := f.tokens.ValidateToken(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.Subject)
	assert.Equal(t, domain.RoleBuyer, claims.Role)
}

func TestRegisterDuplicateLoginConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, RegisterInput{Login: "bob", Username: "Bob", Password: "pass", Role: "Seller"})
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, RegisterInput{Login: "bob", Username: "Other", Password: "pass", Role: "Buyer"})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "Login already taken", err.Error())

	exists, err := f.store.Users().GetByLogin(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", exists.Username)
}

func TestRegisterValidationCollectsAllFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Register(context.Background(), RegisterInput{Login: "a", Username: "", Password: "abc", Role: "admin"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.ElementsMatch(t, []string{"login", "password", "username", "role"}, fieldNames(t, err))
}

func TestRegisterValidationRunsBeforeConflict(t *testing.T) {
	f := newFixture(t)
	f.user(t, "carol", domain.RoleBuyer)

	_, err := f.auth.Register(context.Background(), RegisterInput{Login: "carol", Username: "c", Password: "pass", Role: "Buyer"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestConcurrentRegistrationCreatesOneUser(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.auth.Register(context.Background(), RegisterInput{Login: "dave", Username: "Dave", Password: "pass", Role: "Buyer"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, RegisterInput{Login: "erin", Username: "Erin", Password: "secret", Role: "Buyer"})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, "erin", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.auth.Login(ctx, "nobody", "secret")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, "Invalid credentials", err.Error())
}

func TestRegisterHonoursCancelledContext(t *testing.T) {
	f := newFixture(t)
	unlock, err := f.auth.lock.Lock(context.Background())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.auth.Register(ctx, RegisterInput{Login: "frank", Username: "Frank", Password: "pass", Role: "Buyer"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegisterRejectsPasswordBcryptCannotHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, RegisterInput{Login: "long", Username: "long", Password: strings.Repeat("a", 80), Role: "Buyer"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, []string{"password"}, fieldNames(t, err))

	// 40 runes but 80 bytes
	_, err = f.auth.Register(ctx, RegisterInput{Login: "runes", Username: "runes", Password: strings.Repeat("é", 40), Role: "Buyer"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.auth.Register(ctx, RegisterInput{Login: "edge", Username: "edge", Password: strings.Repeat("a", 72), Role: "Buyer"})
	require.NoError(t, err)
}
