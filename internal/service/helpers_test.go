package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/locker"
	"github.com/kondiv/shop/internal/repository/memory"
	"github.com/kondiv/shop/internal/security/auth"
)

type fixture struct {
	store     *memory.Store
	auth      *AuthService
	items     *ItemService
	purchases *PurchaseService
	tokens    *auth.TokenManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	tokens := auth.NewTokenManager("test-secret", "shop", "shop-clients", time.Hour)

	authSvc := NewAuthService(store.Users(), tokens, locker.NewMutex(), nil)
	authSvc.cost = bcrypt.MinCost

	return &fixture{
		store:     store,
		auth:      authSvc,
		items:     NewItemService(store.Users(), store.Items(), store, nil),
		purchases: NewPurchaseService(store.Users(), store.Items(), store.Purchases(), store, locker.NewMutex(), nil),
		tokens:    tokens,
	}
}

func (f *fixture) user(t *testing.T, login string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Login: login, Username: login, PasswordHash: "x", Role: role, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) item(t *testing.T, seller *domain.User, price string, qty int) *domain.Item {
	t.Helper()
	it := &domain.Item{
		Name:     "item",
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		Category: domain.CategoryElectronics,
		SellerID: seller.ID,
	}
	require.NoError(t, f.store.Items().Create(context.Background(), it))
	return it
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	it, err := f.store.Items().GetByID(context.Background(), id)
	require.NoError(t, err)
	return it.Quantity
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	names := make([]string, 0, len(de.Fields))
	for _, f := range de.Fields {
		names = append(names, f.Field)
	}
	return names
}
