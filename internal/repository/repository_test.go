package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/pkg/database"
)

// openTestPool connects to DATABASE_URL and applies migrations, or skips.
func openTestPool(t *testing.T) *database.ConnectionPool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := database.NewConnectionPool(context.Background(), database.Config{URL: url}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Migrate())
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestPostgresPurchaseFlow(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	users := NewPostgresUserRepository(pool.DB(), nil)
	items := NewPostgresItemRepository(pool.DB(), nil)
	purchases := NewPostgresPurchaseRepository(pool.DB(), nil)
	tx := NewTxRunner(pool.DB(), nil)

	suffix := uuid.NewString()[:8]
	seller := &domain.User{Login: "seller-" + suffix, Username: "seller", PasswordHash: "x", Role: domain.RoleSeller}
	buyer := &domain.User{Login: "buyer-" + suffix, Username: "buyer", PasswordHash: "x", Role: domain.RoleBuyer}
	require.NoError(t, users.Create(ctx, seller))
	require.NoError(t, users.Create(ctx, buyer))

	dup := &domain.User{Login: "SELLER-" + suffix, Username: "dup", PasswordHash: "x", Role: domain.RoleSeller}
	assert.ErrorIs(t, users.Create(ctx, dup), domain.ErrConflict)

	item := &domain.Item{Name: "kettle", Price: decimal.RequireFromString("100.50"), Quantity: 10, Category: domain.CategoryHome, SellerID: seller.ID}
	require.NoError(t, items.Create(ctx, item))
	require.NotZero(t, item.ID)

	p := &domain.Purchase{
		ID:         uuid.New(),
		ItemID:     item.ID,
		BuyerID:    buyer.ID,
		SellerID:   seller.ID,
		Quantity:   3,
		TotalPrice: item.Price.Mul(decimal.NewFromInt(3)),
		CreatedAt:  time.Now().UTC(),
	}
	err := tx.RunAtomic(ctx, func(ctx context.Context) error {
		locked, err := items.GetByID(ctx, item.ID)
		if err != nil {
			return err
		}
		locked.Quantity -= p.Quantity
		if err := items.Update(ctx, locked); err != nil {
			return err
		}
		return purchases.Create(ctx, p)
	})
	require.NoError(t, err)

	view, err := purchases.GetView(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("301.50").Equal(view.TotalPrice))
	assert.Equal(t, "kettle", view.Item.Name)
	assert.Equal(t, domain.RoleBuyer, view.Buyer.Role)

	stored, err := items.GetView(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Quantity)

	history, err := purchases.ListByBuyer(ctx, buyer.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	assert.ErrorIs(t, items.Delete(ctx, item.ID), domain.ErrConflict)
	_, err = items.GetByID(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
