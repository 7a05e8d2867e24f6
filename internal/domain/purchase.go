package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase is an immutable ledger entry of one buyer acquiring a quantity of one item
type Purchase struct {
	ID         uuid.UUID       `db:"id"`
	ItemID     int64           `db:"item_id"`
	BuyerID    uuid.UUID       `db:"buyer_id"`
	SellerID   uuid.UUID       `db:"seller_id"`
	Quantity   int             `db:"quantity"`
	TotalPrice decimal.Decimal `db:"total_price"` // Price snapshot times quantity
	CreatedAt  time.Time       `db:"created_at"`
}

// ItemSummary is the item part of a purchase projection
type ItemSummary struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// PurchaseView is a purchase joined with its item, buyer and seller
type PurchaseView struct {
	Purchase
	Item   ItemSummary
	Buyer  UserSummary
	Seller UserSummary
}

// PurchaseRepository defines data access for the purchase ledger
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *Purchase) error
	GetView(ctx context.Context, id uuid.UUID) (*PurchaseView, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, offset, limit int) ([]*PurchaseView, error)
}

// Transactor runs fn so that every repository call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}
