package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kondiv/shop/internal/domain"
)

// PostgresPurchaseRepository implements domain.PurchaseRepository using PostgreSQL
type PostgresPurchaseRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresPurchaseRepository creates a new purchase repository
func NewPostgresPurchaseRepository(db *sqlx.DB, logger *slog.Logger) *PostgresPurchaseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPurchaseRepository{db: db, logger: logger}
}

type purchaseViewRow struct {
	ID             uuid.UUID       `db:"id"`
	ItemID         int64           `db:"item_id"`
	BuyerID        uuid.UUID       `db:"buyer_id"`
	SellerID       uuid.UUID       `db:"seller_id"`
	Quantity       int             `db:"quantity"`
	TotalPrice     decimal.Decimal `db:"total_price"`
	CreatedAt      time.Time       `db:"created_at"`
	ItemName       string          `db:"item_name"`
	ItemPrice      decimal.Decimal `db:"item_price"`
	BuyerUsername  string          `db:"buyer_username"`
	BuyerRole      domain.Role     `db:"buyer_role"`
	SellerUsername string          `db:"seller_username"`
	SellerRole     domain.Role     `db:"seller_role"`
}

func (r purchaseViewRow) view() *domain.PurchaseView {
	return &domain.PurchaseView{
		Purchase: domain.Purchase{
			ID:         r.ID,
			ItemID:     r.ItemID,
			BuyerID:    r.BuyerID,
			SellerID:   r.SellerID,
			Quantity:   r.Quantity,
			TotalPrice: r.TotalPrice,
			CreatedAt:  r.CreatedAt.UTC(),
		},
		Item:   domain.ItemSummary{ID: r.ItemID, Name: r.ItemName, Price: r.ItemPrice},
		Buyer:  domain.UserSummary{ID: r.BuyerID, Username: r.BuyerUsername, Role: r.BuyerRole},
		Seller: domain.UserSummary{ID: r.SellerID, Username: r.SellerUsername, Role: r.SellerRole},
	}
}

const purchaseViewSelect = `
	SELECT p.id, p.item_id, p.buyer_id, p.seller_id, p.quantity, p.total_price, p.created_at,
	       i.name AS item_name, i.price AS item_price,
	       b.username AS buyer_username, b.role AS buyer_role,
	       s.username AS seller_username, s.role AS seller_role
	FROM purchases p
	JOIN items i ON i.id = p.item_id
	JOIN users b ON b.id = p.buyer_id
	JOIN users s ON s.id = p.seller_id`

// Create appends a purchase to the ledger
func (r *PostgresPurchaseRepository) Create(ctx context.Context, p *domain.Purchase) error {
	_, err := sqlx.NamedExecContext(ctx, getExecutor(ctx, r.db), `
		INSERT INTO purchases (id, item_id, buyer_id, seller_id, quantity, total_price, created_at)
		VALUES (:id, :item_id, :buyer_id, :seller_id, :quantity, :total_price, :created_at)
	`, p)
	if err != nil {
		switch pqCode(err) {
		case uniqueViolation:
			return domain.Conflict("Purchase already recorded")
		case foreignKeyViolation:
			return domain.ErrNotFound
		}
		r.logger.Error("failed to create purchase",
			slog.String("purchase_id", p.ID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// GetView retrieves a purchase joined with its item, buyer and seller
func (r *PostgresPurchaseRepository) GetView(ctx context.Context, id uuid.UUID) (*domain.PurchaseView, error) {
	var row purchaseViewRow
	if err := sqlx.GetContext(ctx, getExecutor(ctx, r.db), &row, purchaseViewSelect+` WHERE p.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return row.view(), nil
}

// ListByBuyer returns a page of the buyer's purchases, oldest first
func (r *PostgresPurchaseRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, offset, limit int) ([]*domain.PurchaseView, error) {
	var rows []purchaseViewRow
	err := sqlx.SelectContext(ctx, getExecutor(ctx, r.db), &rows,
		purchaseViewSelect+` WHERE p.buyer_id = $1 ORDER BY p.created_at, p.id OFFSET $2 LIMIT $3`,
		buyerID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	out := make([]*domain.PurchaseView, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.view())
	}
	return out, nil
}
