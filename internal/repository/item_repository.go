package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kondiv/shop/internal/domain"
)

// PostgresItemRepository implements domain.ItemRepository using PostgreSQL
type PostgresItemRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresItemRepository creates a new item repository
func NewPostgresItemRepository(db *sqlx.DB, logger *slog.Logger) *PostgresItemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresItemRepository{db: db, logger: logger}
}

// itemViewRow is one row of the items-users join
type itemViewRow struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	Price          decimal.Decimal `db:"price"`
	Quantity       int             `db:"quantity"`
	Category       domain.Category `db:"category"`
	SellerID       uuid.UUID       `db:"seller_id"`
	SellerUsername string          `db:"seller_username"`
	SellerRole     domain.Role     `db:"seller_role"`
}

func (r itemViewRow) view() *domain.ItemView {
	return &domain.ItemView{
		Item: domain.Item{
			ID:       r.ID,
			Name:     r.Name,
			Price:    r.Price,
			Quantity: r.Quantity,
			Category: r.Category,
			SellerID: r.SellerID,
		},
		Seller: domain.UserSummary{ID: r.SellerID, Username: r.SellerUsername, Role: r.SellerRole},
	}
}

const itemViewSelect = `
	SELECT i.id, i.name, i.price, i.quantity, i.category, i.seller_id,
	       u.username AS seller_username, u.role AS seller_role
	FROM items i
	JOIN users u ON u.id = i.seller_id`

// Create inserts a new item and sets its generated ID
func (r *PostgresItemRepository) Create(ctx context.Context, item *domain.Item) error {
	err := sqlx.GetContext(ctx, getExecutor(ctx, r.db), &item.ID, `
		INSERT INTO items (name, price, quantity, category, seller_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, item.Name, item.Price, item.Quantity, item.Category, item.SellerID)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return domain.ErrNotFound
		}
		r.logger.Error("failed to create item",
			slog.String("seller_id", item.SellerID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetByID retrieves an item by ID. Inside a transaction the row is locked for update.
func (r *PostgresItemRepository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	query := `SELECT id, name, price, quantity, category, seller_id FROM items WHERE id = $1`
	if _, inTx := ctx.Value(txKey{}).(*sqlx.Tx); inTx {
		query += ` FOR UPDATE`
	}

	item := &domain.Item{}
	if err := sqlx.GetContext(ctx, getExecutor(ctx, r.db), item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// GetView retrieves an item joined with its seller
func (r *PostgresItemRepository) GetView(ctx context.Context, id int64) (*domain.ItemView, error) {
	var row itemViewRow
	if err := sqlx.GetContext(ctx, getExecutor(ctx, r.db), &row, itemViewSelect+` WHERE i.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return row.view(), nil
}

// List returns a page of items ordered by ID
func (r *PostgresItemRepository) List(ctx context.Context, filter domain.ItemFilter) ([]*domain.ItemView, error) {
	var rows []itemViewRow
	var err error
	if filter.Category != nil {
		err = sqlx.SelectContext(ctx, getExecutor(ctx, r.db), &rows,
			itemViewSelect+` WHERE i.category = $1 ORDER BY i.id OFFSET $2 LIMIT $3`,
			*filter.Category, filter.Offset, filter.Limit)
	} else {
		err = sqlx.SelectContext(ctx, getExecutor(ctx, r.db), &rows,
			itemViewSelect+` ORDER BY i.id OFFSET $1 LIMIT $2`,
			filter.Offset, filter.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	out := make([]*domain.ItemView, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.view())
	}
	return out, nil
}

// Update overwrites the mutable columns of an item
func (r *PostgresItemRepository) Update(ctx context.Context, item *domain.Item) error {
	res, err := sqlx.NamedExecContext(ctx, getExecutor(ctx, r.db), `
		UPDATE items
		SET name = :name, price = :price, quantity = :quantity, category = :category
		WHERE id = :id
	`, item)
	if err != nil {
		r.logger.Error("failed to update item",
			slog.Int64("item_id", item.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to update item: %w", err)
	}
	return expectRow(res)
}

// Delete removes an item. Items referenced by purchases cannot be removed.
func (r *PostgresItemRepository) Delete(ctx context.Context, id int64) error {
	res, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return domain.Conflict("Item is referenced by purchases")
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
