package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kondiv/shop/internal/domain"
)

const (
	maxItemName     = 128
	maxItemQuantity = 1_000_000
)

// Prices are stored as NUMERIC(18,2): two decimals, and a cap that keeps
// price times maxItemQuantity representable.
var maxItemPrice = decimal.RequireFromString("999999.99")

// ItemService manages the seller catalogue
type ItemService struct {
	users  domain.UserRepository
	items  domain.ItemRepository
	tx     domain.Transactor
	logger *slog.Logger
}

// NewItemService creates an item service. Updates and deletes run inside tx so
// they cannot interleave with a purchase touching the same row.
func NewItemService(users domain.UserRepository, items domain.ItemRepository, tx domain.Transactor, logger *slog.Logger) *ItemService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemService{users: users, items: items, tx: tx, logger: logger}
}

func validatePrice(v *validator, price decimal.Decimal) {
	switch {
	case !price.IsPositive():
		v.add("price", "price must be greater than 0")
	case price.GreaterThan(maxItemPrice):
		v.add("price", "price must be at most %s", maxItemPrice.StringFixed(2))
	case !price.Equal(price.Truncate(2)):
		v.add("price", "price must have at most 2 decimal places")
	}
}

// CreateItemInput is the raw item creation request
type CreateItemInput struct {
	Name     string
	Price    decimal.Decimal
	Category string
	Quantity int
}

// UpdateItemInput carries only the fields present in the request
type UpdateItemInput struct {
	Name     *string
	Price    *decimal.Decimal
	Category *string
	Quantity *int
}

// ListItemsInput selects a page of the catalogue. Category may be empty.
type ListItemsInput struct {
	Paging
	Category string
}

var errItemNotFound = domain.NotFound("Item not found")

// Create adds an item owned by sellerID
func (s *ItemService) Create(ctx context.Context, sellerID uuid.UUID, in CreateItemInput) (*domain.ItemView, error) {
	seller, err := s.users.GetByID(ctx, sellerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find seller: %w", err)
	}
	if seller == nil || seller.Role != domain.RoleSeller {
		return nil, domain.Forbidden("Only sellers can create items")
	}

	in.Name = strings.TrimSpace(in.Name)

	var v validator
	v.length("name", in.Name, 1, maxItemName)
	validatePrice(&v, in.Price)
	category := v.category("category", in.Category)
	switch {
	case in.Quantity <= 0:
		v.add("quantity", "quantity must be greater than 0")
	case in.Quantity > maxItemQuantity:
		v.add("quantity", "quantity must be at most %d", maxItemQuantity)
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	item := &domain.Item{
		Name:     in.Name,
		Price:    in.Price,
		Quantity: in.Quantity,
		Category: category,
		SellerID: seller.ID,
	}
	if err := s.items.Create(ctx, item); err != nil {
		s.logger.Error("failed to create item",
			slog.String("seller_id", sellerID.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.logger.Info("item created",
		slog.Int64("item_id", item.ID),
		slog.String("seller_id", sellerID.String()),
	)
	return &domain.ItemView{Item: *item, Seller: seller.Summary()}, nil
}

// Get returns one item with its seller
func (s *ItemService) Get(ctx context.Context, id int64) (*domain.ItemView, error) {
	view, err := s.items.GetView(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return view, nil
}

// List returns a page of items ordered by id
func (s *ItemService) List(ctx context.Context, in ListItemsInput) ([]*domain.ItemView, error) {
	var v validator
	in.Paging.validate(&v)
	filter := domain.ItemFilter{Offset: in.offset(), Limit: in.Size}
	if strings.TrimSpace(in.Category) != "" {
		c := v.category("category", in.Category)
		filter.Category = &c
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Update applies the present fields to an item owned by sellerID. The read and
// the write share one transaction, so a concurrent purchase's stock decrement
// is never overwritten.
func (s *ItemService) Update(ctx context.Context, id int64, sellerID uuid.UUID, in UpdateItemInput) error {
	var patch domain.ItemPatch
	var v validator
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		v.length("name", name, 1, maxItemName)
		patch.Name = &name
	}
	if in.Price != nil {
		validatePrice(&v, *in.Price)
		patch.Price = in.Price
	}
	if in.Category != nil {
		c := v.category("category", *in.Category)
		patch.Category = &c
	}
	if in.Quantity != nil {
		switch {
		case *in.Quantity < 0:
			v.add("quantity", "quantity must not be negative")
		case *in.Quantity > maxItemQuantity:
			v.add("quantity", "quantity must be at most %d", maxItemQuantity)
		}
		patch.Quantity = in.Quantity
	}

	err := s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		item, err := s.owned(ctx, id, sellerID)
		if err != nil {
			return err
		}
		if err := v.err(); err != nil {
			return err
		}

		patch.Apply(item)
		if err := s.items.Update(ctx, item); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errItemNotFound
			}
			return fmt.Errorf("update item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("item updated", slog.Int64("item_id", id))
	return nil
}

// Delete removes an item owned by sellerID
func (s *ItemService) Delete(ctx context.Context, id int64, sellerID uuid.UUID) error {
	err := s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		if _, err := s.owned(ctx, id, sellerID); err != nil {
			return err
		}

		if err := s.items.Delete(ctx, id); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return errItemNotFound
			case errors.Is(err, domain.ErrConflict):
				return err
			}
			return fmt.Errorf("delete item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("item deleted", slog.Int64("item_id", id))
	return nil
}

// ItemOwner returns the seller of an item
func (s *ItemService) ItemOwner(ctx context.Context, itemID int64) (uuid.UUID, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, errItemNotFound
		}
		return uuid.Nil, fmt.Errorf("get item: %w", err)
	}
	return item.SellerID, nil
}

// IsOwner reports whether userID sells the item. A missing item is not owned.
func (s *ItemService) IsOwner(ctx context.Context, itemID int64, userID uuid.UUID) (bool, error) {
	owner, err := s.ItemOwner(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return owner == userID, nil
}

func (s *ItemService) owned(ctx context.Context, id int64, sellerID uuid.UUID) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item.SellerID != sellerID {
		return nil, errItemNotFound
	}
	return item, nil
}
