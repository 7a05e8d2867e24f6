package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/locker"
	"github.com/kondiv/shop/internal/observability/metrics"
	"github.com/kondiv/shop/internal/observability/tracing"
)

// PurchaseService records purchases and serves purchase history
type PurchaseService struct {
	users     domain.UserRepository
	items     domain.ItemRepository
	purchases domain.PurchaseRepository
	tx        domain.Transactor
	lock      locker.Locker
	now       func() time.Time
	logger    *slog.Logger
}

// NewPurchaseService creates a purchase service. lock serializes every
// purchase attempt and must not be shared with the registration lock.
func NewPurchaseService(
	users domain.UserRepository,
	items domain.ItemRepository,
	purchases domain.PurchaseRepository,
	tx domain.Transactor,
	lock locker.Locker,
	logger *slog.Logger,
) *PurchaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseService{
		users:     users,
		items:     items,
		purchases: purchases,
		tx:        tx,
		lock:      lock,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// CreatePurchaseInput is the raw purchase request
type CreatePurchaseInput struct {
	ItemID   int64
	Quantity int
}

var (
	errOwnItem      = domain.BusinessRule("Attempt to buy own product")
	errNotEnough    = domain.BusinessRule("Not enough items")
	errNoBuyer      = domain.Unauthorized("Buyer does not exist")
	errNoPurchase   = domain.NotFound("Purchase not found")
	errUserNotFound = domain.NotFound("User not found")
)

// Create buys in.Quantity units of an item for buyerID. Checks run in order:
// item exists, buyer is not the seller, stock suffices, buyer exists.
// Stock decrement and ledger entry commit together or not at all.
func (s *PurchaseService) Create(ctx context.Context, buyerID uuid.UUID, in CreatePurchaseInput) (_ *domain.PurchaseView, err error) {
	ctx, end := tracing.Start(ctx, "PurchaseService.Create")
	defer func() { end(err) }()

	if in.Quantity <= 0 {
		metrics.ObservePurchase("invalid", 0)
		return nil, domain.Invalid(domain.FieldError{Field: "quantity", Message: "quantity must be greater than 0"})
	}

	waitStart := time.Now()
	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		metrics.ObservePurchase("cancelled", 0)
		return nil, fmt.Errorf("acquire purchase lock: %w", err)
	}
	defer unlock()
	metrics.ObservePurchaseLockWait(time.Since(waitStart))

	purchase, err := s.create(ctx, buyerID, in)
	metrics.ObservePurchase(purchaseResult(err), in.Quantity)
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase created",
		slog.String("purchase_id", purchase.ID.String()),
		slog.Int64("item_id", purchase.ItemID),
		slog.String("buyer_id", buyerID.String()),
		slog.Int("quantity", purchase.Quantity),
		slog.String("total_price", purchase.TotalPrice.StringFixed(2)),
	)

	view, err := s.purchases.GetView(ctx, purchase.ID)
	if err != nil {
		return nil, fmt.Errorf("load purchase: %w", err)
	}
	return view, nil
}

func (s *PurchaseService) create(ctx context.Context, buyerID uuid.UUID, in CreatePurchaseInput) (*domain.Purchase, error) {
	var purchase *domain.Purchase

	err := s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		item, err := s.items.GetByID(ctx, in.ItemID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errItemNotFound
			}
			return fmt.Errorf("get item: %w", err)
		}

		if item.SellerID == buyerID {
			return errOwnItem
		}
		if in.Quantity > item.Quantity {
			return errNotEnough
		}

		if _, err := s.users.GetByID(ctx, buyerID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errNoBuyer
			}
			return fmt.Errorf("get buyer: %w", err)
		}

		item.Quantity -= in.Quantity
		if err := s.items.Update(ctx, item); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		purchase = &domain.Purchase{
			ID:         uuid.New(),
			ItemID:     item.ID,
			BuyerID:    buyerID,
			SellerID:   item.SellerID,
			Quantity:   in.Quantity,
			TotalPrice: item.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
			CreatedAt:  s.now(),
		}
		if err := s.purchases.Create(ctx, purchase); err != nil {
			return fmt.Errorf("record purchase: %w", err)
		}
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			s.logger.Error("purchase failed",
				slog.Int64("item_id", in.ItemID),
				slog.String("buyer_id", buyerID.String()),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	return purchase, nil
}

func purchaseResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case err == errOwnItem: // both business-rule kind, told apart by identity
		return "own_item"
	case err == errNotEnough:
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

// Get returns one purchase with its item, buyer and seller
func (s *PurchaseService) Get(ctx context.Context, id uuid.UUID) (*domain.PurchaseView, error) {
	view, err := s.purchases.GetView(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errNoPurchase
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return view, nil
}

// ListBuyerPurchases returns a page of a buyer's purchase history, oldest first
func (s *PurchaseService) ListBuyerPurchases(ctx context.Context, buyerID uuid.UUID, page Paging) ([]*domain.PurchaseView, error) {
	buyer, err := s.users.GetByID(ctx, buyerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find buyer: %w", err)
	}
	if buyer == nil || buyer.Role != domain.RoleBuyer {
		return nil, errUserNotFound
	}

	var v validator
	page.validate(&v)
	if err := v.err(); err != nil {
		return nil, err
	}

	history, err := s.purchases.ListByBuyer(ctx, buyerID, page.offset(), page.Size)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return history, nil
}
