package domain

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category is the closed set of item categories.
type Category int

const (
	CategoryElectronics Category = iota + 1
	CategoryClothing
	CategoryBooks
	CategoryHome
	CategorySports
	CategoryToys
	CategoryFood
	CategoryOther
)

var categoryNames = []string{
	CategoryElectronics: "Electronics",
	CategoryClothing:    "Clothing",
	CategoryBooks:       "Books",
	CategoryHome:        "Home",
	CategorySports:      "Sports",
	CategoryToys:        "Toys",
	CategoryFood:        "Food",
	CategoryOther:       "Other",
}

// Categories lists every category in declaration order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryNames)-1)
	for c := CategoryElectronics; int(c) < len(categoryNames); c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(categoryNames[c], s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

func (c Category) Valid() bool {
	return c > 0 && int(c) < len(categoryNames)
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c *Category) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Category", src)
	}
}

func (c Category) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return c.String(), nil
}

// Item is a sellable unit owned by a seller
type Item struct {
	ID       int64           `db:"id"`
	Name     string          `db:"name"`
	Price    decimal.Decimal `db:"price"`
	Quantity int             `db:"quantity"` // Never negative
	Category Category        `db:"category"`
	SellerID uuid.UUID       `db:"seller_id"`
}

// ItemView is an item joined with its seller
type ItemView struct {
	Item
	Seller UserSummary
}

// ItemPatch carries a partial update. A nil field is left unchanged.
type ItemPatch struct {
	Name     *string
	Price    *decimal.Decimal
	Category *Category
	Quantity *int
}

// Apply writes the present fields onto item.
func (p ItemPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
}

// ItemFilter selects a page of items.
type ItemFilter struct {
	Category *Category
	Offset   int
	Limit    int
}

// ItemRepository defines data access for items
type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id int64) (*Item, error)
	GetView(ctx context.Context, id int64) (*ItemView, error)
	List(ctx context.Context, filter ItemFilter) ([]*ItemView, error)
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id int64) error
}
