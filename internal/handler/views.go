package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kondiv/shop/internal/domain"
)

// money renders a price as a JSON number with two decimals
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type UserResponse struct {
	ID       uuid.UUID   `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

func userResponse(u domain.UserSummary) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Role: u.Role}
}

type ItemResponse struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    json.Number     `json:"price"`
	Quantity int             `json:"quantity"`
	Category domain.Category `json:"category"`
	Seller   UserResponse    `json:"seller"`
}

func itemResponse(v *domain.ItemView) ItemResponse {
	return ItemResponse{
		ID:       v.ID,
		Name:     v.Name,
		Price:    money(v.Price),
		Quantity: v.Quantity,
		Category: v.Category,
		Seller:   userResponse(v.Seller),
	}
}

type PurchaseItemResponse struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
}

type PurchaseResponse struct {
	ID         uuid.UUID            `json:"id"`
	Quantity   int                  `json:"quantity"`
	TotalPrice json.Number          `json:"totalPrice"`
	CreatedAt  time.Time            `json:"createdAt"`
	Item       PurchaseItemResponse `json:"item"`
	Buyer      UserResponse         `json:"buyer"`
	Seller     UserResponse         `json:"seller"`
}

func purchaseResponse(v *domain.PurchaseView) PurchaseResponse {
	return PurchaseResponse{
		ID:         v.ID,
		Quantity:   v.Quantity,
		TotalPrice: money(v.TotalPrice),
		CreatedAt:  v.CreatedAt.UTC(),
		Item:       PurchaseItemResponse{ID: v.Item.ID, Name: v.Item.Name, Price: money(v.Item.Price)},
		Buyer:      userResponse(v.Buyer),
		Seller:     userResponse(v.Seller),
	}
}
