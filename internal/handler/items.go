package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/service"
)

// ItemHandler serves the item catalogue
type ItemHandler struct {
	items    *service.ItemService
	pageSize int
	logger   *slog.Logger
}

func NewItemHandler(items *service.ItemService, defaultPageSize int, logger *slog.Logger) *ItemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	return &ItemHandler{items: items, pageSize: defaultPageSize, logger: logger}
}

type CreateItemRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Quantity int             `json:"quantity"`
}

// UpdateItemRequest fields left out of the body stay unchanged
type UpdateItemRequest struct {
	Name     *string          `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Category *string          `json:"category"`
	Quantity *int             `json:"quantity"`
}

// itemID reads the {id} route parameter. The route pattern only admits digits,
// so a parse failure means the id overflowed and cannot exist.
func itemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domain.NotFound("Item not found")
	}
	return id, nil
}

// Get handles GET /api/items/{id}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	item, err := h.items.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, itemResponse(item))
}

// List handles GET /api/items?page=&maxPageSize=&category=
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	var fields []domain.FieldError
	in := service.ListItemsInput{
		Paging: service.Paging{
			Number: queryInt(r, "page", 1, &fields),
			Size:   queryInt(r, "maxPageSize", h.pageSize, &fields),
		},
		Category: r.URL.Query().Get("category"),
	}
	if len(fields) > 0 {
		writeError(w, h.logger, r, domain.Invalid(fields...))
		return
	}

	items, err := h.items.List(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	out := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse(it))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// Create handles POST /api/items
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	sellerID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req CreateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	item, err := h.items.Create(r.Context(), sellerID, service.CreateItemInput{
		Name:     req.Name,
		Price:    req.Price,
		Category: req.Category,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	w.Header().Set("Location", "/api/items/"+strconv.FormatInt(item.ID, 10))
	respondWithJSON(w, http.StatusCreated, itemResponse(item))
}

// Update handles PATCH /api/items/{id}
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	sellerID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	id, err := itemID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req UpdateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	err = h.items.Update(r.Context(), id, sellerID, service.UpdateItemInput{
		Name:     req.Name,
		Price:    req.Price,
		Category: req.Category,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/items/{id}
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sellerID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	id, err := itemID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.items.Delete(r.Context(), id, sellerID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
