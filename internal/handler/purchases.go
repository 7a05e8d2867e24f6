package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/service"
)

// PurchaseHandler serves purchase creation and history
type PurchaseHandler struct {
	purchases *service.PurchaseService
	pageSize  int
	logger    *slog.Logger
}

func NewPurchaseHandler(purchases *service.PurchaseService, defaultPageSize int, logger *slog.Logger) *PurchaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	return &PurchaseHandler{purchases: purchases, pageSize: defaultPageSize, logger: logger}
}

type CreatePurchaseRequest struct {
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

// Create handles POST /api/purchases
func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	buyerID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req CreatePurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	purchase, err := h.purchases.Create(r.Context(), buyerID, service.CreatePurchaseInput{
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	w.Header().Set("Location", "/api/purchases/"+purchase.ID.String())
	respondWithJSON(w, http.StatusCreated, purchaseResponse(purchase))
}

// Get handles GET /api/purchases/{id}
func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, domain.NotFound("Purchase not found"))
		return
	}

	purchase, err := h.purchases.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, purchaseResponse(purchase))
}

// History handles GET /api/purchases/history?page=&maxPageSize=
func (h *PurchaseHandler) History(w http.ResponseWriter, r *http.Request) {
	buyerID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var fields []domain.FieldError
	page := service.Paging{
		Number: queryInt(r, "page", 1, &fields),
		Size:   queryInt(r, "maxPageSize", h.pageSize, &fields),
	}
	if len(fields) > 0 {
		writeError(w, h.logger, r, domain.Invalid(fields...))
		return
	}

	history, err := h.purchases.ListBuyerPurchases(r.Context(), buyerID, page)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	out := make([]PurchaseResponse, 0, len(history))
	for _, p := range history {
		out = append(out, purchaseResponse(p))
	}
	respondWithJSON(w, http.StatusOK, out)
}
