package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/example/storefront/internal/domain/shipping"
)

// Admin product management

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin category management

func (h *Handlers) ListAllCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context(), false)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Slug     string `json:"slug"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), req.Name, req.Slug, req.IsActive)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (h *Handlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var c catalog.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	c.ID = chi.URLParam(r, "id")

	if err := h.catalog.UpdateCategory(r.Context(), &c); err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin coupon management

func (h *Handlers) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.promos.ListCoupons(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, coupons)
}

func (h *Handlers) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var in promotion.CouponInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	coupon, err := h.promos.CreateCoupon(r.Context(), in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, coupon)
}

func (h *Handlers) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var in promotion.CouponInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	coupon, err := h.promos.UpdateCoupon(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, coupon)
}

func (h *Handlers) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.promos.DeleteCoupon(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin flash sale management

func (h *Handlers) ListFlashSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.promos.ListFlashSales(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *Handlers) CreateFlashSale(w http.ResponseWriter, r *http.Request) {
	var sale promotion.FlashSale
	if err := json.NewDecoder(r.Body).Decode(&sale); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.promos.CreateFlashSale(r.Context(), &sale); err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, sale)
}

func (h *Handlers) UpdateFlashSale(w http.ResponseWriter, r *http.Request) {
	var sale promotion.FlashSale
	if err := json.NewDecoder(r.Body).Decode(&sale); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sale.ID = chi.URLParam(r, "id")

	if err := h.promos.UpdateFlashSale(r.Context(), &sale); err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

func (h *Handlers) DeleteFlashSale(w http.ResponseWriter, r *http.Request) {
	if err := h.promos.DeleteFlashSale(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin shipping zone management

func (h *Handlers) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.shipping.ListZones(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, zones)
}

func (h *Handlers) CreateZone(w http.ResponseWriter, r *http.Request) {
	var in shipping.ZoneInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	zone, err := h.shipping.CreateZone(r.Context(), in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, zone)
}

func (h *Handlers) UpdateZone(w http.ResponseWriter, r *http.Request) {
	var in shipping.ZoneInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	zone, err := h.shipping.UpdateZone(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, zone)
}

func (h *Handlers) DeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := h.shipping.DeleteZone(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin order management

func (h *Handlers) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	orders, err := h.orders.List(r.Context(), intQuery(q.Get("limit"), 20), intQuery(q.Get("offset"), 0))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetAnyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.orders.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	changedBy := "admin"
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok {
		changedBy = claims.Email
	}

	o, err := h.orders.UpdateStatus(r.Context(), order.TransitionRequest{
		OrderID:   chi.URLParam(r, "id"),
		To:        order.Status(req.Status),
		Comment:   req.Comment,
		ChangedBy: changedBy,
	})
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
