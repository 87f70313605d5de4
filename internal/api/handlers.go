package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/example/storefront/internal/domain/shipping"
)

// Handlers carries the storefront's domain services. Admin endpoints live
// on the same struct; the router decides which routes get the role check.
type Handlers struct {
	catalog  *catalog.Service
	carts    *cart.Service
	orders   *order.Service
	promos   *promotion.Service
	shipping *shipping.Resolver
	log      *logrus.Logger
}

func NewHandlers(catalogSvc *catalog.Service, cartSvc *cart.Service, orderSvc *order.Service, promoSvc *promotion.Service, shippingSvc *shipping.Resolver, log *logrus.Logger) *Handlers {
	return &Handlers{
		catalog:  catalogSvc,
		carts:    cartSvc,
		orders:   orderSvc,
		promos:   promoSvc,
		shipping: shippingSvc,
		log:      log,
	}
}

// Catalog

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.ProductFilter{
		CategoryID: q.Get("category_id"),
		Search:     q.Get("search"),
		ActiveOnly: q.Get("include_inactive") != "true",
		Limit:      intQuery(q.Get("limit"), 20),
		Offset:     intQuery(q.Get("offset"), 0),
	}

	products, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context(), true)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handlers) ListActiveSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.promos.ActiveSales(r.Context(), time.Now())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

// EstimateShipping resolves the zone for an address before checkout so
// the storefront can show the shipping cost and delivery window up front.
func (h *Handlers) EstimateShipping(w http.ResponseWriter, r *http.Request) {
	var addr shipping.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	zone, err := h.shipping.FindForAddress(r.Context(), addr)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"zone":              zone.Name,
		"shipping_cost":     zone.ShippingCost,
		"delivery_time_min": zone.DeliveryTimeMin,
		"delivery_time_max": zone.DeliveryTimeMax,
	})
}

// Cart

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Cart requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	summary, err := h.carts.Summary(r.Context(), id, requestCustomer(r), time.Now())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Cart requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.carts.AddItem(r.Context(), id, req.ProductID, req.Quantity); err != nil {
		respondError(w, h.log, err)
		return
	}
	h.respondCart(w, r, id)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Cart requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.carts.UpdateItem(r.Context(), id, chi.URLParam(r, "productID"), req.Quantity); err != nil {
		respondError(w, h.log, err)
		return
	}
	h.respondCart(w, r, id)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Cart requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	if err := h.carts.RemoveItem(r.Context(), id, chi.URLParam(r, "productID")); err != nil {
		respondError(w, h.log, err)
		return
	}
	h.respondCart(w, r, id)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Cart requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	if err := h.carts.Clear(r.Context(), id); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Cart requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := h.carts.ApplyCoupon(r.Context(), id, req.Code, requestCustomer(r), time.Now())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handlers) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Cart requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	if err := h.carts.RemoveCoupon(r.Context(), id); err != nil {
		respondError(w, h.log, err)
		return
	}
	h.respondCart(w, r, id)
}

func (h *Handlers) respondCart(w http.ResponseWriter, r *http.Request, id cart.Identity) {
	summary, err := h.carts.Summary(r.Context(), id, requestCustomer(r), time.Now())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Checkout and orders

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIdentity(r)
	if !ok {
		respondJSONError(w, "Checkout requires a login or an X-Session-ID header", http.StatusBadRequest)
		return
	}

	var req struct {
		GuestEmail      string            `json:"guest_email"`
		ShippingAddress shipping.Address  `json:"shipping_address"`
		BillingAddress  *shipping.Address `json:"billing_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	placed, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		Identity:        id,
		Customer:        requestCustomer(r),
		GuestEmail:      req.GuestEmail,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	})
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, placed)
}

func (h *Handlers) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orders, err := h.orders.ListForCustomer(r.Context(), userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	o, err := h.orders.GetForCustomer(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetMyOrderHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orderID := chi.URLParam(r, "id")

	// Ownership check runs through the same path as the order fetch.
	if _, err := h.orders.GetForCustomer(r.Context(), orderID, userID); err != nil {
		respondError(w, h.log, err)
		return
	}

	history, err := h.orders.History(r.Context(), orderID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *Handlers) CancelMyOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Comment string `json:"comment"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	o, err := h.orders.CancelByCustomer(r.Context(), chi.URLParam(r, "id"), userID, req.Comment)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// TrackOrder is the unauthenticated lookup by order number, for guests who
// only have their confirmation email.
func (h *Handlers) TrackOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	history, err := h.orders.History(r.Context(), o.ID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"order_number":       o.OrderNumber,
		"status":             o.Status,
		"estimated_delivery": o.EstimatedDelivery,
		"delivered_at":       o.DeliveredAt,
		"history":            history,
	})
}

// Helpers

// requestIdentity picks the cart owner for this request. A logged-in user
// always acts on their user cart; otherwise the guest session id applies.
func requestIdentity(r *http.Request) (cart.Identity, bool) {
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		return cart.ForUser(userID), true
	}
	if sessionID := middleware.GetSessionID(r.Context()); sessionID != "" {
		return cart.ForSession(sessionID), true
	}
	return cart.Identity{}, false
}

func requestCustomer(r *http.Request) promotion.CustomerIdentity {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return promotion.CustomerIdentity{}
	}
	return promotion.CustomerIdentity{UserID: claims.UserID, Email: claims.Email}
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
