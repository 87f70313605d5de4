package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/auth"
)

// NewRouter wires all public, customer and admin routes. The session
// middleware runs on everything so guest carts work without a login; the
// optional auth middleware upgrades requests that carry a valid token.
func NewRouter(h *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.SessionMiddleware)
	r.Use(middleware.OptionalAuthMiddleware(jwtService))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandlers.Register)
			r.Post("/login", authHandlers.Login)
			r.Post("/logout", authHandlers.Logout)
			r.Post("/refresh", authHandlers.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(jwtService))
				r.Get("/me", authHandlers.Me)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)
		})
		r.Get("/categories", h.ListCategories)
		r.Get("/flash-sales", h.ListActiveSales)
		r.Post("/shipping/estimate", h.EstimateShipping)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddToCart)
			r.Put("/items/{productID}", h.UpdateCartItem)
			r.Delete("/items/{productID}", h.RemoveCartItem)
			r.Post("/coupon", h.ApplyCoupon)
			r.Delete("/coupon", h.RemoveCoupon)
		})

		r.Post("/checkout", h.Checkout)
		r.Get("/orders/track/{number}", h.TrackOrder)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))
			r.Get("/orders", h.GetMyOrders)
			r.Get("/orders/{id}", h.GetMyOrder)
			r.Get("/orders/{id}/history", h.GetMyOrderHistory)
			r.Post("/orders/{id}/cancel", h.CancelMyOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))
			r.Use(middleware.RequireRole(auth.RoleAdmin))

			r.Route("/products", func(r chi.Router) {
				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", h.ListAllCategories)
				r.Post("/", h.CreateCategory)
				r.Put("/{id}", h.UpdateCategory)
				r.Delete("/{id}", h.DeleteCategory)
			})

			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", h.ListCoupons)
				r.Post("/", h.CreateCoupon)
				r.Put("/{id}", h.UpdateCoupon)
				r.Delete("/{id}", h.DeleteCoupon)
			})

			r.Route("/flash-sales", func(r chi.Router) {
				r.Get("/", h.ListFlashSales)
				r.Post("/", h.CreateFlashSale)
				r.Put("/{id}", h.UpdateFlashSale)
				r.Delete("/{id}", h.DeleteFlashSale)
			})

			r.Route("/shipping-zones", func(r chi.Router) {
				r.Get("/", h.ListZones)
				r.Post("/", h.CreateZone)
				r.Put("/{id}", h.UpdateZone)
				r.Delete("/{id}", h.DeleteZone)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListAllOrders)
				r.Get("/{id}", h.GetAnyOrder)
				r.Get("/{id}/history", h.GetOrderHistory)
				r.Put("/{id}/status", h.UpdateOrderStatus)
			})
		})
	})

	return r
}
