package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/example/storefront/internal/domain/shipping"
	"github.com/example/storefront/internal/domain/user"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondError maps domain errors onto HTTP statuses. Anything unmapped is
// a 500 with a generic body; the real error goes to the log only.
func respondError(w http.ResponseWriter, log *logrus.Logger, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		respondJSONError(w, "Internal server error", status)
		return
	}
	respondJSONError(w, err.Error(), status)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, catalog.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrInvalidPrice),
		errors.Is(err, order.ErrInvalidAddress),
		errors.Is(err, order.ErrGuestEmailRequired),
		errors.Is(err, cart.ErrNoIdentity),
		errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort):
		return http.StatusBadRequest

	case errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, order.ErrNotOrderOwner),
		errors.Is(err, user.ErrAccountDisabled):
		return http.StatusForbidden

	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, promotion.ErrCouponNotFound),
		errors.Is(err, promotion.ErrSaleNotFound),
		errors.Is(err, shipping.ErrZoneNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound

	case errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, catalog.ErrProductInUse),
		errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, order.ErrOrderDelivered),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrCancellationNotAllowed),
		errors.Is(err, order.ErrInvalidStatus):
		return http.StatusConflict

	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, catalog.ErrProductInactive),
		errors.Is(err, promotion.ErrCouponInvalid),
		errors.Is(err, promotion.ErrCouponMinimumUnmet),
		errors.Is(err, promotion.ErrCouponLimitReached),
		errors.Is(err, promotion.ErrCustomerLimitReached):
		return http.StatusUnprocessableEntity

	case errors.Is(err, shipping.ErrNoActiveZones):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
