package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrLineNotFound = errors.New("cart line not found")
	ErrNoIdentity   = errors.New("cart identity requires a user id or a session id")
)

// Identity is the explicit cart owner: the user ID when authenticated,
// otherwise the guest session ID. It is threaded through every cart and
// checkout call instead of being read from ambient session state.
type Identity struct {
	UserID    string
	SessionID string
}

func ForUser(userID string) Identity       { return Identity{UserID: userID} }
func ForSession(sessionID string) Identity { return Identity{SessionID: sessionID} }

func (id Identity) Valid() bool {
	return id.UserID != "" || id.SessionID != ""
}

// Line is one product entry in a cart, keyed by owner and product.
type Line struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SummaryLine is a cart line priced for display and checkout.
type SummaryLine struct {
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	CategoryID string          `json:"category_id,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// Summary is the computed cart state: subtotal, the discount from the
// applied coupon (zero when none or no longer valid), and the payable
// total before shipping.
type Summary struct {
	Lines      []SummaryLine   `json:"lines"`
	CouponCode string          `json:"coupon_code,omitempty"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
}

func (s Summary) IsEmpty() bool {
	return len(s.Lines) == 0
}
