package domain

import "time"

// Product is the catalog read/write model. Stock lives at the product level;
// when HasVariants is set, each variant may additionally carry its own pool.
type Product struct {
	ID          string           `json:"id"`
	SKU         string           `json:"sku,omitempty"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Description string           `json:"description,omitempty"`
	PriceCents  int64            `json:"price_cents"`
	Stock       int              `json:"stock"`
	HasVariants bool             `json:"has_variants"`
	Variants    []ProductVariant `json:"variants,omitempty"`
	Image       string           `json:"image,omitempty"`
	Colors      []string         `json:"colors,omitempty"`
	Active      bool             `json:"active"`
}

// ProductVariant is one purchasable variation of a product. Stock is nil when
// the variant has no pool of its own; availability then falls back to the
// parent's stock, but reconciliation never writes a pool that does not exist.
type ProductVariant struct {
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	PriceCents int64  `json:"price_cents"`
	Stock      *int   `json:"stock,omitempty"`
}

// EffectiveStock is the availability view of a variant: its own pool when it
// has one, the parent's otherwise.
func (v ProductVariant) EffectiveStock(parent Product) int {
	if v.Stock != nil {
		return *v.Stock
	}
	return parent.Stock
}

// SelectedVariant is the variant choice frozen into a cart line.
type SelectedVariant struct {
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	PriceCents int64  `json:"price_cents"`
}

// CartItem is one cart line. PriceCents is the effective unit price at the
// time the line was created (variant price when a variant is selected).
type CartItem struct {
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	SKU         string           `json:"sku,omitempty"`
	Image       string           `json:"image,omitempty"`
	PriceCents  int64            `json:"price_cents"`
	Quantity    int              `json:"quantity"`
	Variant     *SelectedVariant `json:"variant,omitempty"`
	Color       string           `json:"color,omitempty"`
}

// LineTotalCents is PriceCents * Quantity.
func (i CartItem) LineTotalCents() int64 {
	return i.PriceCents * int64(i.Quantity)
}

type CartResponse struct {
	Items      []CartItem `json:"items"`
	Count      int        `json:"count"`
	TotalCents int64      `json:"total_cents"`
}

// CartAddRequest references catalog state; the service freezes name, price and
// variant into the line at add time.
type CartAddRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
	Color     string `json:"color,omitempty"`
}

// CartLineRequest addresses an existing line by its identity triple.
type CartLineRequest struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"quantity"`
}

type ProductCreateRequest struct {
	SKU         string           `json:"sku"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	PriceCents  int64            `json:"price_cents"`
	Stock       int              `json:"stock"`
	Variants    []ProductVariant `json:"variants"`
	Image       string           `json:"image"`
	Colors      []string         `json:"colors"`
}

type ProductUpdateRequest struct {
	Name       *string           `json:"name,omitempty"`
	Category   *string           `json:"category,omitempty"`
	PriceCents *int64            `json:"price_cents,omitempty"`
	Stock      *int              `json:"stock,omitempty"`
	Variants   *[]ProductVariant `json:"variants,omitempty"`
	Active     *bool             `json:"active,omitempty"`
}

// Delivery methods and zones.
const (
	DeliveryMethodPickup   = "pickup"
	DeliveryMethodShipping = "shipping"

	ZoneCapital  = "capital"
	ZoneNational = "national"
)

// DeliveryQuote is derived on every zone/address change and never stored on
// its own; the chosen fee is frozen into the order at submission.
type DeliveryQuote struct {
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Tier       string   `json:"tier"`
	FeeCents   int64    `json:"fee_cents"`
	Note       string   `json:"note,omitempty"`
}

type DeliveryQuoteRequest struct {
	Method      string   `json:"method"`
	Zone        string   `json:"zone"`
	Destination string   `json:"destination"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

// Order kinds. A product order carries cart lines; a service order carries a
// free-form service request instead.
const (
	OrderKindProduct = "product"
	OrderKindService = "service"
)

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type ShippingDetails struct {
	Address        string `json:"address"`
	City           string `json:"city"`
	Zone           string `json:"zone"`
	RecipientName  string `json:"recipient_name"`
	RecipientID    string `json:"recipient_id"`
	RecipientPhone string `json:"recipient_phone"`
	Reference      string `json:"reference,omitempty"`
}

type ServiceDetails struct {
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
}

// Order is the snapshot taken at submission time. Items are frozen; later
// catalog changes never alter a historical order. Only Attended (and Version,
// its concurrency stamp) mutate afterwards.
type Order struct {
	ID               string           `json:"id"`
	Kind             string           `json:"kind"`
	Customer         Customer         `json:"customer"`
	DeliveryMethod   string           `json:"delivery_method"`
	Shipping         *ShippingDetails `json:"shipping,omitempty"`
	Service          *ServiceDetails  `json:"service,omitempty"`
	Items            []CartItem       `json:"items,omitempty"`
	SubtotalCents    int64            `json:"subtotal_cents"`
	DeliveryFeeCents int64            `json:"delivery_fee_cents"`
	TotalCents       int64            `json:"total_cents"`
	DeliveryTier     string           `json:"delivery_tier,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	Attended         bool             `json:"attended"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CheckoutForm is the raw contact/shipping form submitted at checkout.
type CheckoutForm struct {
	Kind           string `json:"kind"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	DeliveryMethod string `json:"delivery_method"`
	Zone           string `json:"zone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	RecipientName  string `json:"recipient_name"`
	RecipientID    string `json:"recipient_id"`
	RecipientPhone string `json:"recipient_phone"`
	Reference      string `json:"reference"`
	ServiceDetail  string `json:"service_detail"`
}

type OrderSubmitResponse struct {
	Order Order `json:"order"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
