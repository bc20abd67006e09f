package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"merceria/backend/internal/cart"
	"merceria/backend/internal/checkout"
	"merceria/backend/internal/delivery"
	"merceria/backend/internal/domain"
	"merceria/backend/internal/fulfillment"
	"merceria/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	carts      *cart.Manager
	quoter     *delivery.Quoter
	reconciler *fulfillment.Reconciler
}

func New(repo store.Repository, carts *cart.Manager, quoter *delivery.Quoter) *Service {
	if carts == nil {
		carts = cart.NewManager(nil)
	}
	if quoter == nil {
		quoter = delivery.NewQuoter(nil, delivery.LatLng{}, 0)
	}

	return &Service{
		repo:       repo,
		carts:      carts,
		quoter:     quoter,
		reconciler: fulfillment.New(repo),
	}
}

// ---- Catalog ----

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidOrder
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidOrder
	}
	if req.PriceCents < 1 || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidOrder
	}
	for _, variant := range req.Variants {
		if strings.TrimSpace(variant.Name) == "" || variant.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidOrder
		}
		if variant.Stock != nil && *variant.Stock < 0 {
			return domain.Product{}, store.ErrInvalidOrder
		}
	}

	product := domain.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		Variants:    req.Variants,
		Image:       strings.TrimSpace(req.Image),
		Colors:      req.Colors,
		Active:      true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidOrder
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidOrder
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidOrder
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidOrder
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidOrder
		}
		updated.Stock = *req.Stock
	}
	if req.Variants != nil {
		for _, variant := range *req.Variants {
			if strings.TrimSpace(variant.Name) == "" || variant.PriceCents < 1 {
				return domain.Product{}, store.ErrInvalidOrder
			}
		}
		updated.Variants = *req.Variants
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

// ---- Session carts ----

func (s *Service) GetCart(ctx context.Context, sessionID string) domain.CartResponse {
	return s.carts.For(ctx, sessionID).Snapshot()
}

// AddToCart freezes the product's current name, price and variant choice into
// a cart line. The variant price wins when a variant is selected.
func (s *Service) AddToCart(ctx context.Context, sessionID string, req domain.CartAddRequest) (domain.CartResponse, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.CartResponse{}, store.ErrInvalidOrder
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !product.Active {
		return domain.CartResponse{}, store.ErrNotFound
	}

	item := domain.CartItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         product.SKU,
		Image:       product.Image,
		PriceCents:  product.PriceCents,
		Quantity:    req.Quantity,
		Color:       strings.TrimSpace(req.Color),
	}

	if variantName := strings.TrimSpace(req.Variant); variantName != "" {
		found := false
		for _, variant := range product.Variants {
			if variant.Name == variantName {
				item.Variant = &domain.SelectedVariant{
					Name:       variant.Name,
					SKU:        variant.SKU,
					PriceCents: variant.PriceCents,
				}
				item.PriceCents = variant.PriceCents
				if variant.SKU != "" {
					item.SKU = variant.SKU
				}
				found = true
				break
			}
		}
		if !found {
			return domain.CartResponse{}, store.ErrNotFound
		}
	}

	cartStore := s.carts.For(ctx, sessionID)
	cartStore.Add(ctx, item)
	return cartStore.Snapshot(), nil
}

func (s *Service) RemoveFromCart(ctx context.Context, sessionID string, req domain.CartLineRequest) domain.CartResponse {
	cartStore := s.carts.For(ctx, sessionID)
	cartStore.Remove(ctx, strings.TrimSpace(req.ProductID), strings.TrimSpace(req.Variant), strings.TrimSpace(req.Color))
	return cartStore.Snapshot()
}

func (s *Service) UpdateCartQuantity(ctx context.Context, sessionID string, req domain.CartLineRequest) domain.CartResponse {
	cartStore := s.carts.For(ctx, sessionID)
	cartStore.UpdateQuantity(ctx, strings.TrimSpace(req.ProductID), req.Quantity, strings.TrimSpace(req.Variant), strings.TrimSpace(req.Color))
	return cartStore.Snapshot()
}

func (s *Service) ClearCart(ctx context.Context, sessionID string) domain.CartResponse {
	cartStore := s.carts.For(ctx, sessionID)
	cartStore.Clear(ctx)
	return cartStore.Snapshot()
}

// ---- Delivery ----

// QuoteDelivery quotes a delivery fee for the session. The session id scopes
// the quoter's stale-resolution guard, so one shopper's rapid re-quotes never
// discard another shopper's in-flight resolution.
func (s *Service) QuoteDelivery(ctx context.Context, sessionID string, req domain.DeliveryQuoteRequest) (domain.DeliveryQuote, error) {
	return s.quoter.Quote(ctx, sessionID, req)
}

// ---- Orders ----

// SubmitOrder assembles the session's cart plus the checkout form into a
// persisted order and clears the cart on success. Service orders skip the
// cart entirely.
func (s *Service) SubmitOrder(ctx context.Context, sessionID string, form domain.CheckoutForm) (domain.Order, error) {
	var items []domain.CartItem
	var cartStore *cart.Store

	if form.Kind != domain.OrderKindService {
		cartStore = s.carts.For(ctx, sessionID)
		items = cartStore.Items()
		if len(items) == 0 {
			return domain.Order{}, store.ErrInvalidOrder
		}
		if err := s.checkAvailability(ctx, items); err != nil {
			return domain.Order{}, err
		}
	}

	quote := domain.DeliveryQuote{}
	if form.Kind != domain.OrderKindService && form.DeliveryMethod == domain.DeliveryMethodShipping {
		destination := strings.TrimSpace(form.Address + " " + form.City)
		q, err := s.quoter.Quote(ctx, sessionID, domain.DeliveryQuoteRequest{
			Method:      form.DeliveryMethod,
			Zone:        form.Zone,
			Destination: destination,
		})
		if err != nil && !errors.Is(err, delivery.ErrSuperseded) {
			return domain.Order{}, err
		}
		if err == nil {
			quote = q
		}
	}

	order, err := checkout.Assemble(form, items, quote)
	if err != nil {
		return domain.Order{}, err
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	if form.Kind != domain.OrderKindService {
		cartStore.Clear(ctx)
		s.carts.Drop(sessionID)
	}
	return *created, nil
}

// checkAvailability is a submission-time snapshot check, not a reservation:
// stock only actually moves when the order is attended.
func (s *Service) checkAvailability(ctx context.Context, items []domain.CartItem) error {
	for _, item := range items {
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: product %s no longer available", store.ErrInvalidOrder, item.ProductID)
			}
			return err
		}

		available := product.Stock
		if item.Variant != nil {
			for _, variant := range product.Variants {
				if variant.Name == item.Variant.Name {
					available = variant.EffectiveStock(*product)
					break
				}
			}
		}
		if item.Quantity > available {
			return fmt.Errorf("%w: insufficient stock for %s", store.ErrInvalidOrder, item.ProductName)
		}
	}
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Order{}, fmt.Errorf("authentication required")
	}
	order, err := s.repo.GetOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, attended *bool, limit int) ([]domain.Order, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return nil, fmt.Errorf("authentication required")
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListOrders(ctx, attended, limit)
}

// ToggleOrderAttended flips the order's attended flag and reconciles stock
// with the recorded line quantities. Any authenticated staff member may
// toggle.
func (s *Service) ToggleOrderAttended(ctx context.Context, orderID string, attended bool) (fulfillment.Result, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return fulfillment.Result{}, fmt.Errorf("authentication required")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fulfillment.Result{}, store.ErrInvalidOrder
	}
	return s.reconciler.Toggle(ctx, orderID, attended)
}

// ---- Staff accounts ----

func (s *Service) CreateStaff(ctx context.Context, username string, passwordHash string) (domain.StaffUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.StaffUser{}, fmt.Errorf("admin role required")
	}

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || passwordHash == "" {
		return domain.StaffUser{}, store.ErrInvalidOrder
	}

	account := domain.UserAccount{
		Username:  username,
		Password:  passwordHash,
		Role:      "staff",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.StaffUser{}, err
	}

	return domain.StaffUser{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	staff := make([]domain.StaffUser, 0, len(accounts))
	for _, account := range accounts {
		staff = append(staff, domain.StaffUser{
			Username:  account.Username,
			Role:      account.Role,
			Active:    account.Active,
			CreatedAt: account.CreatedAt,
		})
	}
	return staff, nil
}
