package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"merceria/backend/internal/domain"
	"merceria/backend/internal/store"
	"merceria/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	ordersByID      map[string]domain.Order
	orderSeq        []string
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// variables fall back to dev defaults with a warning. Production deployments
// run on PostgreSQL (DATABASE_URL set) and never hit these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intPtr(v int) *int { return &v }

func NewSeeded() *Store {
	products := []domain.Product{
		{
			ID: "prd-tela-lino", SKU: "TEL-LINO-01", Name: "Tela Lino Natural", Category: "telas",
			PriceCents: 4500, Stock: 80, HasVariants: true, Active: true,
			Colors: []string{"crudo", "blanco", "celeste"},
			Variants: []domain.ProductVariant{
				{Name: "1m", PriceCents: 4500, Stock: intPtr(50)},
				{Name: "5m", PriceCents: 21000, Stock: intPtr(30)},
			},
		},
		{
			ID: "prd-tela-algodon", SKU: "TEL-ALG-01", Name: "Tela Algodón Estampada", Category: "telas",
			PriceCents: 3800, Stock: 120, HasVariants: true, Active: true,
			Colors: []string{"floral", "rayas", "lunares"},
			Variants: []domain.ProductVariant{
				{Name: "1m", PriceCents: 3800, Stock: intPtr(70)},
				// Sin stock propio: la disponibilidad cae al stock del producto.
				{Name: "retazo", PriceCents: 1500},
			},
		},
		{
			ID: "prd-hilo-poliester", SKU: "HIL-POL-01", Name: "Hilo Poliéster 500m", Category: "hilos",
			PriceCents: 900, Stock: 300, Active: true,
			Colors: []string{"negro", "blanco", "rojo", "azul"},
		},
		{
			ID: "prd-cierre-metal", SKU: "CIE-MET-01", Name: "Cierre Metálico 20cm", Category: "cierres",
			PriceCents: 1200, Stock: 150, Active: true,
			Colors: []string{"dorado", "plateado"},
		},
		{
			ID: "prd-boton-madera", SKU: "BOT-MAD-01", Name: "Botones de Madera x12", Category: "botones",
			PriceCents: 1550, Stock: 90, Active: true,
		},
		{
			ID: "prd-elastico", SKU: "ELA-201", Name: "Elástico 2cm x10m", Category: "mercería",
			PriceCents: 1700, Stock: 60, Active: true,
		},
		{
			ID: "prd-aguja-maquina", SKU: "AGU-MAQ-01", Name: "Agujas Máquina x5", Category: "mercería",
			PriceCents: 2200, Stock: 45, Active: true,
		},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		ordersByID:      make(map[string]domain.Order),
		orderSeq:        make([]string, 0, 64),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneProduct(product)
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidOrder
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidOrder
	}

	product.Active = true
	product.HasVariants = len(product.Variants) > 0
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidOrder
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	product.HasVariants = len(product.Variants) > 0
	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) SetProductStock(_ context.Context, productID string, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stock < 0 {
		return store.ErrInvalidOrder
	}
	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	product.Stock = stock
	s.products[productID] = product
	return nil
}

func (s *Store) SetVariantStock(_ context.Context, productID string, variantName string, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stock < 0 {
		return store.ErrInvalidOrder
	}
	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	for i := range product.Variants {
		if product.Variants[i].Name == variantName {
			value := stock
			product.Variants[i].Stock = &value
			s.products[productID] = product
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.Customer.Name == "" || order.Customer.Phone == "" {
		return nil, store.ErrInvalidOrder
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.Version < 1 {
		order.Version = 1
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrInvalidOrder
	}

	s.ordersByID[order.ID] = cloneOrder(order)
	s.orderSeq = append(s.orderSeq, order.ID)
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneOrder(order)
	return &copied, nil
}

func (s *Store) ListOrders(_ context.Context, attended *bool, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	orders := make([]domain.Order, 0, limit)
	// Newest first.
	for i := len(s.orderSeq) - 1; i >= 0 && len(orders) < limit; i-- {
		order := s.ordersByID[s.orderSeq[i]]
		if attended != nil && order.Attended != *attended {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	return orders, nil
}

func (s *Store) SetOrderAttended(_ context.Context, id string, attended bool, expectedVersion int) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if order.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	order.Attended = attended
	order.Version++
	s.ordersByID[id] = order
	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidOrder
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidOrder
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// cloneProduct copies the variant slice (and its stock pointers) so callers
// never share mutable state with the store.
func cloneProduct(p domain.Product) domain.Product {
	if len(p.Variants) > 0 {
		variants := make([]domain.ProductVariant, len(p.Variants))
		for i, v := range p.Variants {
			if v.Stock != nil {
				value := *v.Stock
				v.Stock = &value
			}
			variants[i] = v
		}
		p.Variants = variants
	}
	if len(p.Colors) > 0 {
		p.Colors = slices.Clone(p.Colors)
	}
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	if len(o.Items) > 0 {
		items := make([]domain.CartItem, len(o.Items))
		for i, item := range o.Items {
			if item.Variant != nil {
				variant := *item.Variant
				item.Variant = &variant
			}
			items[i] = item
		}
		o.Items = items
	}
	if o.Shipping != nil {
		shipping := *o.Shipping
		o.Shipping = &shipping
	}
	if o.Service != nil {
		service := *o.Service
		o.Service = &service
	}
	return o
}
