package cart

import (
	"context"
	"log"
	"sync"

	"merceria/backend/internal/cache"
	"merceria/backend/internal/domain"
)

// noneSentinel stands in for an absent variant or color in the line key, so
// "no variant" and an empty-string variant name collapse to the same line.
const noneSentinel = "-"

// lineKey is the cart's primary key: (product, variant name, color).
type lineKey struct {
	productID string
	variant   string
	color     string
}

func keyFor(productID string, variantName string, color string) lineKey {
	if variantName == "" {
		variantName = noneSentinel
	}
	if color == "" {
		color = noneSentinel
	}
	return lineKey{productID: productID, variant: variantName, color: color}
}

func keyOf(item domain.CartItem) lineKey {
	variantName := ""
	if item.Variant != nil {
		variantName = item.Variant.Name
	}
	return keyFor(item.ProductID, variantName, item.Color)
}

// Store owns one session's ordered cart lines. Every mutation rewrites the
// durable slot; a corrupt persisted payload loads as an empty cart rather
// than failing startup.
type Store struct {
	mu    sync.Mutex
	slot  cache.CartSlot
	key   string
	lines []domain.CartItem
}

func NewStore(slot cache.CartSlot, key string) *Store {
	if slot == nil {
		slot = cache.NoopCartSlot{}
	}
	return &Store{slot: slot, key: key, lines: []domain.CartItem{}}
}

// Load pulls the persisted line list into memory. Fail open: corrupt or
// unavailable persisted state logs and leaves the cart empty.
func (s *Store) Load(ctx context.Context) {
	items, found, err := s.slot.Load(ctx, s.key)
	if err != nil {
		log.Printf("[cart] discarding persisted cart %s: %v", s.key, err)
		return
	}
	if !found {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = sanitize(items)
}

// sanitize drops persisted lines that could never have been produced by Add.
func sanitize(items []domain.CartItem) []domain.CartItem {
	clean := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 || item.PriceCents < 0 {
			continue
		}
		clean = append(clean, item)
	}
	return clean
}

// Add merges item into the line with the same identity triple, incrementing
// its quantity, or appends a new line. Lines are replaced, not mutated in
// place.
func (s *Store) Add(ctx context.Context, item domain.CartItem) {
	s.mu.Lock()
	key := keyOf(item)
	next := make([]domain.CartItem, 0, len(s.lines)+1)
	merged := false
	for _, line := range s.lines {
		if keyOf(line) == key {
			line.Quantity += item.Quantity
			merged = true
		}
		next = append(next, line)
	}
	if !merged {
		next = append(next, item)
	}
	s.lines = next
	s.mu.Unlock()

	s.persist(ctx)
}

// Remove deletes the matching line; absent lines are a no-op.
func (s *Store) Remove(ctx context.Context, productID string, variantName string, color string) {
	s.mu.Lock()
	key := keyFor(productID, variantName, color)
	next := make([]domain.CartItem, 0, len(s.lines))
	for _, line := range s.lines {
		if keyOf(line) == key {
			continue
		}
		next = append(next, line)
	}
	s.lines = next
	s.mu.Unlock()

	s.persist(ctx)
}

// UpdateQuantity replaces the matching line's quantity; quantity <= 0
// removes the line. The store enforces no upper bound; availability limits
// belong to the caller consuming product stock.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int, variantName string, color string) {
	if quantity <= 0 {
		s.Remove(ctx, productID, variantName, color)
		return
	}

	s.mu.Lock()
	key := keyFor(productID, variantName, color)
	next := make([]domain.CartItem, 0, len(s.lines))
	for _, line := range s.lines {
		if keyOf(line) == key {
			line.Quantity = quantity
		}
		next = append(next, line)
	}
	s.lines = next
	s.mu.Unlock()

	s.persist(ctx)
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.lines = []domain.CartItem{}
	s.mu.Unlock()

	s.persist(ctx)
}

// Items returns a copy of the current lines in insertion order.
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.CartItem, len(s.lines))
	copy(items, s.lines)
	return items
}

// Count is the sum of line quantities, recomputed on every call.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

// TotalCents is the sum of price*quantity over current lines, recomputed on
// every call.
func (s *Store) TotalCents() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := int64(0)
	for _, line := range s.lines {
		total += line.LineTotalCents()
	}
	return total
}

func (s *Store) Snapshot() domain.CartResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.CartItem, len(s.lines))
	copy(items, s.lines)
	count := 0
	total := int64(0)
	for _, line := range s.lines {
		count += line.Quantity
		total += line.LineTotalCents()
	}
	return domain.CartResponse{Items: items, Count: count, TotalCents: total}
}

// persist rewrites the durable slot. Persistence failures are logged and do
// not fail the mutation: the in-memory cart stays authoritative.
func (s *Store) persist(ctx context.Context) {
	s.mu.Lock()
	items := make([]domain.CartItem, len(s.lines))
	copy(items, s.lines)
	s.mu.Unlock()

	if err := s.slot.Save(ctx, s.key, items); err != nil {
		log.Printf("[cart] persist %s failed: %v", s.key, err)
	}
}
