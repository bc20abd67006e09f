package fulfillment

import (
	"context"
	"errors"
	"testing"

	"merceria/backend/internal/domain"
	"merceria/backend/internal/store"
	"merceria/backend/internal/store/memory"
)

func intPtr(v int) *int { return &v }

func seedOrder(t *testing.T, repo store.Repository, items []domain.CartItem) *domain.Order {
	t.Helper()
	order, err := repo.CreateOrder(context.Background(), domain.Order{
		Kind:           domain.OrderKindProduct,
		Customer:       domain.Customer{Name: "Ana", Phone: "0981 123456"},
		DeliveryMethod: domain.DeliveryMethodPickup,
		Items:          items,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func newRepoWithProducts(t *testing.T, products ...domain.Product) store.Repository {
	t.Helper()
	repo := memory.NewSeeded()
	for _, p := range products {
		if _, err := repo.CreateProduct(context.Background(), p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}
	return repo
}

func productStock(t *testing.T, repo store.Repository, id string) domain.Product {
	t.Helper()
	p, err := repo.GetProductByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return *p
}

func TestToggleAttendedAppliesDeltasOnceAndIdempotently(t *testing.T) {
	ctx := context.Background()
	repo := newRepoWithProducts(t,
		domain.Product{ID: "prd-a", Name: "Producto A", Category: "telas", PriceCents: 1000, Stock: 10},
		domain.Product{ID: "prd-b", Name: "Producto B", Category: "hilos", PriceCents: 500, Stock: 4},
	)
	order := seedOrder(t, repo, []domain.CartItem{
		{ProductID: "prd-a", ProductName: "Producto A", PriceCents: 1000, Quantity: 3},
		{ProductID: "prd-b", ProductName: "Producto B", PriceCents: 500, Quantity: 2},
	})

	r := New(repo)
	result, err := r.Toggle(ctx, order.ID, true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !result.Changed || result.PartialFailure {
		t.Fatalf("unexpected result %+v", result)
	}

	if got := productStock(t, repo, "prd-a").Stock; got != 7 {
		t.Fatalf("prd-a stock = %d, want 7", got)
	}
	if got := productStock(t, repo, "prd-b").Stock; got != 2 {
		t.Fatalf("prd-b stock = %d, want 2", got)
	}

	// Same state requested again: no deltas.
	again, err := r.Toggle(ctx, order.ID, true)
	if err != nil {
		t.Fatalf("repeat toggle: %v", err)
	}
	if again.Changed {
		t.Fatal("repeated toggle must be a no-op")
	}
	if got := productStock(t, repo, "prd-a").Stock; got != 7 {
		t.Fatalf("prd-a stock after idempotent toggle = %d, want 7", got)
	}
}

func TestToggleRevertRestoresStock(t *testing.T) {
	ctx := context.Background()
	repo := newRepoWithProducts(t,
		domain.Product{ID: "prd-a", Name: "Producto A", Category: "telas", PriceCents: 1000, Stock: 10},
	)
	order := seedOrder(t, repo, []domain.CartItem{
		{ProductID: "prd-a", ProductName: "Producto A", PriceCents: 1000, Quantity: 4},
	})

	r := New(repo)
	if _, err := r.Toggle(ctx, order.ID, true); err != nil {
		t.Fatalf("attend: %v", err)
	}
	if _, err := r.Toggle(ctx, order.ID, false); err != nil {
		t.Fatalf("revert: %v", err)
	}

	if got := productStock(t, repo, "prd-a").Stock; got != 10 {
		t.Fatalf("stock after round trip = %d, want 10", got)
	}
}

func TestToggleDecrementClampsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := newRepoWithProducts(t,
		domain.Product{ID: "prd-a", Name: "Producto A", Category: "telas", PriceCents: 1000, Stock: 2},
	)
	order := seedOrder(t, repo, []domain.CartItem{
		{ProductID: "prd-a", ProductName: "Producto A", PriceCents: 1000, Quantity: 5},
	})

	r := New(repo)
	result, err := r.Toggle(ctx, order.ID, true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if result.PartialFailure {
		t.Fatal("a clamped write is still a successful write")
	}
	if got := productStock(t, repo, "prd-a").Stock; got != 0 {
		t.Fatalf("stock = %d, want clamp at 0", got)
	}

	// The revert adds the full recorded quantity back: the clamp loss is not
	// tracked.
	if _, err := r.Toggle(ctx, order.ID, false); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if got := productStock(t, repo, "prd-a").Stock; got != 5 {
		t.Fatalf("stock after revert = %d, want 5", got)
	}
}

func TestToggleVariantLineWritesVariantPoolOnly(t *testing.T) {
	ctx := context.Background()
	repo := newRepoWithProducts(t, domain.Product{
		ID: "prd-tela", Name: "Tela", Category: "telas", PriceCents: 4500, Stock: 80,
		Variants: []domain.ProductVariant{
			{Name: "1m", PriceCents: 4500, Stock: intPtr(50)},
			{Name: "retazo", PriceCents: 1500},
		},
	})
	order := seedOrder(t, repo, []domain.CartItem{
		{ProductID: "prd-tela", ProductName: "Tela", PriceCents: 4500, Quantity: 3,
			Variant: &domain.SelectedVariant{Name: "1m", PriceCents: 4500}},
	})

	r := New(repo)
	if _, err := r.Toggle(ctx, order.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	product := productStock(t, repo, "prd-tela")
	if product.Stock != 80 {
		t.Fatalf("product stock = %d, variant lines must not touch it", product.Stock)
	}
	if got := *product.Variants[0].Stock; got != 47 {
		t.Fatalf("variant pool = %d, want 47", got)
	}
}

func TestToggleVariantWithoutPoolFallsBackToProductStock(t *testing.T) {
	ctx := context.Background()
	repo := newRepoWithProducts(t, domain.Product{
		ID: "prd-tela", Name: "Tela", Category: "telas", PriceCents: 4500, Stock: 80,
		Variants: []domain.ProductVariant{
			{Name: "retazo", PriceCents: 1500},
		},
	})
	order := seedOrder(t, repo, []domain.CartItem{
		{ProductID: "prd-tela", ProductName: "Tela", PriceCents: 1500, Quantity: 2,
			Variant: &domain.SelectedVariant{Name: "retazo", PriceCents: 1500}},
	})

	r := New(repo)
	if _, err := r.Toggle(ctx, order.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	product := productStock(t, repo, "prd-tela")
	if product.Stock != 78 {
		t.Fatalf("product stock = %d, want 78", product.Stock)
	}
	if product.Variants[0].Stock != nil {
		t.Fatal("reconciliation must never fabricate a variant pool")
	}
}

func TestTogglePartialFailureStillFlipsFlag(t *testing.T) {
	ctx := context.Background()
	repo := newRepoWithProducts(t,
		domain.Product{ID: "prd-a", Name: "Producto A", Category: "telas", PriceCents: 1000, Stock: 10},
	)
	// Second line references a product that no longer exists.
	order := seedOrder(t, repo, []domain.CartItem{
		{ProductID: "prd-a", ProductName: "Producto A", PriceCents: 1000, Quantity: 1},
		{ProductID: "prd-gone", ProductName: "Descatalogado", PriceCents: 700, Quantity: 2},
	})

	r := New(repo)
	result, err := r.Toggle(ctx, order.ID, true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !result.PartialFailure {
		t.Fatal("expected partial failure to be reported")
	}
	if len(result.Lines) != 2 || result.Lines[0].Applied == result.Lines[1].Applied {
		t.Fatalf("expected one applied and one failed line, got %+v", result.Lines)
	}

	updated, err := repo.GetOrderByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !updated.Attended {
		t.Fatal("attended flag must flip even on partial stock failure")
	}
	if got := productStock(t, repo, "prd-a").Stock; got != 9 {
		t.Fatalf("prd-a stock = %d, want 9", got)
	}
}

func TestToggleMissingOrder(t *testing.T) {
	repo := memory.NewSeeded()
	r := New(repo)
	if _, err := r.Toggle(context.Background(), "order-nope", true); err == nil {
		t.Fatal("expected error for missing order")
	}
}

// conflictingRepo simulates a concurrent writer winning the race: every
// attendance write fails with a version conflict. Stock writes are counted
// so the test can assert none happened.
type conflictingRepo struct {
	store.Repository
	stockWrites int
}

func (r *conflictingRepo) SetOrderAttended(ctx context.Context, id string, attended bool, expectedVersion int) (*domain.Order, error) {
	return nil, store.ErrVersionConflict
}

func (r *conflictingRepo) SetProductStock(ctx context.Context, productID string, stock int) error {
	r.stockWrites++
	return r.Repository.SetProductStock(ctx, productID, stock)
}

func (r *conflictingRepo) SetVariantStock(ctx context.Context, productID string, variantName string, stock int) error {
	r.stockWrites++
	return r.Repository.SetVariantStock(ctx, productID, variantName, stock)
}

func TestToggleVersionConflictLeavesStockUntouched(t *testing.T) {
	ctx := context.Background()
	inner := newRepoWithProducts(t,
		domain.Product{ID: "prd-a", Name: "Producto A", Category: "telas", PriceCents: 1000, Stock: 10},
	)
	order := seedOrder(t, inner, []domain.CartItem{
		{ProductID: "prd-a", ProductName: "Producto A", PriceCents: 1000, Quantity: 3},
	})
	repo := &conflictingRepo{Repository: inner}

	r := New(repo)
	_, err := r.Toggle(ctx, order.ID, true)
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if repo.stockWrites != 0 {
		t.Fatalf("a rejected toggle must not move stock, saw %d writes", repo.stockWrites)
	}
	if got := productStock(t, repo, "prd-a").Stock; got != 10 {
		t.Fatalf("stock = %d, want untouched 10", got)
	}
}

func TestToggleVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := newRepoWithProducts(t,
		domain.Product{ID: "prd-a", Name: "Producto A", Category: "telas", PriceCents: 1000, Stock: 10},
	)
	order := seedOrder(t, repo, []domain.CartItem{
		{ProductID: "prd-a", ProductName: "Producto A", PriceCents: 1000, Quantity: 1},
	})

	// A concurrent writer bumps the version before the reconciler commits.
	if _, err := repo.SetOrderAttended(ctx, order.ID, order.Attended, order.Version); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	// Restore attended=false so the toggle is not short-circuited.
	bumped, err := repo.GetOrderByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if bumped.Attended {
		t.Fatal("setup: order should still be unattended")
	}

	// The reconciler re-reads the order, so its version is current here and
	// the toggle succeeds; conflict handling is exercised at the store level.
	r := New(repo)
	if _, err := r.Toggle(ctx, order.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
}
