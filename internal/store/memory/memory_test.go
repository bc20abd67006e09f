package memory

import (
	"context"
	"errors"
	"testing"

	"merceria/backend/internal/domain"
	"merceria/backend/internal/store"
)

func TestGetProductReturnsIsolatedCopy(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, err := s.GetProductByID(ctx, "prd-tela-lino")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Name = "mutated"
	*first.Variants[0].Stock = 999

	second, err := s.GetProductByID(ctx, "prd-tela-lino")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Name == "mutated" || *second.Variants[0].Stock == 999 {
		t.Fatal("store state must not be reachable through returned copies")
	}
}

func TestSetVariantStockUnknownVariant(t *testing.T) {
	s := NewSeeded()
	err := s.SetVariantStock(context.Background(), "prd-tela-lino", "10m", 5)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetOrderAttendedVersionConflict(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, domain.Order{
		Customer: domain.Customer{Name: "Ana", Phone: "0981 123456"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.SetOrderAttended(ctx, order.ID, true, order.Version)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if updated.Version != order.Version+1 || !updated.Attended {
		t.Fatalf("unexpected order %+v", updated)
	}

	// Replay with the stale version.
	if _, err := s.SetOrderAttended(ctx, order.ID, false, order.Version); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestListOrdersNewestFirstWithFilter(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		order, err := s.CreateOrder(ctx, domain.Order{
			Customer: domain.Customer{Name: "Ana", Phone: "0981 123456"},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, order.ID)
	}
	if _, err := s.SetOrderAttended(ctx, ids[1], true, 1); err != nil {
		t.Fatalf("attend: %v", err)
	}

	all, err := s.ListOrders(ctx, nil, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %+v", all)
	}

	attended := true
	pending, err := s.ListOrders(ctx, &attended, 10)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != ids[1] {
		t.Fatalf("expected only the attended order, got %+v", pending)
	}
}

func TestCreateOrderRequiresContact(t *testing.T) {
	s := NewSeeded()
	if _, err := s.CreateOrder(context.Background(), domain.Order{}); !errors.Is(err, store.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}
