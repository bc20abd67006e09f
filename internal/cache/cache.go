package cache

import (
	"context"

	"merceria/backend/internal/domain"
)

// CartSlot is a durable key→JSON slot holding a cart's full line list. Load
// reports found=false for an absent key and an error only for transport or
// decode failures.
type CartSlot interface {
	Load(ctx context.Context, key string) ([]domain.CartItem, bool, error)
	Save(ctx context.Context, key string, items []domain.CartItem) error
}

// NoopCartSlot keeps carts purely in memory (offline fallback mode).
type NoopCartSlot struct{}

func (NoopCartSlot) Load(_ context.Context, _ string) ([]domain.CartItem, bool, error) {
	return nil, false, nil
}

func (NoopCartSlot) Save(_ context.Context, _ string, _ []domain.CartItem) error {
	return nil
}
