package store

import (
	"context"
	"errors"

	"merceria/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrVersionConflict = errors.New("order version conflict")
	ErrUnavailable     = errors.New("store unavailable")
)

// Repository is the backing catalog/order store. Stock reads must return
// live values, not cached copies: the reconciler re-fetches before every
// adjustment.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductStock(ctx context.Context, productID string, stock int) error
	SetVariantStock(ctx context.Context, productID string, variantName string, stock int) error

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, attended *bool, limit int) ([]domain.Order, error)
	// SetOrderAttended flips the attendance flag iff the stored version still
	// equals expectedVersion, bumping the version on success.
	SetOrderAttended(ctx context.Context, id string, attended bool, expectedVersion int) (*domain.Order, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
