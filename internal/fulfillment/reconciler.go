package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"merceria/backend/internal/domain"
	"merceria/backend/internal/store"
)

// LineOutcome reports what happened to one order line's stock adjustment.
type LineOutcome struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	VariantName string `json:"variant_name,omitempty"`
	Applied     bool   `json:"applied"`
	Error       string `json:"error,omitempty"`
}

// Result is the caller-visible outcome of an attendance toggle. The flag
// flips even when some line writes fail; PartialFailure then names the
// lines staff must correct by hand.
type Result struct {
	Changed        bool          `json:"changed"`
	Attended       bool          `json:"attended"`
	Lines          []LineOutcome `json:"lines,omitempty"`
	PartialFailure bool          `json:"partial_failure"`
}

// Reconciler keeps an order's attended flag consistent with inventory,
// bidirectionally: marking fulfilled subtracts the snapshot quantities from
// live stock, reverting adds them back.
type Reconciler struct {
	repo store.Repository
}

func New(repo store.Repository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Toggle moves the order to the requested attended state.
//
// Guarded on the order's current state: requesting the state it is already
// in applies no deltas (idempotent). The flag flip is the claim on the
// transition: it runs first under the order's version check, so a stale
// toggle is rejected before any stock moves. Only after the flip do the
// per-line stock writes run, best-effort: a failed line is recorded and the
// rest continue. Decrements clamp at zero; increments are unbounded.
func (r *Reconciler) Toggle(ctx context.Context, orderID string, attended bool) (Result, error) {
	order, err := r.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return Result{}, err
	}

	if order.Attended == attended {
		return Result{Changed: false, Attended: order.Attended}, nil
	}

	if _, err := r.repo.SetOrderAttended(ctx, order.ID, attended, order.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("update order attendance: %w", err)
	}

	result := Result{Changed: true, Attended: attended}
	for _, item := range order.Items {
		outcome := r.adjustLine(ctx, item, attended)
		if !outcome.Applied {
			result.PartialFailure = true
		}
		result.Lines = append(result.Lines, outcome)
	}

	if result.PartialFailure {
		log.Printf("[fulfillment] order %s flipped to attended=%t with partial stock failures", order.ID, attended)
	}
	return result, nil
}

// adjustLine applies one line's stock delta against a freshly fetched
// product. A line with a selected variant adjusts the variant's own pool;
// product-level stock is written only when no variant is selected, or when
// the selected variant carries no pool of its own (the product field is
// then the only stock that exists; a variant pool is never fabricated).
func (r *Reconciler) adjustLine(ctx context.Context, item domain.CartItem, attended bool) LineOutcome {
	outcome := LineOutcome{
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
	}
	if item.Variant != nil {
		outcome.VariantName = item.Variant.Name
	}

	product, err := r.repo.GetProductByID(ctx, item.ProductID)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	delta := item.Quantity
	if attended {
		delta = -delta
	}

	if item.Variant != nil {
		if variant := findVariant(product, item.Variant.Name); variant != nil && variant.Stock != nil {
			next := clampStock(*variant.Stock + delta)
			if err := r.repo.SetVariantStock(ctx, product.ID, variant.Name, next); err != nil {
				outcome.Error = err.Error()
				return outcome
			}
			outcome.Applied = true
			return outcome
		}
	}

	next := clampStock(product.Stock + delta)
	if err := r.repo.SetProductStock(ctx, product.ID, next); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Applied = true
	return outcome
}

func findVariant(product *domain.Product, name string) *domain.ProductVariant {
	for i := range product.Variants {
		if product.Variants[i].Name == name {
			return &product.Variants[i]
		}
	}
	return nil
}

// clampStock floors at zero: a decrement that would underflow writes zero
// instead of erroring.
func clampStock(stock int) int {
	if stock < 0 {
		return 0
	}
	return stock
}
