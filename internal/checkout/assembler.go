package checkout

import (
	"fmt"
	"strings"
	"time"

	"merceria/backend/internal/domain"
	"merceria/backend/internal/xid"
)

// ValidationError aggregates every missing required field; assembly fails
// fast with a single error rather than a partial submission.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Assemble freezes the cart lines, the delivery quote, and the contact form
// into an order snapshot. The returned order owns its own copy of the items:
// later cart mutations or catalog price changes never reach it.
func Assemble(form domain.CheckoutForm, items []domain.CartItem, quote domain.DeliveryQuote) (domain.Order, error) {
	if err := validate(form); err != nil {
		return domain.Order{}, err
	}

	kind := form.Kind
	if kind == "" {
		kind = domain.OrderKindProduct
	}

	order := domain.Order{
		ID:   xid.New("order"),
		Kind: kind,
		Customer: domain.Customer{
			Name:  strings.TrimSpace(form.Name),
			Phone: strings.TrimSpace(form.Phone),
			Email: strings.TrimSpace(form.Email),
		},
		DeliveryMethod: form.DeliveryMethod,
		Attended:       false,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
	}

	switch kind {
	case domain.OrderKindService:
		order.Service = &domain.ServiceDetails{
			Description: strings.TrimSpace(form.ServiceDetail),
			Reference:   strings.TrimSpace(form.Reference),
		}
	default:
		frozen := make([]domain.CartItem, len(items))
		copy(frozen, items)
		order.Items = frozen
		for _, item := range frozen {
			order.SubtotalCents += item.LineTotalCents()
		}
		order.DeliveryFeeCents = quote.FeeCents
		order.DeliveryTier = quote.Tier
		order.TotalCents = order.SubtotalCents + order.DeliveryFeeCents
	}

	if form.DeliveryMethod == domain.DeliveryMethodShipping {
		order.Shipping = &domain.ShippingDetails{
			Address:        strings.TrimSpace(form.Address),
			City:           strings.TrimSpace(form.City),
			Zone:           strings.TrimSpace(form.Zone),
			RecipientName:  strings.TrimSpace(form.RecipientName),
			RecipientID:    strings.TrimSpace(form.RecipientID),
			RecipientPhone: strings.TrimSpace(form.RecipientPhone),
			Reference:      strings.TrimSpace(form.Reference),
		}
	}

	order.Summary = Summary(order)
	return order, nil
}

// validate collects every blank required field. Shipping orders additionally
// require the full recipient block.
func validate(form domain.CheckoutForm) error {
	var missing []string
	require := func(value string, field string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	require(form.Name, "name")
	require(form.Phone, "phone")

	if form.Kind == domain.OrderKindService {
		require(form.ServiceDetail, "service_detail")
	}

	if form.DeliveryMethod == domain.DeliveryMethodShipping {
		require(form.Address, "address")
		require(form.City, "city")
		require(form.RecipientName, "recipient_name")
		require(form.RecipientID, "recipient_id")
		require(form.RecipientPhone, "recipient_phone")
	}

	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Summary renders the human-readable hand-off message for an order. The
// rendering branches on the order kind and both branches are exhaustive.
func Summary(order domain.Order) string {
	lines := []string{
		"*Nuevo pedido*",
		"Cliente: " + order.Customer.Name,
		"Teléfono: " + order.Customer.Phone,
	}

	switch order.Kind {
	case domain.OrderKindService:
		lines = append(lines, "Tipo: presupuesto de servicio")
		if order.Service != nil {
			lines = append(lines, "Detalle: "+order.Service.Description)
		}
	default:
		lines = append(lines, "------------------------")
		for _, item := range order.Items {
			label := item.ProductName
			if item.Variant != nil {
				label += " (" + item.Variant.Name + ")"
			}
			if item.Color != "" {
				label += " - " + item.Color
			}
			lines = append(lines, fmt.Sprintf("%s x%d: %s", label, item.Quantity, formatCents(item.LineTotalCents())))
		}
		lines = append(lines,
			"------------------------",
			"Subtotal: "+formatCents(order.SubtotalCents),
		)
		if order.DeliveryMethod == domain.DeliveryMethodShipping {
			fee := formatCents(order.DeliveryFeeCents)
			if order.DeliveryTier != "" {
				fee += " (" + order.DeliveryTier + ")"
			}
			lines = append(lines, "Envío: "+fee)
		} else {
			lines = append(lines, "Retiro en local")
		}
		lines = append(lines, "Total: "+formatCents(order.TotalCents))
	}

	if order.Shipping != nil {
		lines = append(lines,
			"Dirección: "+order.Shipping.Address+", "+order.Shipping.City,
			"Recibe: "+order.Shipping.RecipientName+" (CI "+order.Shipping.RecipientID+", tel. "+order.Shipping.RecipientPhone+")",
		)
	}

	return strings.Join(lines, "\n")
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
