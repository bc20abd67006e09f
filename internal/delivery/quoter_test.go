package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"merceria/backend/internal/domain"
)

type stubResolver struct {
	km      float64
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *stubResolver) ResolveDistanceKm(ctx context.Context, _ LatLng, _ string) (float64, error) {
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return r.km, r.err
}

func TestQuoterUsesResolvedDistance(t *testing.T) {
	q := NewQuoter(&stubResolver{km: 17.3}, LatLng{Lat: -25.3, Lng: -57.6}, time.Second)

	quote, err := q.Quote(context.Background(), "sess-1", domain.DeliveryQuoteRequest{
		Method:      domain.DeliveryMethodShipping,
		Zone:        domain.ZoneCapital,
		Destination: "Ñemby",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Tier != "15-20km" || quote.FeeCents != 600 {
		t.Fatalf("expected resolved 15-20km tier, got %d (%s)", quote.FeeCents, quote.Tier)
	}
}

func TestQuoterFallsBackToZoneTextOnResolverError(t *testing.T) {
	q := NewQuoter(&stubResolver{err: errors.New("osrm down")}, LatLng{}, time.Second)

	quote, err := q.Quote(context.Background(), "sess-1", domain.DeliveryQuoteRequest{
		Method:      domain.DeliveryMethodShipping,
		Zone:        domain.ZoneCapital,
		Destination: "Luque",
	})
	if err != nil {
		t.Fatalf("resolver failure must not fail the quote: %v", err)
	}
	if quote.Tier != "12-15km" || quote.FeeCents != 500 {
		t.Fatalf("expected zone-text fallback, got %d (%s)", quote.FeeCents, quote.Tier)
	}
	if quote.Note == "" {
		t.Fatal("fallback quote must note the missing distance estimate")
	}
}

func TestQuoterShortCircuitsPickupAndNational(t *testing.T) {
	// No resolver at all: pickup and national never need one.
	q := NewQuoter(nil, LatLng{}, time.Second)

	pickup, err := q.Quote(context.Background(), "sess-1", domain.DeliveryQuoteRequest{Method: domain.DeliveryMethodPickup})
	if err != nil || pickup.FeeCents != 0 {
		t.Fatalf("pickup: err=%v fee=%d", err, pickup.FeeCents)
	}

	national, err := q.Quote(context.Background(), "sess-1", domain.DeliveryQuoteRequest{
		Method: domain.DeliveryMethodShipping,
		Zone:   domain.ZoneNational,
	})
	if err != nil || national.FeeCents != 0 || national.Note == "" {
		t.Fatalf("national: err=%v fee=%d note=%q", err, national.FeeCents, national.Note)
	}
}

func TestQuoterDiscardsSupersededResolution(t *testing.T) {
	resolver := &stubResolver{
		km:      8,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	q := NewQuoter(resolver, LatLng{}, time.Second)

	type outcome struct {
		quote domain.DeliveryQuote
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		quote, err := q.Quote(context.Background(), "sess-1", domain.DeliveryQuoteRequest{
			Method:      domain.DeliveryMethodShipping,
			Zone:        domain.ZoneCapital,
			Destination: "Asunción",
		})
		done <- outcome{quote: quote, err: err}
	}()

	<-resolver.started

	// The same shopper edits the address: a newer request starts before the
	// first resolution finishes.
	km := 22.0
	fresh, err := q.Quote(context.Background(), "sess-1", domain.DeliveryQuoteRequest{
		Method:     domain.DeliveryMethodShipping,
		Zone:       domain.ZoneCapital,
		DistanceKm: &km,
	})
	if err != nil {
		t.Fatalf("fresh quote failed: %v", err)
	}
	if fresh.Tier != "20-30km" {
		t.Fatalf("fresh quote tier = %s", fresh.Tier)
	}

	close(resolver.release)
	first := <-done
	if !errors.Is(first.err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the stale resolution, got quote=%+v err=%v", first.quote, first.err)
	}
}

func TestQuoterOtherSessionsNeverSupersede(t *testing.T) {
	resolver := &stubResolver{
		km:      8,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	q := NewQuoter(resolver, LatLng{}, time.Second)

	type outcome struct {
		quote domain.DeliveryQuote
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		quote, err := q.Quote(context.Background(), "sess-ana", domain.DeliveryQuoteRequest{
			Method:      domain.DeliveryMethodShipping,
			Zone:        domain.ZoneCapital,
			Destination: "Asunción",
		})
		done <- outcome{quote: quote, err: err}
	}()

	<-resolver.started

	// A different shopper quotes mid-flight. Their request must not
	// invalidate the first shopper's resolution.
	km := 22.0
	if _, err := q.Quote(context.Background(), "sess-carlos", domain.DeliveryQuoteRequest{
		Method:     domain.DeliveryMethodShipping,
		Zone:       domain.ZoneCapital,
		DistanceKm: &km,
	}); err != nil {
		t.Fatalf("other session's quote failed: %v", err)
	}

	close(resolver.release)
	first := <-done
	if first.err != nil {
		t.Fatalf("unrelated session must not supersede: %v", first.err)
	}
	if first.quote.Tier != "0-12km" || first.quote.FeeCents != 400 {
		t.Fatalf("expected resolved 0-12km quote, got %d (%s)", first.quote.FeeCents, first.quote.Tier)
	}
}
