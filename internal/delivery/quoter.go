package delivery

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"merceria/backend/internal/domain"
)

var (
	// ErrResolutionUnavailable means the distance lookup failed or timed
	// out; callers fall back to the zone-text fee, never hard-fail.
	ErrResolutionUnavailable = errors.New("distance resolution unavailable")
	// ErrSuperseded means the same caller started a newer quote request
	// while this one was resolving; the result must be discarded, not
	// applied.
	ErrSuperseded = errors.New("quote superseded by a newer request")
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// Resolver turns an origin/destination pair into a driving distance. It is
// the only network collaborator of the delivery core.
type Resolver interface {
	ResolveDistanceKm(ctx context.Context, origin LatLng, destination string) (float64, error)
}

// Quoter wraps the pure calculator with distance resolution: a bounded
// timeout per lookup, zone-text fallback on failure, and a per-caller
// sequence guard so a resolution that finishes after the same caller has
// moved on is dropped. Callers never supersede each other.
type Quoter struct {
	resolver Resolver
	origin   LatLng
	timeout  time.Duration

	mu   sync.Mutex
	seqs map[string]*callerSeq
}

type callerSeq struct {
	n    uint64
	seen time.Time
}

// callerIdleTTL bounds the seqs map: entries idle this long are pruned on
// the next request, since a stale resolution cannot outlive it.
const callerIdleTTL = 15 * time.Minute

func NewQuoter(resolver Resolver, origin LatLng, timeout time.Duration) *Quoter {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Quoter{
		resolver: resolver,
		origin:   origin,
		timeout:  timeout,
		seqs:     make(map[string]*callerSeq),
	}
}

// Quote computes the delivery quote for req on behalf of caller (the cart
// session id). Resolution failures degrade to the zone-text method with a
// note; only a superseded in-flight resolution returns an error. An empty
// caller carries no identity to supersede, so its resolutions always land.
func (q *Quoter) Quote(ctx context.Context, caller string, req domain.DeliveryQuoteRequest) (domain.DeliveryQuote, error) {
	mine := q.begin(caller)

	if req.Method == domain.DeliveryMethodPickup || isNational(req.Zone) || req.DistanceKm != nil {
		return Quote(req.Method, req.Zone, req.Destination, req.DistanceKm), nil
	}

	if q.resolver == nil || req.Destination == "" {
		return QuoteForZoneText(req.Destination), nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	distanceKm, err := q.resolver.ResolveDistanceKm(resolveCtx, q.origin, req.Destination)

	if caller != "" && q.current(caller) != mine {
		return domain.DeliveryQuote{}, ErrSuperseded
	}

	if err != nil {
		log.Printf("[delivery] distance resolution failed, using zone fallback: %v", err)
		quote := QuoteForZoneText(req.Destination)
		quote.Note = "distance estimate unavailable"
		return quote, nil
	}

	return QuoteForDistance(distanceKm), nil
}

func (q *Quoter) begin(caller string) uint64 {
	if caller == "" {
		return 0
	}
	now := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	for key, seq := range q.seqs {
		if now.Sub(seq.seen) > callerIdleTTL {
			delete(q.seqs, key)
		}
	}

	seq := q.seqs[caller]
	if seq == nil {
		seq = &callerSeq{}
		q.seqs[caller] = seq
	}
	seq.n++
	seq.seen = now
	return seq.n
}

func (q *Quoter) current(caller string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq := q.seqs[caller]; seq != nil {
		return seq.n
	}
	return 0
}

func isNational(zone string) bool {
	return strings.EqualFold(strings.TrimSpace(zone), domain.ZoneNational)
}
