// Package provider defines the contract every reservation-availability
// source implements, and a registry that maps provider_id to an adapter
// instance. provider_id is stamped into every slot fingerprint and event so
// cross-provider data never collides.
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Query describes one bucket's fetch request: a time anchor expanded to a
// search window, and the party sizes to check availability for.
type Query struct {
	ProviderID string
	DateStr    string // YYYY-MM-DD
	TimeAnchor string // HH:MM, the bucket's nominal time slot
	PartySizes []int
	PerPage    int
	MaxPages   int
}

// Window expands TimeAnchor into the +/-2h search window
// the adapter actually queries, per spec.md §4.1.
func (q Query) Window() (start, end time.Time, err error) {
	anchor, err := time.Parse("2006-01-02 15:04", q.DateStr+" "+q.TimeAnchor)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return anchor.Add(-2 * time.Hour), anchor.Add(2 * time.Hour), nil
}

// NormalizedSlot is one fetched availability row, already shaped into the
// pipeline's canonical representation. SlotID is NOT set here — the Poll
// Worker computes it via pkg/fingerprint so the adapter cannot accidentally
// diverge from the rest of the pipeline's identity rule.
type NormalizedSlot struct {
	VenueID            int64
	VenueName          string
	ActualTime         time.Time
	AvailabilityTimes  []string
	BookingURL         string
	Neighborhood       string
	ImageURL           string
	PriceBand          string
	Rating             float64
	HasRating          bool
}

// Payload marshals the slot's optional attributes into the opaque JSON blob
// persisted on drop events.
func (s NormalizedSlot) Payload() json.RawMessage {
	p := struct {
		AvailabilityTimes []string `json:"availability_times"`
		BookingURL        string   `json:"booking_url"`
		Neighborhood      string   `json:"neighborhood,omitempty"`
		ImageURL          string   `json:"image_url,omitempty"`
		PriceBand         string   `json:"price_band,omitempty"`
		Rating            *float64 `json:"rating,omitempty"`
	}{
		AvailabilityTimes: s.AvailabilityTimes,
		BookingURL:        s.BookingURL,
		Neighborhood:      s.Neighborhood,
		ImageURL:          s.ImageURL,
		PriceBand:         s.PriceBand,
	}
	if s.HasRating {
		p.Rating = &s.Rating
	}
	raw, _ := json.Marshal(p)
	return raw
}

// Adapter normalizes one external provider's availability search into the
// canonical slot list. Implementations MUST NOT be called inside a write
// transaction and MUST honor ctx's deadline.
type Adapter interface {
	// ProviderID identifies this adapter for fingerprinting and event stamping.
	ProviderID() string
	// Fetch returns normalized slots for q, merging pages up to q.MaxPages.
	Fetch(ctx context.Context, q Query) ([]NormalizedSlot, error)
}

// Registry maps provider_id to a concrete Adapter, mirroring the teacher's
// notification-provider registry pattern adapted to reservation providers.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own ProviderID.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ProviderID()] = a
}

// Resolve looks up the adapter for providerID.
func (r *Registry) Resolve(providerID string) (Adapter, bool) {
	a, ok := r.adapters[providerID]
	return a, ok
}
