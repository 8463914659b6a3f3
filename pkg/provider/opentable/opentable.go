// Package opentable is a concrete provider.Adapter for a generic "find a
// table" search endpoint shape — the stand-in third-party reservation
// provider this pipeline discovers availability against.
package opentable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wisbric/slotwatch/pkg/provider"
)

// Adapter calls the provider's search API over HTTP.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates an Adapter. timeout bounds each HTTP request (one per page per
// party size); the Fetch call as a whole is bounded only by the caller's
// context deadline.
func New(baseURL, apiKey string, timeout time.Duration) *Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// ProviderID implements provider.Adapter.
func (a *Adapter) ProviderID() string { return "opentable" }

type searchResponse struct {
	Results []searchResult `json:"results"`
	Cursor  string         `json:"next_cursor"`
}

type searchResult struct {
	VenueID      int64   `json:"venue_id"`
	VenueName    string  `json:"venue_name"`
	Time         string  `json:"time"` // RFC3339
	BookingURL   string  `json:"booking_url"`
	Neighborhood string  `json:"neighborhood"`
	ImageURL     string  `json:"image_url"`
	PriceBand    string  `json:"price_band"`
	Rating       float64 `json:"rating"`
	HasRating    bool    `json:"has_rating"`
}

// Fetch calls the search endpoint once per party size, merging pages up to
// q.MaxPages per party size, and classifies failures per provider.errors.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]provider.NormalizedSlot, error) {
	start, end, err := q.Window()
	if err != nil {
		return nil, fmt.Errorf("%w: expanding time window: %v", provider.ErrFatal, err)
	}

	byVenueTime := map[string]provider.NormalizedSlot{}

	for _, partySize := range q.PartySizes {
		cursor := ""
		for page := 0; page < q.MaxPages; page++ {
			results, next, err := a.fetchPage(ctx, start, end, partySize, q.PerPage, cursor)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				slot, err := toNormalizedSlot(r)
				if err != nil {
					continue // transient parse issue on one row; skip, don't fail the page
				}
				key := fmt.Sprintf("%d|%s", slot.VenueID, slot.ActualTime.Format(time.RFC3339))
				byVenueTime[key] = mergeSlot(byVenueTime[key], slot)
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}

	slots := make([]provider.NormalizedSlot, 0, len(byVenueTime))
	for _, s := range byVenueTime {
		slots = append(slots, s)
	}
	return slots, nil
}

func (a *Adapter) fetchPage(ctx context.Context, start, end time.Time, partySize, perPage int, cursor string) ([]searchResult, string, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("party_size", strconv.Itoa(partySize))
	q.Set("per_page", strconv.Itoa(perPage))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	reqURL := a.baseURL + "/v2/search?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: building request: %v", provider.ErrFatal, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, "", fmt.Errorf("%w: %v", provider.ErrTimeout, err)
		}
		return nil, "", fmt.Errorf("%w: calling provider: %v", provider.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", fmt.Errorf("%w: provider returned HTTP %d", provider.ErrFatal, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, "", fmt.Errorf("%w: provider returned HTTP %d", provider.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, "", fmt.Errorf("%w: provider returned HTTP %d", provider.ErrFatal, resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("%w: decoding response: %v", provider.ErrTransient, err)
	}
	return parsed.Results, parsed.Cursor, nil
}

func toNormalizedSlot(r searchResult) (provider.NormalizedSlot, error) {
	ts, err := time.Parse(time.RFC3339, r.Time)
	if err != nil {
		return provider.NormalizedSlot{}, fmt.Errorf("parsing slot time %q: %w", r.Time, err)
	}
	return provider.NormalizedSlot{
		VenueID:           r.VenueID,
		VenueName:         r.VenueName,
		ActualTime:        ts,
		AvailabilityTimes: []string{r.Time},
		BookingURL:        r.BookingURL,
		Neighborhood:      r.Neighborhood,
		ImageURL:          r.ImageURL,
		PriceBand:         r.PriceBand,
		Rating:            r.Rating,
		HasRating:         r.HasRating,
	}, nil
}

// mergeSlot combines two observations of the same (venue, time) — e.g. from
// different party-size queries — into one slot with the union of
// availability times.
func mergeSlot(existing, next provider.NormalizedSlot) provider.NormalizedSlot {
	if existing.VenueID == 0 {
		return next
	}
	existing.AvailabilityTimes = append(existing.AvailabilityTimes, next.AvailabilityTimes...)
	return existing
}
