package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"court-watcher/internal/config"
	"court-watcher/internal/constants"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// RecClient wraps the Rec availability API.
type RecClient struct {
	baseURL string
	orgSlug string
	client  *fasthttp.Client
	limiter *rate.Limiter
}

func NewRecClient(cfg *config.Config) *RecClient {
	return &RecClient{
		baseURL: strings.TrimRight(cfg.RecBaseURL, "/"),
		orgSlug: cfg.OrganizationSlug,
		client: &fasthttp.Client{
			MaxConnsPerHost:     10,
			ReadTimeout:         cfg.HTTPTimeout,
			WriteTimeout:        cfg.HTTPTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: rate.NewLimiter(rate.Limit(constants.FetchRateLimit), constants.FetchRateBurst),
	}
}

// FetchLocations returns the availability snapshot for the configured
// organization. Any failure means no snapshot this cycle.
func (c *RecClient) FetchLocations(ctx context.Context) ([]LocationAvailability, error) {
	url := fmt.Sprintf("%s/v1/locations/availability?organizationSlug=%s&publishedSites=true", c.baseURL, c.orgSlug)
	return doRequest[[]LocationAvailability](ctx, c, url)
}

func doRequest[T any](ctx context.Context, client *RecClient, url string) (T, error) {
	var zero T

	if err := client.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return zero, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return zero, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return zero, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return zero, err
	}
	return result, nil
}

// LocationAvailability is one entry of the availability response. Entries
// without a location block are skipped by the normalizer.
type LocationAvailability struct {
	Location *LocationPayload `json:"location"`
}

type LocationPayload struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	FormattedAddress   string         `json:"formattedAddress"`
	Timezone           string         `json:"timezone"`
	Images             ImagesPayload  `json:"images"`
	MaxReservationTime DurationValue  `json:"maxReservationTime"`
	Courts             []CourtPayload `json:"courts"`
}

type ImagesPayload struct {
	Thumbnail string `json:"thumbnail"`
}

type CourtPayload struct {
	ID                          string           `json:"id"`
	Name                        string           `json:"name"`
	DisplayName                 string           `json:"displayName"`
	Sports                      []SportPayload   `json:"sports"`
	AllowedReservationDurations AllowedDurations `json:"allowedReservationDurations"`
	MaxReservationTime          DurationValue    `json:"maxReservationTime"`
	AvailableSlots              []string         `json:"availableSlots"`
}

type SportPayload struct {
	SportID string `json:"sportId"`
	ID      string `json:"id"`
}

func (s SportPayload) Identifier() string {
	if s.SportID != "" {
		return s.SportID
	}
	return s.ID
}

type AllowedDurations struct {
	Minutes []int `json:"minutes"`
}

// DurationValue holds a max-reservation-time field that the provider encodes
// either as an "HH:MM:SS" string or as a bare number of minutes.
type DurationValue struct {
	Str string
	Num float64
	Set bool
}

func (d *DurationValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		d.Str = s
		d.Set = s != ""
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	d.Num = n
	d.Set = true
	return nil
}

// ClockMinutes converts an "HH:MM:SS" value to minutes, rounding the seconds
// component up when it is 30 or more. Returns false for any other shape.
func (d DurationValue) ClockMinutes() (int, bool) {
	if !d.Set || !strings.Contains(d.Str, ":") {
		return 0, false
	}
	parts := strings.Split(d.Str, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	minutes := h*60 + m
	if s >= 30 {
		minutes++
	}
	return minutes, true
}

// Minutes resolves the value in either encoding.
func (d DurationValue) Minutes() (int, bool) {
	if minutes, ok := d.ClockMinutes(); ok {
		return minutes, true
	}
	if d.Set && d.Str == "" && d.Num > 0 {
		return int(d.Num), true
	}
	return 0, false
}
