package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

var (
	ErrNetwork           = errors.New("geocode: failed to connect to geocoding API")
	ErrMalformedResponse = errors.New("geocode: failed to parse geocoding response")
)

// StatusError is a non-OK status reported by the API.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Status
	}
	return "Geocoding failed: " + msg
}

// Result is the first match for an address.
type Result struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
}

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

// Client talks to the Google Geocoding JSON API.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

type Option func(*Client)

func WithEndpoint(u string) Option         { return func(c *Client) { c.endpoint = u } }
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) Geocode(ctx context.Context, address string) (Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Result{}, &StatusError{Status: "INVALID_REQUEST", Message: "address is empty"}
	}
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("%w: http %d", ErrNetwork, resp.StatusCode)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Status != "OK" {
		if out.Status == "" {
			return Result{}, fmt.Errorf("%w: missing status", ErrMalformedResponse)
		}
		return Result{}, &StatusError{Status: out.Status, Message: out.ErrorMessage}
	}
	if len(out.Results) == 0 || out.Results[0].Geometry.Location == nil {
		return Result{}, fmt.Errorf("%w: no location in first result", ErrMalformedResponse)
	}
	first := out.Results[0]
	return Result{
		Lat:              first.Geometry.Location.Lat,
		Lon:              first.Geometry.Location.Lng,
		FormattedAddress: first.FormattedAddress,
	}, nil
}
