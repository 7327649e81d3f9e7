// Package albion talks to the market-data price API and resolves one price
// per item with a city and quality fallback policy.
package albion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Regional servers of the public market-data API.
var serverBaseURLs = map[string]string{
	"west":   "https://west.albion-online-data.com",
	"east":   "https://east.albion-online-data.com",
	"europe": "https://europe.albion-online-data.com",
}

// ServerBaseURL maps a server preset (west, east, europe) to its base URL.
func ServerBaseURL(server string) (string, bool) {
	u, ok := serverBaseURLs[strings.ToLower(strings.TrimSpace(server))]
	return u, ok
}

// Cities is every market the resolver knows about, in query order after the
// preferred city.
var Cities = []string{
	"Bridgewatch",
	"Caerleon",
	"Fort Sterling",
	"Lymhurst",
	"Martlock",
	"Thetford",
	"Brecilien",
	"Black Market",
}

// CanonicalCity returns the Cities spelling of city, matched case
// insensitively. Unknown names come back trimmed but otherwise unchanged.
func CanonicalCity(city string) string {
	city = strings.TrimSpace(city)
	for _, c := range Cities {
		if strings.EqualFold(c, city) {
			return c
		}
	}
	return city
}

var cityLocationIDs = map[string]string{
	"thetford":      "0007",
	"lymhurst":      "1002",
	"bridgewatch":   "2004",
	"black market":  "3003",
	"caerleon":      "3005",
	"martlock":      "3008",
	"fort sterling": "4002",
	"brecilien":     "5003",
}

// LocationID returns the numeric location id the local endpoint expects.
func LocationID(city string) (string, bool) {
	id, ok := cityLocationIDs[strings.ToLower(strings.TrimSpace(city))]
	return id, ok
}

// EndpointKind tells which upstream response flavor an endpoint speaks.
type EndpointKind int

const (
	// KindRemote is the public multi-city stats API.
	KindRemote EndpointKind = iota
	// KindLocal is a single-location mirror answering {item_id, price, cityUsed}.
	KindLocal
)

func (k EndpointKind) String() string {
	if k == KindLocal {
		return "local"
	}
	return "remote"
}

// Endpoint is where prices are read from.
type Endpoint struct {
	Kind    EndpointKind
	BaseURL string
}

// RemoteEndpoint builds a KindRemote endpoint.
func RemoteEndpoint(baseURL string) Endpoint {
	return Endpoint{Kind: KindRemote, BaseURL: strings.TrimRight(baseURL, "/")}
}

// LocalEndpoint builds a KindLocal endpoint.
func LocalEndpoint(baseURL string) Endpoint {
	return Endpoint{Kind: KindLocal, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (e Endpoint) String() string {
	return strings.TrimRight(e.BaseURL, "/")
}

// PriceRow is one market quote normalized from either response flavor.
type PriceRow struct {
	ItemID       string  `json:"item_id"`
	City         string  `json:"city"`
	SellPriceMin float64 `json:"sell_price_min"`
	BuyPriceMax  float64 `json:"buy_price_max"`
	Quality      *int    `json:"quality,omitempty"`
}

// StatusError is a non-2xx answer that was not (or no longer) retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "... (truncated)"
	}
	return fmt.Sprintf("price API returned status %d: %s", e.Code, body)
}

// ErrMalformedResponse wraps bodies that could not be decoded.
var ErrMalformedResponse = errors.New("malformed price response")

type remotePriceRow struct {
	ItemID       string  `json:"item_id"`
	City         string  `json:"city"`
	SellPriceMin float64 `json:"sell_price_min"`
	BuyPriceMax  float64 `json:"buy_price_max"`
	Quality      *int    `json:"quality"`
}

type localPriceRow struct {
	ItemID   string  `json:"item_id"`
	Price    float64 `json:"price"`
	CityUsed *string `json:"cityUsed"`
}

// rawPriceResponse is the decoded body of one chunk request, tagged by the
// endpoint kind that produced it.
type rawPriceResponse struct {
	kind   EndpointKind
	remote []remotePriceRow
	local  []localPriceRow
}

// rows normalizes the response; fallbackCity labels local rows without cityUsed.
func (r rawPriceResponse) rows(fallbackCity string) []PriceRow {
	if r.kind == KindLocal {
		return normalizeLocal(r.local, fallbackCity)
	}
	return normalizeRemote(r.remote)
}

func normalizeRemote(in []remotePriceRow) []PriceRow {
	out := make([]PriceRow, 0, len(in))
	for _, row := range in {
		out = append(out, PriceRow{
			ItemID:       row.ItemID,
			City:         row.City,
			SellPriceMin: row.SellPriceMin,
			BuyPriceMax:  row.BuyPriceMax,
			Quality:      row.Quality,
		})
	}
	return out
}

func normalizeLocal(in []localPriceRow, fallbackCity string) []PriceRow {
	out := make([]PriceRow, 0, len(in))
	for _, row := range in {
		city := fallbackCity
		if row.CityUsed != nil && *row.CityUsed != "" {
			city = *row.CityUsed
		}
		out = append(out, PriceRow{
			ItemID:       row.ItemID,
			City:         city,
			SellPriceMin: row.Price,
		})
	}
	return out
}

// PriceClient issues chunk requests against an Endpoint.
type PriceClient struct {
	http   *resty.Client
	policy RetryPolicy
}

// NewPriceClient creates a client with its own resty instance.
func NewPriceClient(policy RetryPolicy, timeout time.Duration) *PriceClient {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &PriceClient{
		http:   client,
		policy: policy,
	}
}

// fetchChunk asks for ids in every city at once. preferredCity is only used by
// the local endpoint, which answers for a single location.
func (c *PriceClient) fetchChunk(ctx context.Context, endpoint Endpoint, ids, cities []string, preferredCity string, qualities []int) (rawPriceResponse, error) {
	raw := rawPriceResponse{kind: endpoint.Kind}

	var send func(ctx context.Context) (*resty.Response, error)
	switch endpoint.Kind {
	case KindLocal:
		locationID, ok := LocationID(preferredCity)
		if !ok {
			return raw, fmt.Errorf("no location id for city %q", preferredCity)
		}
		url := endpoint.String() + "/api/v2/stats/prices"
		send = func(ctx context.Context) (*resty.Response, error) {
			return c.http.R().
				SetContext(ctx).
				SetQueryParam("items", strings.Join(ids, ",")).
				SetQueryParam("location_id", locationID).
				Get(url)
		}
	default:
		url := fmt.Sprintf("%s/api/v2/stats/prices/%s.json", endpoint.String(), strings.Join(ids, ","))
		send = func(ctx context.Context) (*resty.Response, error) {
			req := c.http.R().
				SetContext(ctx).
				SetQueryParam("locations", strings.Join(cities, ","))
			if len(qualities) > 0 {
				req.SetQueryParam("qualities", joinInts(qualities))
			}
			return req.Get(url)
		}
	}

	resp, err := c.policy.Do(ctx, send)
	if err != nil {
		return raw, err
	}
	if !resp.IsSuccess() {
		return raw, &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
	}

	if endpoint.Kind == KindLocal {
		err = json.Unmarshal(resp.Body(), &raw.local)
	} else {
		err = json.Unmarshal(resp.Body(), &raw.remote)
	}
	if err != nil {
		return raw, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return raw, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
