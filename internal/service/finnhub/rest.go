package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"QuoteHub/internal/domain/failure"
	"QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/ratelimit"
	xhttp "QuoteHub/pkg/http"
)

const (
	ProviderID     = "finnhub"
	DefaultBaseURL = "https://finnhub.io/api/v1"
)

// Config holds the REST client settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client is a QuoteProvider backed by the Finnhub REST API.
type Client struct {
	baseURL string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	now     func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: xhttp.NewClient(
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithHeader("X-Finnhub-Token", cfg.APIKey),
		),
		limiter: ratelimit.PerMinute(cfg.RequestsPerMinute, 5),
		now:     time.Now,
	}
}

func (c *Client) ID() string { return ProviderID }

type quoteResponse struct {
	C  float64 `json:"c"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
	T  int64   `json:"t"`
}

// GetQuote calls /quote. Finnhub answers unknown symbols with an all-zero body.
func (c *Client) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	var r quoteResponse
	if err := c.get(ctx, "quote", "/quote", map[string][]string{"symbol": {symbol}}, &r); err != nil {
		return models.Quote{}, err
	}
	if r.C == 0 && r.T == 0 {
		return models.Quote{}, failure.Invalid(ProviderID, "quote", fmt.Errorf("%w: %s", failure.ErrNoData, symbol))
	}
	ts := c.now()
	if r.T > 0 {
		ts = time.Unix(r.T, 0)
	}
	return models.Quote{
		Symbol:     symbol,
		ProviderID: ProviderID,
		Price:      r.C,
		PrevClose:  r.PC,
		DayHigh:    r.H,
		DayLow:     r.L,
		Timestamp:  ts,
	}, nil
}

type profileResponse struct {
	Name                 string  `json:"name"`
	Ticker               string  `json:"ticker"`
	Exchange             string  `json:"exchange"`
	FinnhubIndustry      string  `json:"finnhubIndustry"`
	MarketCapitalization float64 `json:"marketCapitalization"` // millions USD
}

// GetTickerMetadata calls /stock/profile2. The Finnhub industry label is the
// provider's explicit sector classification.
func (c *Client) GetTickerMetadata(ctx context.Context, symbol string) (models.TickerMetadata, error) {
	var r profileResponse
	if err := c.get(ctx, "profile", "/stock/profile2", map[string][]string{"symbol": {symbol}}, &r); err != nil {
		return models.TickerMetadata{}, err
	}
	if r.Name == "" && r.Ticker == "" {
		return models.TickerMetadata{}, failure.Invalid(ProviderID, "profile", fmt.Errorf("%w: %s", failure.ErrNoData, symbol))
	}
	return models.TickerMetadata{
		Symbol:     symbol,
		ProviderID: ProviderID,
		Name:       r.Name,
		Sector:     r.FinnhubIndustry,
		Exchange:   r.Exchange,
		MarketCap:  r.MarketCapitalization * 1e6,
		ObservedAt: c.now(),
	}, nil
}

type marketStatusResponse struct {
	IsOpen  bool   `json:"isOpen"`
	Session string `json:"session"`
	T       int64  `json:"t"`
}

// GetMarketStatusSignal calls /stock/market-status for the US exchange.
func (c *Client) GetMarketStatusSignal(ctx context.Context) (models.MarketStatusSignal, error) {
	var r marketStatusResponse
	if err := c.get(ctx, "market-status", "/stock/market-status", map[string][]string{"exchange": {"US"}}, &r); err != nil {
		return models.MarketStatusSignal{}, err
	}
	at := c.now()
	if r.T > 0 {
		at = time.Unix(r.T, 0)
	}
	return models.MarketStatusSignal{
		ProviderID: ProviderID,
		IsOpen:     r.IsOpen,
		Session:    r.Session,
		ObservedAt: at,
	}, nil
}

func (c *Client) get(ctx context.Context, op, path string, query map[string][]string, dest any) error {
	if err := c.limiter.Wait(ctx, ProviderID); err != nil {
		if ctx.Err() != nil {
			return failure.FromTransport(ProviderID, op, 0, ctx.Err())
		}
		return failure.RateLimited(ProviderID, op, err)
	}
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	}, &body)
	if err != nil {
		return failure.FromTransport(ProviderID, op, xhttp.StatusCode(err), err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return failure.Invalid(ProviderID, op, fmt.Errorf("%w: %v", failure.ErrMalformed, err))
	}
	return nil
}
