// Package yahoo is a QuoteProvider for the Yahoo-style consumer finance API.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"QuoteHub/internal/domain/failure"
	"QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/ratelimit"
	xhttp "QuoteHub/pkg/http"
)

const (
	ProviderID      = "yahoo"
	DefaultBaseURL  = "https://query1.finance.yahoo.com"
	DefaultUA       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	referenceSymbol = "SPY"
)

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	UserAgent         string
	// StatusSymbol is quoted to read the exchange marketState.
	StatusSymbol string
}

type Client struct {
	baseURL      string
	statusSymbol string
	http         *xhttp.Client
	limiter      *ratelimit.Limiter
	now          func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 120
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUA
	}
	if cfg.StatusSymbol == "" {
		cfg.StatusSymbol = referenceSymbol
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		statusSymbol: cfg.StatusSymbol,
		http: xhttp.NewClient(
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithHeader("User-Agent", cfg.UserAgent),
			xhttp.WithHeader("Accept", "application/json"),
			xhttp.WithMaxBody(2<<20),
		),
		limiter: ratelimit.PerMinute(cfg.RequestsPerMinute, 10),
		now:     time.Now,
	}
}

func (c *Client) ID() string { return ProviderID }

func (c *Client) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	r, err := c.quote(ctx, "quote", symbol)
	if err != nil {
		return models.Quote{}, err
	}
	price := r.Get("regularMarketPrice").Float()
	if price <= 0 {
		return models.Quote{}, failure.Invalid(ProviderID, "quote", fmt.Errorf("%w: %s has no price", failure.ErrNoData, symbol))
	}
	ts := c.now()
	if sec := r.Get("regularMarketTime").Int(); sec > 0 {
		ts = time.Unix(sec, 0)
	}
	return models.Quote{
		Symbol:           symbol,
		ProviderID:       ProviderID,
		Price:            price,
		PrevClose:        r.Get("regularMarketPreviousClose").Float(),
		Volume:           r.Get("regularMarketVolume").Float(),
		DayHigh:          r.Get("regularMarketDayHigh").Float(),
		DayLow:           r.Get("regularMarketDayLow").Float(),
		FiftyTwoWeekHigh: r.Get("fiftyTwoWeekHigh").Float(),
		FiftyTwoWeekLow:  r.Get("fiftyTwoWeekLow").Float(),
		AvgVolume:        r.Get("averageDailyVolume3Month").Float(),
		PE:               r.Get("trailingPE").Float(),
		EPS:              r.Get("epsTrailingTwelveMonths").Float(),
		Beta:             r.Get("beta").Float(),
		Dividend:         firstFloat(r, "dividendRate", "trailingAnnualDividendRate"),
		DividendYield:    dividendYield(r),
		Timestamp:        ts,
	}, nil
}

func firstFloat(r gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Float() != 0 {
			return v.Float()
		}
	}
	return 0
}

// dividendYield is already a percentage; the trailing variant is a ratio.
func dividendYield(r gjson.Result) float64 {
	if v := r.Get("dividendYield").Float(); v != 0 {
		return v
	}
	return r.Get("trailingAnnualDividendYield").Float() * 100
}

// GetTickerMetadata merges the quote header with the assetProfile module.
// Funds have no asset profile; that is not an error.
func (c *Client) GetTickerMetadata(ctx context.Context, symbol string) (models.TickerMetadata, error) {
	r, err := c.quote(ctx, "metadata", symbol)
	if err != nil {
		return models.TickerMetadata{}, err
	}
	name := r.Get("longName").String()
	if name == "" {
		name = r.Get("shortName").String()
	}
	meta := models.TickerMetadata{
		Symbol:       symbol,
		ProviderID:   ProviderID,
		Name:         name,
		Exchange:     r.Get("fullExchangeName").String(),
		SecurityType: r.Get("quoteType").String(),
		MarketCap:    r.Get("marketCap").Float(),
		ObservedAt:   c.now(),
	}

	profile, err := c.assetProfile(ctx, symbol)
	switch {
	case err == nil:
		meta.Sector = profile.Get("sector").String()
		meta.Industry = profile.Get("industry").String()
	case errors.Is(err, failure.ErrNoData):
	default:
		return models.TickerMetadata{}, err
	}
	return meta, nil
}

// GetMarketStatusSignal reads marketState from a reference quote.
func (c *Client) GetMarketStatusSignal(ctx context.Context) (models.MarketStatusSignal, error) {
	r, err := c.quote(ctx, "market-status", c.statusSymbol)
	if err != nil {
		return models.MarketStatusSignal{}, err
	}
	state := r.Get("marketState").String()
	if state == "" {
		return models.MarketStatusSignal{}, failure.Invalid(ProviderID, "market-status", errors.New("missing marketState"))
	}
	return models.MarketStatusSignal{
		ProviderID: ProviderID,
		IsOpen:     state == "REGULAR",
		Session:    strings.ToLower(state),
		ObservedAt: c.now(),
	}, nil
}

func (c *Client) quote(ctx context.Context, op, symbol string) (gjson.Result, error) {
	body, err := c.get(ctx, op, "/v7/finance/quote", map[string][]string{"symbols": {symbol}})
	if err != nil {
		return gjson.Result{}, err
	}
	if msg := gjson.GetBytes(body, "quoteResponse.error.description"); msg.Exists() {
		return gjson.Result{}, failure.Invalid(ProviderID, op, errors.New(msg.String()))
	}
	r := gjson.GetBytes(body, "quoteResponse.result.0")
	if !r.Exists() {
		return gjson.Result{}, failure.Invalid(ProviderID, op, fmt.Errorf("%w: %s", failure.ErrNoData, symbol))
	}
	return r, nil
}

func (c *Client) assetProfile(ctx context.Context, symbol string) (gjson.Result, error) {
	path := "/v10/finance/quoteSummary/" + url.PathEscape(symbol)
	body, err := c.get(ctx, "profile", path, map[string][]string{"modules": {"assetProfile"}})
	if err != nil {
		return gjson.Result{}, err
	}
	r := gjson.GetBytes(body, "quoteSummary.result.0.assetProfile")
	if !r.Exists() {
		return gjson.Result{}, failure.Invalid(ProviderID, "profile", fmt.Errorf("%w: %s", failure.ErrNoData, symbol))
	}
	return r, nil
}

func (c *Client) get(ctx context.Context, op, path string, query map[string][]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, ProviderID); err != nil {
		if ctx.Err() != nil {
			return nil, failure.FromTransport(ProviderID, op, 0, ctx.Err())
		}
		return nil, failure.RateLimited(ProviderID, op, err)
	}
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	}, &body)
	if err != nil {
		return nil, failure.FromTransport(ProviderID, op, xhttp.StatusCode(err), err)
	}
	if !gjson.ValidBytes(body) {
		return nil, failure.Invalid(ProviderID, op, failure.ErrMalformed)
	}
	return body, nil
}
