// Package exchange resolves currency codes to BRL quote snapshots by trying
// three upstream sources in strict sequence: a full-featured primary, a
// generic secondary and a Bitcoin-specific tertiary. The first successful
// parse wins; exhausting the chain yields ErrUnavailable, never a hard fault.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/rs/zerolog"
)

// ErrUnavailable indicates every quote source failed. Callers present a
// polite "service temporarily down" message.
var ErrUnavailable = errors.New("quote service unavailable")

const (
	DefaultPrimaryURL   = "https://economia.awesomeapi.com.br"
	DefaultSecondaryURL = "https://open.er-api.com"
	DefaultBitcoinURL   = "https://api.coingecko.com"

	DefaultTimeout = 10 * time.Second
)

// CurrencyNames maps supported codes to display names against the real.
var CurrencyNames = map[string]string{
	"USD": "US Dollar/Brazilian Real",
	"EUR": "Euro/Brazilian Real",
	"GBP": "Pound Sterling/Brazilian Real",
	"ARS": "Argentine Peso/Brazilian Real",
	"CAD": "Canadian Dollar/Brazilian Real",
	"AUD": "Australian Dollar/Brazilian Real",
	"JPY": "Japanese Yen/Brazilian Real",
	"CNY": "Chinese Yuan/Brazilian Real",
	"BTC": "Bitcoin/Brazilian Real",
}

// Quote is a bid/ask snapshot of one currency against BRL.
type Quote struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	ChangePct float64   `json:"dayVariationPct"`
	AsOf      time.Time `json:"asOf"`
}

// Fetcher fetches quotes with a bounded per-attempt timeout.
type Fetcher struct {
	client       *http.Client
	primaryURL   string
	secondaryURL string
	bitcoinURL   string
	timeout      time.Duration
	logger       zerolog.Logger
}

// Config holds fetcher configuration. Zero values fall back to production
// defaults.
type Config struct {
	PrimaryURL   string
	SecondaryURL string
	BitcoinURL   string
	Timeout      time.Duration
	Logger       zerolog.Logger
}

// New creates a quote fetcher.
func New(cfg Config) *Fetcher {
	observability.EnsureRegistered()

	if cfg.PrimaryURL == "" {
		cfg.PrimaryURL = DefaultPrimaryURL
	}
	if cfg.SecondaryURL == "" {
		cfg.SecondaryURL = DefaultSecondaryURL
	}
	if cfg.BitcoinURL == "" {
		cfg.BitcoinURL = DefaultBitcoinURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Fetcher{
		client:       &http.Client{},
		primaryURL:   strings.TrimSuffix(cfg.PrimaryURL, "/"),
		secondaryURL: strings.TrimSuffix(cfg.SecondaryURL, "/"),
		bitcoinURL:   strings.TrimSuffix(cfg.BitcoinURL, "/"),
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
	}
}

// Fetch resolves a currency code to a quote snapshot, falling through the
// source chain on any failure.
func (f *Fetcher) Fetch(ctx context.Context, code string) (*Quote, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("currency code is required")
	}

	if quote, err := f.fetchPrimary(ctx, code); err == nil {
		observability.RecordQuoteFetch("primary", "ok")
		return quote, nil
	} else {
		observability.RecordQuoteFetch("primary", "error")
		f.logger.Warn().Str("code", code).Err(err).Msg("Primary quote source failed, falling back")
	}

	if code == "BTC" {
		quote, err := f.fetchBitcoin(ctx)
		if err != nil {
			observability.RecordQuoteFetch("bitcoin", "error")
			f.logger.Warn().Err(err).Msg("Bitcoin quote source failed")
			return nil, ErrUnavailable
		}
		observability.RecordQuoteFetch("bitcoin", "ok")
		return quote, nil
	}

	quote, err := f.fetchSecondary(ctx, code)
	if err != nil {
		observability.RecordQuoteFetch("secondary", "error")
		f.logger.Warn().Str("code", code).Err(err).Msg("Secondary quote source failed")
		return nil, ErrUnavailable
	}
	observability.RecordQuoteFetch("secondary", "ok")
	return quote, nil
}

func (f *Fetcher) getJSON(ctx context.Context, url string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// primaryQuote is the primary source's wire format; numeric fields arrive as
// strings.
type primaryQuote struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	High      string `json:"high"`
	Low       string `json:"low"`
	PctChange string `json:"pctChange"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Timestamp string `json:"timestamp"`
}

func (f *Fetcher) fetchPrimary(ctx context.Context, code string) (*Quote, error) {
	url := fmt.Sprintf("%s/json/last/%s-BRL", f.primaryURL, code)

	var payload map[string]primaryQuote
	if err := f.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	raw, ok := payload[code+"BRL"]
	if !ok {
		return nil, fmt.Errorf("pair %s-BRL missing from response", code)
	}

	bid, err := strconv.ParseFloat(raw.Bid, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid bid %q", raw.Bid)
	}
	ask, err := strconv.ParseFloat(raw.Ask, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ask %q", raw.Ask)
	}
	high, _ := strconv.ParseFloat(raw.High, 64)
	low, _ := strconv.ParseFloat(raw.Low, 64)
	pct, _ := strconv.ParseFloat(raw.PctChange, 64)

	asOf := time.Now()
	if ts, err := strconv.ParseInt(raw.Timestamp, 10, 64); err == nil {
		asOf = time.Unix(ts, 0)
	}

	name := raw.Name
	if name == "" {
		name = displayName(code)
	}

	return &Quote{
		Code:      code,
		Name:      name,
		Bid:       bid,
		Ask:       ask,
		High:      high,
		Low:       low,
		ChangePct: pct,
		AsOf:      asOf,
	}, nil
}

type secondaryPayload struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// fetchSecondary quotes through a generic rate table: single mid rate, no
// spread or daily range.
func (f *Fetcher) fetchSecondary(ctx context.Context, code string) (*Quote, error) {
	url := fmt.Sprintf("%s/v6/latest/%s", f.secondaryURL, code)

	var payload secondaryPayload
	if err := f.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	if payload.Result != "success" {
		return nil, fmt.Errorf("source reported result %q", payload.Result)
	}

	rate, ok := payload.Rates["BRL"]
	if !ok || rate <= 0 {
		return nil, fmt.Errorf("BRL rate missing from response")
	}

	return &Quote{
		Code: code,
		Name: displayName(code),
		Bid:  rate,
		Ask:  rate,
		High: rate,
		Low:  rate,
		AsOf: time.Now(),
	}, nil
}

type bitcoinPayload struct {
	Bitcoin struct {
		BRL       float64 `json:"brl"`
		Change24h float64 `json:"brl_24h_change"`
	} `json:"bitcoin"`
}

func (f *Fetcher) fetchBitcoin(ctx context.Context) (*Quote, error) {
	url := f.bitcoinURL + "/api/v3/simple/price?ids=bitcoin&vs_currencies=brl&include_24hr_change=true"

	var payload bitcoinPayload
	if err := f.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	if payload.Bitcoin.BRL <= 0 {
		return nil, fmt.Errorf("BTC/BRL rate missing from response")
	}

	rate := payload.Bitcoin.BRL
	return &Quote{
		Code:      "BTC",
		Name:      displayName("BTC"),
		Bid:       rate,
		Ask:       rate,
		High:      rate,
		Low:       rate,
		ChangePct: payload.Bitcoin.Change24h,
		AsOf:      time.Now(),
	}, nil
}

func displayName(code string) string {
	if name, ok := CurrencyNames[code]; ok {
		return name
	}
	return code + "/Brazilian Real"
}
