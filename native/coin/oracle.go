package coin

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PriceQuote captures a reference price for one deposit value unit, expressed
// in fixed point with the declared number of decimals, along with the
// timestamp reported by the upstream oracle and the oracle identifier.
type PriceQuote struct {
	Price     *big.Int
	Decimals  uint8
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Decimals: q.Decimals, Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// PriceOracle resolves the current deposit reward price.
type PriceOracle interface {
	LatestPrice() (PriceQuote, error)
}

// ManualOracle provides an in-memory oracle implementation used for tests and
// manual overrides during incident response.
type ManualOracle struct {
	mu    sync.RWMutex
	quote PriceQuote
	set   bool
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{}
}

// Set stores the provided fixed-point price.
func (m *ManualOracle) Set(price *big.Int, decimals uint8, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	m.mu.Lock()
	m.quote = PriceQuote{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		Timestamp: ts,
		Source:    "manual",
	}
	m.set = true
	m.mu.Unlock()
}

// SetDecimal records the supplied decimal price string scaled to the given
// number of fixed-point decimals.
func (m *ManualOracle) SetDecimal(price string, decimals uint8, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	scaled, err := scaleDecimalPrice(price, decimals)
	if err != nil {
		return fmt.Errorf("manual oracle: %w", err)
	}
	m.Set(scaled, decimals, ts)
	return nil
}

// LatestPrice retrieves the stored quote.
func (m *ManualOracle) LatestPrice() (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("manual oracle not configured")
	}
	m.mu.RLock()
	stored, ok := m.quote, m.set
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("manual oracle: no quote recorded")
	}
	return stored.Clone(), nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoOracle adapts the public CoinGecko simple price API to the
// fixed-point quotes the deposit path consumes.
type CoinGeckoOracle struct {
	client   HTTPDoer
	endpoint string
	assetID  string
	currency string
	decimals uint8
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// NewCoinGeckoOracle constructs a new adapter. When the client is nil
// http.DefaultClient is used. assetID is the CoinGecko asset identifier and
// currency the quote currency; decimals fixes the scale of returned prices.
func NewCoinGeckoOracle(client HTTPDoer, endpoint, assetID, currency string, decimals uint8) *CoinGeckoOracle {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CoinGeckoOracle{
		client:   client,
		endpoint: ep,
		assetID:  strings.ToLower(strings.TrimSpace(assetID)),
		currency: strings.ToLower(strings.TrimSpace(currency)),
		decimals: decimals,
	}
}

// LatestPrice fetches and scales the current price from CoinGecko.
func (o *CoinGeckoOracle) LatestPrice() (PriceQuote, error) {
	if o == nil {
		return PriceQuote{}, fmt.Errorf("coingecko oracle not configured")
	}
	if o.assetID == "" || o.currency == "" {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: asset and currency required")
	}
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	values := url.Values{}
	values.Set("ids", o.assetID)
	values.Set("vs_currencies", o.currency)
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := o.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("coingecko oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: decode: %w", err)
	}
	entry, ok := payload[o.assetID]
	if !ok {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: quote missing for %s", o.assetID)
	}
	var priceStr string
	if raw, exists := entry[o.currency]; exists {
		switch v := raw.(type) {
		case json.Number:
			priceStr = v.String()
		case string:
			priceStr = v
		case float64:
			priceStr = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			priceStr = fmt.Sprintf("%v", v)
		}
	}
	priceStr = strings.TrimSpace(priceStr)
	if priceStr == "" {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: empty price")
	}
	price, err := scaleDecimalPrice(priceStr, o.decimals)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: %w", err)
	}
	var ts time.Time
	if rawTs, exists := entry["last_updated_at"]; exists {
		switch v := rawTs.(type) {
		case json.Number:
			if parsed, err := v.Int64(); err == nil && parsed > 0 {
				ts = time.Unix(parsed, 0)
			}
		case float64:
			if v > 0 {
				ts = time.Unix(int64(v), 0)
			}
		}
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return PriceQuote{Price: price, Decimals: o.decimals, Timestamp: ts, Source: "coingecko"}, nil
}

// FallbackOracle consults a list of oracles in order until one returns a
// usable quote.
type FallbackOracle struct {
	mu      sync.RWMutex
	oracles []PriceOracle
}

// NewFallbackOracle constructs a fallback chain over the supplied oracles.
func NewFallbackOracle(oracles ...PriceOracle) *FallbackOracle {
	chain := make([]PriceOracle, 0, len(oracles))
	for _, oracle := range oracles {
		if oracle != nil {
			chain = append(chain, oracle)
		}
	}
	return &FallbackOracle{oracles: chain}
}

// Register appends an oracle to the end of the chain.
func (f *FallbackOracle) Register(oracle PriceOracle) {
	if f == nil || oracle == nil {
		return
	}
	f.mu.Lock()
	f.oracles = append(f.oracles, oracle)
	f.mu.Unlock()
}

// LatestPrice returns the first positive quote from the chain.
func (f *FallbackOracle) LatestPrice() (PriceQuote, error) {
	if f == nil {
		return PriceQuote{}, fmt.Errorf("fallback oracle not configured")
	}
	f.mu.RLock()
	chain := append([]PriceOracle{}, f.oracles...)
	f.mu.RUnlock()
	var lastErr error
	for _, oracle := range chain {
		quote, err := oracle.LatestPrice()
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle %s returned invalid price", quote.Source)
			continue
		}
		return quote.Clone(), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no oracle configured")
	}
	return PriceQuote{}, lastErr
}

// scaleDecimalPrice converts a decimal price string into fixed point with the
// supplied number of decimals, truncating toward zero.
func scaleDecimalPrice(price string, decimals uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return nil, fmt.Errorf("price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", price)
	}
	if rat.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(rat.Num(), rat.Denom()), nil
}
