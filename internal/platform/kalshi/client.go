// Package kalshi is a minimal read-only REST client for the Kalshi trade API:
// market listings and orderbooks. It never places orders.
package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/atmx/sentinel/internal/metrics"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// ErrNotFound is returned for unknown tickers.
var ErrNotFound = errors.New("kalshi: not found")

// Client talks to the Kalshi REST API. Requests are signed when a key is
// configured; market data endpoints also work unsigned.
type Client struct {
	baseURL    string
	basePath   string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithCredentials signs every request with the given key.
func WithCredentials(apiKeyID string, key *rsa.PrivateKey) Option {
	return func(c *Client) {
		c.apiKeyID = apiKeyID
		c.privateKey = key
	}
}

// NewClient creates a client rooted at baseURL, e.g. DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("kalshi: base url: %w", err)
	}
	c := &Client{
		baseURL:    u.String(),
		basePath:   u.Path,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoadPrivateKey reads a PEM encoded RSA key (PKCS#8 or PKCS#1).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes a PEM encoded RSA key (PKCS#8 or PKCS#1).
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		return pkcs1Key, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	return rsaKey, nil
}

// GetMarkets returns one page of markets.
func (c *Client) GetMarkets(ctx context.Context, q MarketsQuery) (*MarketsPage, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.SeriesTicker != "" {
		params.Set("series_ticker", q.SeriesTicker)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if !q.MaxCloseTime.IsZero() {
		params.Set("max_close_ts", strconv.FormatInt(q.MaxCloseTime.Unix(), 10))
	}

	var page MarketsPage
	if err := c.get(ctx, "markets", "/markets", params, &page); err != nil {
		return nil, fmt.Errorf("kalshi: get markets: %w", err)
	}
	return &page, nil
}

// ListMarkets follows cursors until exhausted or maxPages pages were read.
func (c *Client) ListMarkets(ctx context.Context, q MarketsQuery, maxPages int) ([]Market, error) {
	var out []Market
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		p, err := c.GetMarkets(ctx, q)
		if err != nil {
			return out, err
		}
		out = append(out, p.Markets...)
		if p.Cursor == "" {
			break
		}
		q.Cursor = p.Cursor
	}
	return out, nil
}

// GetOrderbook returns the top depth levels of a market's book.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (*Orderbook, error) {
	params := url.Values{}
	if depth > 0 {
		params.Set("depth", strconv.Itoa(depth))
	}

	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	path := "/markets/" + url.PathEscape(ticker) + "/orderbook"
	if err := c.get(ctx, "orderbook", path, params, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}
	resp.Orderbook.Ticker = ticker
	return &resp.Orderbook, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.sign(req, c.basePath+path); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sign adds the RSA-PSS auth headers. The signed message is
// timestamp + method + path, where path carries the API prefix and no query.
func (c *Client) sign(req *http.Request, signPath string) error {
	if c.privateKey == nil {
		return nil
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	hash := sha256.Sum256([]byte(ts + req.Method + signPath))
	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: unauthorized: %s", msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: rate limited: %s", msg)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s", status, msg)
	}
}
