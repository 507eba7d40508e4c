// Package bybit is a client for the Bybit inverse perpetual v2 REST API and
// its public kline stream.
//
// Responses are decoded into typed records at this boundary; callers only see
// model types. Private endpoints are signed with HMAC-SHA256 over the sorted
// parameter string.
//
// Usage example:
//
//	c := bybit.NewClient(bybit.Config{APIKey: key, APISecret: secret, Symbol: "BTCUSD", Testnet: true})
//	bal, err := c.FetchBalance(ctx, "BTC")
//	if err != nil { log.Fatal(err) }
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ---- Config & client ----

type Config struct {
	APIKey    string
	APISecret string
	Symbol    string // default: BTCUSD

	Testnet    bool
	RootURL    string        // overrides the mainnet/testnet default
	Timeout    time.Duration // default: 7s
	RecvWindow int64         // ms, default: 5000
	PageLimit  int           // bars per kline page, default and max: 200
	Debug      bool

	HTTPClient *http.Client // optional
}

type Client struct {
	apiKey     string
	apiSecret  string
	symbol     string
	rootURL    string
	recvWindow int64
	pageLimit  int
	debug      bool

	httpClient *http.Client
	now        func() time.Time
}

const (
	defaultRoot = "https://api.bybit.com"
	testnetRoot = "https://api-testnet.bybit.com"

	maxPageLimit = 200
)

var routes = map[string]string{
	"public.kline.list":        "/v2/public/kline/list",
	"private.wallet.balance":   "/v2/private/wallet/balance",
	"private.position.list":    "/v2/private/position/list",
	"private.order.list":       "/v2/private/order/list",
	"private.order.create":     "/v2/private/order/create",
	"private.order.cancel_all": "/v2/private/order/cancelAll",
}

// NewClient initializes the client.
func NewClient(cfg Config) *Client {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSD"
	}
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
		if cfg.Testnet {
			cfg.RootURL = testnetRoot
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > maxPageLimit {
		cfg.PageLimit = maxPageLimit
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		symbol:     cfg.Symbol,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		recvWindow: cfg.RecvWindow,
		pageLimit:  cfg.PageLimit,
		debug:      cfg.Debug,
		httpClient: hc,
		now:        time.Now,
	}
}

// Symbol returns the traded symbol.
func (c *Client) Symbol() string { return c.symbol }

// Coin returns the settlement coin of an inverse symbol (BTCUSD -> BTC).
func (c *Client) Coin() string {
	if len(c.symbol) >= 3 {
		return c.symbol[:3]
	}
	return c.symbol
}

// PageLimit returns the number of bars requested per kline page.
func (c *Client) PageLimit() int { return c.pageLimit }

// ---- Errors ----

// APIError is a non-zero ret_code or a non-2xx HTTP status.
type APIError struct {
	Route      string
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit %s: http=%d ret_code=%d %s", e.Route, e.HTTPStatus, e.Code, e.Msg)
}

// Permanent reports whether retrying the same request is pointless. Rate
// limits, expired timestamps and server-side errors are transient.
func (e *APIError) Permanent() bool {
	if e.HTTPStatus >= 500 || e.HTTPStatus == http.StatusTooManyRequests {
		return false
	}
	switch e.Code {
	case 10002, // request expired, clock skew
		10006, // too many visits
		10016, // service error
		10018: // ip rate limit
		return false
	}
	return true
}

// ---- Helpers ----

type envelope struct {
	RetCode int             `json:"ret_code"`
	RetMsg  string          `json:"ret_msg"`
	Result  json.RawMessage `json:"result"`
	TimeNow string          `json:"time_now"`
}

// Sign returns hex(HMAC-SHA256(secret, payload)).
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// signPayload renders params as k=v pairs sorted by key, the form the venue
// signs.
func signPayload(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + toString(params[k])
	}
	return strings.Join(parts, "&")
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func (c *Client) sign(params map[string]any) {
	params["api_key"] = c.apiKey
	params["timestamp"] = c.now().UnixMilli()
	params["recv_window"] = c.recvWindow
	params["sign"] = Sign(c.apiSecret, signPayload(params))
}

func (c *Client) doRequest(ctx context.Context, method, route string, params map[string]any, private bool, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}
	if params == nil {
		params = map[string]any{}
	}
	if private {
		if c.apiKey == "" || c.apiSecret == "" {
			return &APIError{Route: route, Msg: "missing api credentials"}
		}
		c.sign(params)
	}

	reqURL := c.rootURL + uri
	var body io.Reader
	if method == http.MethodGet {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, toString(v))
		}
		if len(q) > 0 {
			reqURL += "?" + q.Encode()
		}
	} else {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.debug {
		slog.Debug("bybit request", "method", method, "route", route)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bybit %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bybit %s: read body: %w", route, err)
	}
	if c.debug {
		slog.Debug("bybit response", "route", route, "status", resp.StatusCode, "body", string(raw))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Route: route, HTTPStatus: resp.StatusCode, Msg: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &parseError{route: route, err: err}
	}
	if env.RetCode != 0 {
		return &APIError{Route: route, HTTPStatus: resp.StatusCode, Code: env.RetCode, Msg: env.RetMsg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &parseError{route: route, err: err}
	}
	return nil
}

// parseError is a malformed response. Not retryable.
type parseError struct {
	route string
	err   error
}

func (e *parseError) Error() string   { return fmt.Sprintf("bybit %s: couldn't parse response: %v", e.route, e.err) }
func (e *parseError) Unwrap() error   { return e.err }
func (e *parseError) Permanent() bool { return true }

// permanentError marks a request rejected before it reached the venue.
type permanentError struct{ error }

func (e permanentError) Unwrap() error { return e.error }
func (permanentError) Permanent() bool { return true }
