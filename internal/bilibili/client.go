package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
)

// Endpoints and request identity
const (
	DefaultAPIBaseURL       = "https://api.bilibili.com"
	DefaultPassportBaseURL  = "https://passport.bilibili.com"
	DefaultShortLinkBaseURL = "https://b23.tv"

	SiteReferer = "https://www.bilibili.com/"
	SiteOrigin  = "https://www.bilibili.com"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// API code for a request that needs a logged in account
const codeNotLoggedIn = -101

const (
	defaultTimeout        = 15 * time.Second
	defaultStreamTimeout  = 30 * time.Minute
	defaultRateLimit      = 5
	defaultRateLimitBurst = 10
	maxErrorBody          = 512
)

// Options configures the client
type Options struct {
	APIBaseURL       string
	PassportBaseURL  string
	ShortLinkBaseURL string
	Timeout          time.Duration
	StreamTimeout    time.Duration
	RateLimit        rate.Limit
	RateLimitBurst   int
	UserAgent        string
	// HTTPClient serves API calls; built from Timeout when nil
	HTTPClient *http.Client
	// StreamClient serves CDN downloads; an SSRF guarded client when nil
	StreamClient *http.Client
	Logger       *zerolog.Logger
}

// Client talks to the video service
type Client struct {
	apiBase      string
	passportBase string
	shortBase    string
	http         *http.Client
	noRedirect   *http.Client
	stream       *http.Client
	limiter      *rate.Limiter
	userAgent    string
	text         *bluemonday.Policy
	logger       zerolog.Logger
}

// NewClient creates a client with defaults filled in
func NewClient(opts Options) *Client {
	nopts := normalizeOptions(opts)

	httpClient := nopts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: nopts.Timeout}
	}
	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	stream := nopts.StreamClient
	if stream == nil {
		stream = newSafeStreamClient(nopts.StreamTimeout)
	}

	logger := xlog.WithComponent("bilibili")
	if nopts.Logger != nil {
		logger = *nopts.Logger
	}

	return &Client{
		apiBase:      nopts.APIBaseURL,
		passportBase: nopts.PassportBaseURL,
		shortBase:    nopts.ShortLinkBaseURL,
		http:         httpClient,
		noRedirect:   &noRedirect,
		stream:       stream,
		limiter:      rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		userAgent:    nopts.UserAgent,
		text:         bluemonday.StrictPolicy(),
		logger:       logger,
	}
}

func normalizeOptions(opts Options) Options {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = DefaultAPIBaseURL
	}
	if opts.PassportBaseURL == "" {
		opts.PassportBaseURL = DefaultPassportBaseURL
	}
	if opts.ShortLinkBaseURL == "" {
		opts.ShortLinkBaseURL = DefaultShortLinkBaseURL
	}
	opts.APIBaseURL = strings.TrimRight(opts.APIBaseURL, "/")
	opts.PassportBaseURL = strings.TrimRight(opts.PassportBaseURL, "/")
	opts.ShortLinkBaseURL = strings.TrimRight(opts.ShortLinkBaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = defaultStreamTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return opts
}

// newSafeStreamClient blocks private, loopback and link-local targets
// after DNS resolution.
func newSafeStreamClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

// envelope is the common API response wrapper
type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

// getJSON performs a rate limited GET and decodes the body into out. It
// returns the cookies the server set.
func (c *Client) getJSON(ctx context.Context, op, rawURL, cookie string, out any) ([]*http.Cookie, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}
	c.applyHeaders(req, SiteReferer, cookie)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("request failed")
		return nil, apperr.Wrap(apperr.KindNetwork, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api response")

	if err := statusError(op, resp); err != nil {
		return nil, err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, op, fmt.Errorf("decode response: %w", err))
	}
	return resp.Cookies(), nil
}

func (c *Client) applyHeaders(req *http.Request, referer, cookie string) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", referer)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
}

// statusError maps a non 2xx response to a classified error
func statusError(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("HTTP error: %s", resp.Status)
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		msg += " - " + trimmed
	}
	kind := apperr.KindNetwork
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = apperr.KindAuth
	}
	return &apperr.Error{Kind: kind, Op: op, Msg: msg}
}

// codeError maps a non zero API code to a classified error
func codeError(op string, code int, message string) error {
	if code == 0 {
		return nil
	}
	kind := apperr.KindNetwork
	if code == codeNotLoggedIn {
		kind = apperr.KindAuth
	}
	return &apperr.Error{Kind: kind, Op: op, Msg: fmt.Sprintf("API error: %d - %s", code, message)}
}

// plainText strips markup from API supplied text
func (c *Client) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.text.Sanitize(s)))
}
