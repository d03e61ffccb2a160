package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/markjakearzadon/mpesa-gobackend/internal/cache"
	"github.com/markjakearzadon/mpesa-gobackend/internal/metrics"
	"go.uber.org/zap"
)

// ErrTokenUnavailable is returned when Daraja does not hand out an access token.
var ErrTokenUnavailable = errors.New("mpesa access token unavailable")

const (
	tokenCacheKey = "mpesa:access_token"
	// refresh a minute before Daraja expires the token
	tokenExpiryMargin = time.Minute
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	tokens     cache.Store
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTokenCache shares access tokens through store instead of requesting
// a new one for every STK push.
func WithTokenCache(store cache.Store) Option {
	return func(c *Client) { c.tokens = store }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken exchanges the consumer key and secret for a bearer token.
// Failures are logged here; callers only need to know there is no token.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.tokens != nil {
		token, err := c.tokens.Get(ctx, tokenCacheKey)
		if err == nil && token != "" {
			metrics.TokenRequests.WithLabelValues("cache").Inc()
			return token, nil
		}
		if err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
			c.logger.Warn("token cache lookup failed", zap.Error(err))
		}
	}

	metrics.TokenRequests.WithLabelValues("oauth").Inc()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		c.logger.Error("failed to build token request", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("error getting access token", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("failed to get access token",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return "", fmt.Errorf("%w: status %d", ErrTokenUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		c.logger.Error("failed to decode access token response", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if tr.AccessToken == "" {
		c.logger.Error("access token response carried no token")
		return "", ErrTokenUnavailable
	}

	if c.tokens != nil {
		c.cacheToken(ctx, tr)
	}
	return tr.AccessToken, nil
}

func (c *Client) cacheToken(ctx context.Context, tr tokenResponse) {
	seconds, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil {
		c.logger.Warn("unparseable expires_in, token not cached", zap.String("expires_in", tr.ExpiresIn))
		return
	}
	ttl := time.Duration(seconds)*time.Second - tokenExpiryMargin
	if ttl <= 0 {
		return
	}
	if err := c.tokens.Set(ctx, tokenCacheKey, tr.AccessToken, ttl); err != nil {
		c.logger.Warn("failed to cache access token", zap.Error(err))
	}
}
