package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/metrics"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"golang.org/x/time/rate"
)

const (
	geniBaseURL  = "https://www.geni.com/api"
	geniOAuthURL = "https://www.geni.com/platform/oauth/request_token"
)

// Geni is the remote relationship graph service. Fetch methods return the raw
// JSON body; interpreting error payloads is left to the parser.
type Geni interface {
	FetchFamily(ctx context.Context, ids []model.ProfileID, fields []string) ([]byte, error)
	FetchProfiles(ctx context.Context, ids []model.ProfileID, fields []string) ([]byte, error)
	FetchProjects(ctx context.Context, ids []int64) ([]byte, error)
	Follow(ctx context.Context, id model.ProfileID) error
	Unfollow(ctx context.Context, id model.ProfileID) error
	RefreshCredential(ctx context.Context) error
}

type GeniClient struct {
	baseURL    string
	oauthURL   string
	httpClient *http.Client
	limiter    *rate.Limiter

	appID     string
	appSecret string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

type GeniOption func(*GeniClient)

func WithBaseURL(u string) GeniOption {
	return func(c *GeniClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithOAuthURL(u string) GeniOption {
	return func(c *GeniClient) {
		c.oauthURL = u
	}
}

func WithHTTPClient(client *http.Client) GeniOption {
	return func(c *GeniClient) {
		c.httpClient = client
	}
}

// WithRateLimit paces requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64, burst int) GeniOption {
	return func(c *GeniClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithRefreshToken(token string) GeniOption {
	return func(c *GeniClient) {
		c.refreshToken = token
	}
}

func WithAppCredential(id, secret string) GeniOption {
	return func(c *GeniClient) {
		c.appID = id
		c.appSecret = secret
	}
}

// NewGeni creates a client authenticated by accessToken.
func NewGeni(accessToken string, opts ...GeniOption) *GeniClient {
	c := &GeniClient{
		baseURL:  geniBaseURL,
		oauthURL: geniOAuthURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Limit(10), 10),
		accessToken: accessToken,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *GeniClient) FetchFamily(ctx context.Context, ids []model.ProfileID, fields []string) ([]byte, error) {
	q := url.Values{}
	q.Set("ids", joinIDs(ids))
	q.Set("only_ids", "true")
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	return c.get(ctx, "family", "profile/immediate-family", q)
}

func (c *GeniClient) FetchProfiles(ctx context.Context, ids []model.ProfileID, fields []string) ([]byte, error) {
	q := url.Values{}
	q.Set("ids", joinIDs(ids))
	q.Set("only_ids", "true")
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	return c.get(ctx, "profile", "profile", q)
}

func (c *GeniClient) FetchProjects(ctx context.Context, ids []int64) ([]byte, error) {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.FormatInt(id, 10)
	}

	q := url.Values{}
	q.Set("ids", strings.Join(s, ","))
	q.Set("fields", "id,name")
	return c.get(ctx, "project", "project", q)
}

func (c *GeniClient) Follow(ctx context.Context, id model.ProfileID) error {
	return c.post(ctx, "follow", string(id)+"/follow")
}

func (c *GeniClient) Unfollow(ctx context.Context, id model.ProfileID) error {
	return c.post(ctx, "unfollow", string(id)+"/unfollow")
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Error        any    `json:"error"`
}

// RefreshCredential exchanges the refresh token for a new access token once.
func (c *GeniClient) RefreshCredential(ctx context.Context) error {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()

	if refresh == "" {
		return goerr.Wrap(model.ErrInvalidCredential, "no refresh token configured")
	}

	q := url.Values{}
	q.Set("refresh_token", refresh)
	q.Set("grant_type", "refresh_token")
	q.Set("client_id", c.appID)
	q.Set("client_secret", c.appSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.oauthURL+"?"+q.Encode(), nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create refresh request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(model.ErrTransientFetch, "failed to refresh credential", goerr.V("error", err.Error()))
	}
	defer resp.Body.Close()

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return goerr.Wrap(err, "failed to decode refresh response", goerr.V("status", resp.StatusCode))
	}
	if token.Error != nil || token.AccessToken == "" {
		return goerr.Wrap(model.ErrInvalidCredential, "refresh token rejected",
			goerr.V("status", resp.StatusCode),
			goerr.V("error", token.Error))
	}

	c.mu.Lock()
	c.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.refreshToken = token.RefreshToken
	}
	c.mu.Unlock()

	logging.From(ctx).Info("access token refreshed")
	return nil
}

func (c *GeniClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *GeniClient) get(ctx context.Context, endpoint, path string, q url.Values) ([]byte, error) {
	q.Set("access_token", c.token())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	return c.do(ctx, endpoint, req)
}

func (c *GeniClient) post(ctx context.Context, endpoint, path string) error {
	form := url.Values{}
	form.Set("access_token", c.token())
	form.Set("fields", "id")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, strings.NewReader(form.Encode()))
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(ctx, endpoint, req)
	if err != nil {
		return err
	}

	var resp struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != nil {
		return goerr.New("remote rejected request",
			goerr.V("path", path),
			goerr.V("message", resp.Error.Message))
	}
	return nil
}

func (c *GeniClient) do(ctx context.Context, endpoint string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "rate limiter aborted", goerr.V("endpoint", endpoint))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchTotal.WithLabelValues(endpoint, "transient").Inc()
		return nil, goerr.Wrap(model.ErrTransientFetch, "request failed",
			goerr.V("endpoint", endpoint),
			goerr.V("error", err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchTotal.WithLabelValues(endpoint, "transient").Inc()
		return nil, goerr.Wrap(model.ErrTransientFetch, "failed to read response",
			goerr.V("endpoint", endpoint),
			goerr.V("error", err.Error()))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		metrics.FetchTotal.WithLabelValues(endpoint, "transient").Inc()
		return nil, goerr.Wrap(model.ErrTransientFetch, "remote is unavailable",
			goerr.V("endpoint", endpoint),
			goerr.V("status", resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK {
		metrics.FetchTotal.WithLabelValues(endpoint, "error").Inc()
		logging.From(ctx).Debug("remote returned non-200",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", string(body))
		return body, nil
	}

	metrics.FetchTotal.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

// joinIDs renders ids the way the batch endpoints expect: numeric part only.
func joinIDs(ids []model.ProfileID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strings.TrimPrefix(string(id), "profile-")
	}
	return strings.Join(s, ",")
}
