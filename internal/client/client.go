// Package client talks to a karma server over HTTP. Reads are served from
// a per-client TTL cache with in-flight deduplication; recording an
// activity invalidates that user's cached reads.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/karma/internal/api"
	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/cache"
)

// Options configures a Client.
type Options struct {
	Timeout    time.Duration // per request, default 10s
	CacheSize  int           // entries per read cache
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is a karma API client.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	profiles *cache.Cache[domain.Profile]
	streaks  *cache.Cache[[]domain.StreakView]
	balances *cache.Cache[api.BalanceResponse]
	history  *cache.Cache[[]domain.PointTransaction]
	awards   *cache.Cache[domain.AwardHistory]

	challenges *cache.Cache[[]domain.Challenge]
}

// New creates a client for the server at baseURL, e.g. http://127.0.0.1:7420.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    opts.HTTPClient,
		log:     opts.Logger.Named("client"),
	}
	if c.profiles, err = cache.New[domain.Profile]("profile", opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if c.streaks, err = cache.New[[]domain.StreakView]("streaks", opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if c.balances, err = cache.New[api.BalanceResponse]("balance", opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if c.history, err = cache.New[[]domain.PointTransaction]("history", opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if c.awards, err = cache.New[domain.AwardHistory]("awards", opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	if c.challenges, err = cache.New[[]domain.Challenge]("challenges", opts.CacheSize, opts.CacheTTL); err != nil {
		return nil, err
	}
	return c, nil
}

// ─── Writes ─────────────────────────────────────────────────────────────────

// RecordActivity submits a completed activity and drops the user's cached
// reads, whether or not the call succeeded.
func (c *Client) RecordActivity(ctx context.Context, userID string, req api.RecordRequest) (domain.Summary, error) {
	defer c.Invalidate(userID)

	var sum domain.Summary
	err := c.do(ctx, http.MethodPost, userPath(userID, "activities"), req, &sum)
	return sum, err
}

// Invalidate drops every cached read for userID.
func (c *Client) Invalidate(userID string) {
	c.profiles.Invalidate(userID)
	c.streaks.Invalidate(userID)
	c.balances.Invalidate(userID)
	c.awards.Invalidate(userID)
	c.challenges.Invalidate(userID)
	c.history.InvalidatePrefix(userID + "?")
}

// ─── Cached reads ───────────────────────────────────────────────────────────

// Profile returns the user's dashboard.
func (c *Client) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	return c.profiles.GetOrLoad(ctx, userID, func(ctx context.Context) (domain.Profile, error) {
		var p domain.Profile
		err := c.do(ctx, http.MethodGet, userPath(userID, "profile"), nil, &p)
		return p, err
	})
}

// Streaks returns the user's streaks.
func (c *Client) Streaks(ctx context.Context, userID string) ([]domain.StreakView, error) {
	return c.streaks.GetOrLoad(ctx, userID, func(ctx context.Context) ([]domain.StreakView, error) {
		var resp api.StreaksResponse
		err := c.do(ctx, http.MethodGet, userPath(userID, "streaks"), nil, &resp)
		return resp.Streaks, err
	})
}

// Balance returns the user's balance and level.
func (c *Client) Balance(ctx context.Context, userID string) (api.BalanceResponse, error) {
	return c.balances.GetOrLoad(ctx, userID, func(ctx context.Context) (api.BalanceResponse, error) {
		var resp api.BalanceResponse
		err := c.do(ctx, http.MethodGet, userPath(userID, "balance"), nil, &resp)
		return resp, err
	})
}

// History returns up to limit recent transactions.
func (c *Client) History(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error) {
	key := userID + "?limit=" + strconv.Itoa(limit)
	return c.history.GetOrLoad(ctx, key, func(ctx context.Context) ([]domain.PointTransaction, error) {
		var resp api.TransactionsResponse
		path := userPath(userID, "transactions") + "?limit=" + strconv.Itoa(limit)
		err := c.do(ctx, http.MethodGet, path, nil, &resp)
		return resp.Transactions, err
	})
}

// Awards returns every award the user holds.
func (c *Client) Awards(ctx context.Context, userID string) (domain.AwardHistory, error) {
	return c.awards.GetOrLoad(ctx, userID, func(ctx context.Context) (domain.AwardHistory, error) {
		var h domain.AwardHistory
		err := c.do(ctx, http.MethodGet, userPath(userID, "awards"), nil, &h)
		return h, err
	})
}

// Challenges returns the user's open daily and weekly challenges.
func (c *Client) Challenges(ctx context.Context, userID string) ([]domain.Challenge, error) {
	return c.challenges.GetOrLoad(ctx, userID, func(ctx context.Context) ([]domain.Challenge, error) {
		var resp api.ChallengesResponse
		err := c.do(ctx, http.MethodGet, userPath(userID, "challenges"), nil, &resp)
		return resp.Challenges, err
	})
}

// ChallengeStats returns the user's challenge summary. Not cached.
func (c *Client) ChallengeStats(ctx context.Context, userID string) (domain.ChallengeStats, error) {
	var stats domain.ChallengeStats
	err := c.do(ctx, http.MethodGet, userPath(userID, "challenges/stats"), nil, &stats)
	return stats, err
}

// Activities lists the server's activity catalog. Not cached.
func (c *Client) Activities(ctx context.Context) ([]domain.ActivityDef, error) {
	var resp struct {
		Activities []domain.ActivityDef `json:"activities"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/catalog/activities", nil, &resp)
	return resp.Activities, err
}

// RunCacheSweeper evicts expired entries every interval until ctx is done.
func (c *Client) RunCacheSweeper(ctx context.Context, every time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { c.profiles.Run(ctx, every); return nil })
	g.Go(func() error { c.streaks.Run(ctx, every); return nil })
	g.Go(func() error { c.balances.Run(ctx, every); return nil })
	g.Go(func() error { c.history.Run(ctx, every); return nil })
	g.Go(func() error { c.awards.Run(ctx, every); return nil })
	g.Go(func() error { c.challenges.Run(ctx, every); return nil })
	return g.Wait()
}

// ─── Transport ──────────────────────────────────────────────────────────────

// Error is a non-2xx API response. It unwraps to the matching domain
// sentinel so callers can use errors.Is as they would in-process.
type Error struct {
	Status  int
	Type    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("karma api %d %s (%s): %s", e.Status, e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("karma api %d %s: %s", e.Status, e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusUnprocessableEntity:
		return domain.ErrUnknownActivityType
	case http.StatusConflict:
		return domain.ErrConcurrencyConflict
	default:
		return domain.ErrTransient
	}
}

func userPath(userID, resource string) string {
	return "/api/v1/users/" + url.PathEscape(userID) + "/" + resource
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(err, domain.ErrTransient))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope api.ErrorBody
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Type != "" {
			apiErr.Type = envelope.Error.Type
			apiErr.Message = envelope.Error.Message
			apiErr.Field = envelope.Error.Field
		}
		c.log.Debug("api error", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
