// Package redisrest implements backend.Client over a stateless
// request/response HTTP endpoint (Upstash-style Redis REST protocol).
//
// Each command is one POST of a JSON array (["SET","k","v","EX","60"]) with
// bearer-token auth; the response is {"result": ...} or {"error": "..."}.
// There is no persistent connection and no pattern enumeration, so
// Capabilities reports PatternScan=false and MultiGet=false; callers are
// expected to branch on the flags, not on the concrete type.
package redisrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coursekit/tenantcache/backend"
)

type Client struct {
	base  string
	token string
	http  *http.Client
	log   backend.Logger
}

var _ backend.Client = (*Client)(nil)

// New constructs a REST client from cfg, failing fast with a
// *backend.ConfigError when the URL or token is missing.
func New(cfg backend.Config) (*Client, error) {
	cfg = cfg.Normalize()
	var missing []string
	if cfg.RESTURL == "" {
		missing = append(missing, "RESTURL")
	}
	if cfg.RESTToken == "" {
		missing = append(missing, "RESTToken")
	}
	if len(missing) > 0 {
		return nil, &backend.ConfigError{Provider: backend.ProviderREST, Missing: missing}
	}
	if _, err := url.Parse(cfg.RESTURL); err != nil {
		return nil, &backend.ConfigError{Provider: backend.ProviderREST, Missing: []string{"RESTURL (unparseable)"}}
	}

	return &Client{
		base:  cfg.RESTURL,
		token: cfg.RESTToken,
		http: &http.Client{
			Timeout: cfg.CommandTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		},
		log: cfg.Logger,
	}, nil
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// do executes one command round-trip and returns the raw result value.
func (c *Client) do(ctx context.Context, args ...any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("redisrest: encode command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var rr restResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("redisrest: malformed response (status %d): %w", resp.StatusCode, err)
	}
	if rr.Error != "" {
		return nil, fmt.Errorf("redisrest: %s", rr.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("redisrest: unexpected status %d", resp.StatusCode)
	}
	return rr.Result, nil
}

func (c *Client) doInt(ctx context.Context, args ...any) (int64, error) {
	res, err := c.do(ctx, args...)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(res, &n); err != nil {
		return 0, fmt.Errorf("redisrest: non-integer result: %w", err)
	}
	return n, nil
}

func (c *Client) doStrings(ctx context.Context, args ...any) ([]string, error) {
	res, err := c.do(ctx, args...)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, fmt.Errorf("redisrest: non-array result: %w", err)
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := c.do(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	if string(res) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(res, &s); err != nil {
		return "", false, fmt.Errorf("redisrest: non-string result: %w", err)
	}
	return s, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if secs := wholeSeconds(ttl); secs > 0 {
		_, err := c.do(ctx, "SET", key, value, "EX", secs)
		return err
	}
	_, err := c.do(ctx, "SET", key, value)
	return err
}

func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	args := append([]any{"DEL"}, toAny(keys)...)
	return c.doInt(ctx, args...)
}

// MGet is not offered over the single-command REST transport; callers fall
// back to parallel per-key Gets.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	return nil, backend.ErrMultiGetUnsupported
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.doInt(ctx, "EXISTS", key)
	return n > 0, err
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	flat, err := c.doStrings(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}
	return out, nil
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return c.doInt(ctx, "HINCRBY", key, field, incr)
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := append([]any{"SADD", key}, toAny(members)...)
	_, err := c.doInt(ctx, args...)
	return err
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := append([]any{"SREM", key}, toAny(members)...)
	_, err := c.doInt(ctx, args...)
	return err
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.doStrings(ctx, "SMEMBERS", key)
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := c.doInt(ctx, "ZADD", key, score, member)
	return err
}

func (c *Client) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]backend.Z, error) {
	flat, err := c.doStrings(ctx, "ZRANGE", key, start, stop, "WITHSCORES")
	if err != nil {
		return nil, err
	}
	out := make([]backend.Z, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		score, err := strconv.ParseFloat(flat[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("redisrest: bad zset score %q: %w", flat[i+1], err)
		}
		out = append(out, backend.Z{Member: flat[i], Score: score})
	}
	return out, nil
}

func (c *Client) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	return c.doInt(ctx, "ZREMRANGEBYRANK", key, start, stop)
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	n, err := c.doInt(ctx, "EXPIRE", key, wholeSeconds(ttl))
	return n > 0, err
}

func (c *Client) ExpireAtLeast(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	secs := wholeSeconds(ttl)
	n, err := c.doInt(ctx, "EXPIRE", key, secs, "GT")
	if err != nil || n > 0 {
		return n > 0, err
	}
	n, err = c.doInt(ctx, "EXPIRE", key, secs, "NX")
	return n > 0, err
}

// Keys is unsupported: the REST transport exposes no cursor scan and a
// blocking KEYS would be unbounded on a shared endpoint.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return nil, backend.ErrPatternScanUnsupported
}

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.do(ctx, "PING")
	if err != nil {
		return err
	}
	var s string
	if err := json.Unmarshal(res, &s); err != nil || s != "PONG" {
		return fmt.Errorf("redisrest: unexpected ping reply %s", res)
	}
	return nil
}

// Info reports only the masked endpoint; the bearer token and any userinfo
// are never included.
func (c *Client) Info(context.Context) backend.Info {
	return backend.Info{Provider: backend.ProviderREST, Endpoint: maskEndpoint(c.base)}
}

func (c *Client) Capabilities() backend.Capabilities {
	return backend.Capabilities{PatternScan: false, MultiGet: false}
}

func (c *Client) Close(context.Context) error {
	c.http.CloseIdleConnections()
	return nil
}

func maskEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid endpoint>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Path = ""
	return u.String()
}

func wholeSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	secs := int64((ttl + time.Second - 1) / time.Second)
	return secs
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
