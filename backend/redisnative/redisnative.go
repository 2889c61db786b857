// Package redisnative implements backend.Client over a persistent
// native-protocol connection using redis/go-redis.
//
// The client holds a connection pool with keep-alive and retries. Connection
// lifecycle events (dial, ready, errors) are logged through the configured
// Logger; the hooks are observability-only and never alter command flow.
package redisnative

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/coursekit/tenantcache/backend"
)

type Client struct {
	rdb  *goredis.Client
	addr string
	log  backend.Logger
}

var _ backend.Client = (*Client)(nil)

// New constructs a native-protocol client from cfg. It fails fast with a
// *backend.ConfigError when the address is missing; it does not dial, so
// connections are established lazily by the pool on first command.
func New(cfg backend.Config) (*Client, error) {
	cfg = cfg.Normalize()
	if cfg.RedisAddr == "" {
		return nil, &backend.ConfigError{Provider: backend.ProviderRedis, Missing: []string{"RedisAddr"}}
	}

	opts := &goredis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.CommandTimeout,
		WriteTimeout: cfg.CommandTimeout,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	log := cfg.Logger
	opts.OnConnect = func(_ context.Context, cn *goredis.Conn) error {
		log.Info("redis connection ready", backend.Fields{"addr": cfg.RedisAddr})
		return nil
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(lifecycleHook{log: log, addr: cfg.RedisAddr})

	return &Client{rdb: rdb, addr: cfg.RedisAddr, log: log}, nil
}

// lifecycleHook logs dials and command transport failures. It must not
// change control flow: every error is passed through untouched.
type lifecycleHook struct {
	log  backend.Logger
	addr string
}

var _ goredis.Hook = lifecycleHook{}

func (h lifecycleHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		h.log.Debug("redis dialing", backend.Fields{"addr": addr})
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.log.Warn("redis dial failed (will retry)", backend.Fields{"addr": addr, "err": err})
		}
		return conn, err
	}
}

func (h lifecycleHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.log.Debug("redis command error", backend.Fields{"cmd": cmd.Name(), "err": err})
		}
		return err
	}
}

func (h lifecycleHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		return next(ctx, cmds)
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return c.rdb.Del(ctx, keys...).Result()
}

func (c *Client) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			s := vv
			out[i] = &s
		case []byte:
			s := string(vv)
			out[i] = &s
		}
	}
	return out, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return c.rdb.HIncrBy(ctx, key, field, incr).Result()
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SAdd(ctx, key, args...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SRem(ctx, key, args...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (c *Client) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]backend.Z, error) {
	zs, err := c.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]backend.Z, len(zs))
	for i, z := range zs {
		m, _ := z.Member.(string)
		out[i] = backend.Z{Score: z.Score, Member: m}
	}
	return out, nil
}

func (c *Client) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	return c.rdb.ZRemRangeByRank(ctx, key, start, stop).Result()
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.Expire(ctx, key, ttl).Result()
}

// ExpireAtLeast tries GT first (extend a shorter TTL), then NX (pin a TTL
// on a key that has none). A key whose TTL is already longer matches
// neither and is untouched.
func (c *Client) ExpireAtLeast(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.ExpireGT(ctx, key, ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	return c.rdb.ExpireNX(ctx, key, ttl).Result()
}

// Keys enumerates via SCAN (cursor iteration) rather than the blocking KEYS
// command, so large keyspaces do not stall the server.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Info reports the address plus a few server fields (version, mode, uptime)
// parsed from INFO server. Parse failures degrade to address-only info.
func (c *Client) Info(ctx context.Context) backend.Info {
	info := backend.Info{Provider: backend.ProviderRedis, Endpoint: c.addr}
	raw, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return info
	}
	server := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch k {
		case "redis_version", "redis_mode", "uptime_in_seconds", "os":
			server[k] = v
		}
	}
	info.Server = server
	return info
}

func (c *Client) Capabilities() backend.Capabilities {
	return backend.Capabilities{PatternScan: true, MultiGet: true}
}

func (c *Client) Close(context.Context) error {
	if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
