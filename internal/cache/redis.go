package cache

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefixPage string = "go_blog_pages:page:"

// pages written to redis expire after an hour unless CACHE_TTL says
// otherwise (0 disables expiry)
const defaultRedisTtl time.Duration = time.Hour

type redisCache struct {
	redisClient *redis.Client
	config      struct {
		address        string
		port           string
		password       string
		database       int
		timeout        time.Duration
		connectTimeout time.Duration
		ttl            time.Duration
	}
	utilities.Logger
}

func NewRedis(parameters ...any) interface {
	internal.Configurer
	internal.Opener
	internal.Clearer
	Cache
} {
	c := &redisCache{
		Logger: utilities.NewLogger(),
	}
	for _, parameter := range parameters {
		switch p := parameter.(type) {
		case utilities.Logger:
			c.Logger = p
		}
	}
	return c
}

func pageKey(key string) string {
	return keyPrefixPage + key
}

func (c *redisCache) Configure(envs map[string]string) error {
	c.config.timeout = 10 * time.Second
	c.config.connectTimeout = 30 * time.Second
	c.config.ttl = defaultRedisTtl
	if redisAddress, ok := envs["REDIS_ADDRESS"]; ok {
		c.config.address = redisAddress
	}
	if redisPort, ok := envs["REDIS_PORT"]; ok {
		c.config.port = redisPort
	}
	if redisPassword, ok := envs["REDIS_PASSWORD"]; ok {
		c.config.password = redisPassword
	}
	if redisDatabase, ok := envs["REDIS_DATABASE"]; ok {
		i, _ := strconv.ParseInt(redisDatabase, 10, 64)
		c.config.database = int(i)
	}
	if redisTimeout, ok := envs["REDIS_TIMEOUT"]; ok {
		if i, _ := strconv.ParseInt(redisTimeout, 10, 64); i > 0 {
			c.config.timeout = time.Duration(i) * time.Second
		}
	}
	if connectTimeout, ok := envs["REDIS_CONNECT_TIMEOUT"]; ok {
		if i, _ := strconv.ParseInt(connectTimeout, 10, 64); i > 0 {
			c.config.connectTimeout = time.Duration(i) * time.Second
		}
	}
	if s, ok := envs["CACHE_TTL"]; ok {
		ttl, _ := strconv.Atoi(s)
		c.config.ttl = time.Second * time.Duration(ttl)
	}
	return nil
}

// Open connects to redis, retrying with an exponential backoff until
// the connect timeout elapses
func (c *redisCache) Open(ctx context.Context) error {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(c.config.address, c.config.port),
		Password: c.config.password,
		DB:       c.config.database,
	})
	pingFx := func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.timeout)
		defer cancel()
		result, err := redisClient.Ping(ctx).Result()
		if err != nil {
			c.Debug(ctx, "unable to ping redis, retrying: %s", err)
		}
		return result, err
	}
	if _, err := backoff.Retry(ctx, pingFx,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.config.connectTimeout)); err != nil {
		_ = redisClient.Close()
		return errors.Wrap(err, "while connecting to redis")
	}
	c.redisClient = redisClient
	return nil
}

func (c *redisCache) Close(ctx context.Context) error {
	if c.redisClient == nil {
		return nil
	}
	if err := c.redisClient.Close(); err != nil {
		c.Error(ctx, "error while shutting down redis client: %s", err)
	}
	return nil
}

func (c *redisCache) Clear(ctx context.Context) error {
	var keys []string

	ctx, cancel := context.WithTimeout(ctx, c.config.timeout)
	defer cancel()
	iter := c.redisClient.Scan(ctx, 0, keyPrefixPage+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) <= 0 {
		return nil
	}
	if _, err := c.redisClient.Del(ctx, keys...).Result(); err != nil {
		return err
	}
	c.Trace(ctx, "cleared %d cached pages", len(keys))
	return nil
}

func (c *redisCache) PageRead(ctx context.Context, key string) (*data.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.timeout)
	defer cancel()
	value, err := c.redisClient.Get(ctx, pageKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPageNotCached
		}
		return nil, err
	}
	page := &data.Page{}
	if err := page.UnmarshalBinary(value); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *redisCache) PageWrite(ctx context.Context, key string, page *data.Page) error {
	if page == nil {
		return ErrPageNil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.timeout)
	defer cancel()
	if _, err := c.redisClient.Set(ctx, pageKey(key), page,
		c.config.ttl).Result(); err != nil {
		return err
	}
	return nil
}

func (c *redisCache) PagesDelete(ctx context.Context, keys ...string) error {
	if len(keys) <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.timeout)
	defer cancel()
	redisKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		redisKeys = append(redisKeys, pageKey(key))
	}
	if _, err := c.redisClient.Del(ctx, redisKeys...).Result(); err != nil {
		return err
	}
	return nil
}
