package apiutil

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const storePrefix = "tokenledger:ratelimit"

// RateLimiter limits requests per client key over a fixed window.
type RateLimiter struct {
	limiter *limiter.Limiter
	logger  *zap.Logger
}

// NewRateLimiter creates a limiter from a formatted rate such as "1200-M".
// An empty rate disables limiting. With a redis client the counters are
// shared by every replica; without one they live in process memory.
func NewRateLimiter(formatted string, rdb *redis.Client, logger *zap.Logger) (*RateLimiter, error) {
	rl := &RateLimiter{logger: logger}
	if formatted == "" {
		return rl, nil
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", formatted, err)
	}

	var store limiter.Store
	if rdb != nil {
		store, err = sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: storePrefix})
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          storePrefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}
	rl.limiter = limiter.New(store, rate)
	return rl, nil
}

// Handler limits by the key keyFn returns, falling back to the client IP
// when keyFn is nil or returns "".
func (rl *RateLimiter) Handler(keyFn func(*gin.Context) string) gin.HandlerFunc {
	if rl.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return ginlimiter.NewMiddleware(rl.limiter,
		ginlimiter.WithKeyGetter(func(c *gin.Context) string {
			if keyFn != nil {
				if key := keyFn(c); key != "" {
					return "user:" + key
				}
			}
			return "ip:" + c.ClientIP()
		}),
		ginlimiter.WithLimitReachedHandler(rl.limitReached),
		ginlimiter.WithErrorHandler(rl.storeFailed),
	)
}

func (rl *RateLimiter) limitReached(c *gin.Context) {
	rl.logger.Warn("Rate limit exceeded",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.Header("Retry-After", retryAfter(c.Writer.Header().Get("X-RateLimit-Reset"), time.Now()))
	errors.HandleError(c, errors.RateLimited.Explain("too many requests"))
}

func (rl *RateLimiter) storeFailed(c *gin.Context, err error) {
	rl.logger.Error("Rate limit store failed", zap.Error(err))
	errors.HandleError(c, errors.Internal.Wrap(err).Explain("rate limiter unavailable"))
}

// retryAfter converts the window reset (unix seconds) into whole seconds to wait.
func retryAfter(reset string, now time.Time) string {
	at, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return "1"
	}
	wait := at - now.Unix()
	if wait < 1 {
		wait = 1
	}
	return strconv.FormatInt(wait, 10)
}
