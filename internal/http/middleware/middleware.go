// Package middleware wires the global Fiber middleware chain: CORS, request
// ids, optional API-key auth and rate limiting, and request logging.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"

	"pdfhub/internal/auth"
	"pdfhub/internal/config"
	"pdfhub/internal/logging"
)

// Options bundles the middleware dependencies.
type Options struct {
	Config config.Config
	Tokens *auth.Store
}

// registrar holds per-app limiter state so two apps never share handlers.
type registrar struct {
	opt   Options
	store fiber.Storage

	limiterMu sync.Mutex
	limiters  map[int]fiber.Handler
}

// Register attaches the global middleware chain to the app.
func Register(app *fiber.App, opt Options) {
	r := &registrar{opt: opt, limiters: make(map[int]fiber.Handler)}
	r.store = r.limiterStorage()

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	if opt.Tokens != nil && opt.Tokens.Enabled() {
		app.Use(r.keyAuth())
		app.Use(r.tokenRateLimit())
	}

	if opt.Config.RateLimiter.EnableUserLimiter || opt.Config.RateLimiter.UserLimit > 0 {
		app.Use(r.userRateLimit())
	}

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}

// limiterStorage prefers Redis so limits hold across instances, falling back
// to in-process memory when Redis is unavailable.
func (r *registrar) limiterStorage() (store fiber.Storage) {
	store = memoryStorage.New()
	if r.opt.Config.Cache.RedisHost == "" {
		return store
	}
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", rec)
			store = memoryStorage.New()
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{r.opt.Config.Cache.RedisHost},
		Database: r.opt.Config.Cache.RateLimitDB,
	})
	logging.Info("Using Redis for rate limiting", "addr", r.opt.Config.Cache.RedisHost, "db", r.opt.Config.Cache.RateLimitDB)
	return store
}

func (r *registrar) keyAuth() fiber.Handler {
	tokens := r.opt.Tokens
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: "api_key",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !tokens.Ready() {
				return false, auth.ErrTokenStoreNotReady
			}
			if !tokens.Validate(key) {
				return false, auth.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if err == auth.ErrTokenStoreNotReady {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    status,
					"message": err.Error(),
				},
			})
		},
	})
}

// tokenRateLimit applies the per-token limit configured in the token store.
func (r *registrar) tokenRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("api_key").(string)
		if !ok || token == "" {
			return c.Next()
		}
		limit := r.opt.Tokens.RateLimit(token)
		if limit == 0 {
			return c.Next()
		}
		return r.limiterFor(limit)(c)
	}
}

// limiterFor returns a cached limiter for the given limit, creating one if
// needed.
func (r *registrar) limiterFor(limit int) fiber.Handler {
	r.limiterMu.Lock()
	defer r.limiterMu.Unlock()

	if h, ok := r.limiters[limit]; ok {
		return h
	}
	h := limiter.New(limiter.Config{
		Max:               limit,
		Expiration:        r.opt.Config.RateLimiter.Interval.Std(),
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           r.store,
		KeyGenerator: func(c *fiber.Ctx) string {
			if token, ok := c.Locals("api_key").(string); ok {
				return token
			}
			return ""
		},
		LimitReached: func(c *fiber.Ctx) error {
			token, _ := c.Locals("api_key").(string)
			logging.Warn("Rate limit exceeded", "token", token, "path", c.Path())
			return tooManyRequests(c)
		},
	})
	r.limiters[limit] = h
	return h
}

// userRateLimit limits unauthenticated requests by client fingerprint.
func (r *registrar) userRateLimit() fiber.Handler {
	if r.opt.Config.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	userLimiter := limiter.New(limiter.Config{
		Max:               r.opt.Config.RateLimiter.UserLimit,
		Expiration:        r.opt.Config.RateLimiter.Interval.Std(),
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           r.store,
		KeyGenerator: func(c *fiber.Ctx) string {
			return clientFingerprint(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "user", clientFingerprint(c), "path", c.Path())
			return tooManyRequests(c)
		},
	})
	return func(c *fiber.Ctx) error {
		// Token-authenticated requests are limited by the token limiter.
		if token, ok := c.Locals("api_key").(string); ok && token != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}

func clientFingerprint(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get("User-Agent")))
	return hex.EncodeToString(sum[:])
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    fiber.StatusTooManyRequests,
			"message": "Too Many Requests",
		},
	})
}
