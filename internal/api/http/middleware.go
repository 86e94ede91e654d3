package http

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/domain"
	"github.com/mernacademy/student-auth/internal/observability"
	"github.com/mernacademy/student-auth/internal/ratelimit"
	apperrors "github.com/mernacademy/student-auth/pkg/util/errorutil"
)

// RateLimiter is the subset of ratelimit.Limiter used by the HTTP layer.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

// LoginLimiter is the subset of ratelimit.Limiter used for login lockout.
type LoginLimiter interface {
	Check(ctx context.Context, key string) (ratelimit.Result, error)
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
	Reset(ctx context.Context, key string) error
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				err = writeError(c, err, logger, metrics)
			}
		}()
		return c.Next()
	}
}

// ErrorHandler is installed as fiber's fallback for errors raised outside
// the middleware chain.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return writeError(c, err, logger, nil)
	}
}

func writeError(c *fiber.Ctx, err error, logger *zap.Logger, metrics *observability.Metrics) error {
	domainErr := apperrors.ToDomainError(err)
	if metrics != nil {
		metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
	}
	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	if domainErr.HTTPStatus >= 500 {
		logger.Error("request failed",
			zap.String("code", domainErr.Code),
			zap.String("path", c.Path()),
			zap.Error(domainErr))
	}
	return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
}

// RateLimitMiddleware throttles requests per client IP. When the counter
// store is unreachable requests are let through.
func RateLimitMiddleware(limiter RateLimiter, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := limiter.Allow(c.UserContext(), "ip:"+c.IP())
		switch {
		case errors.Is(err, ratelimit.ErrRateLimited):
			setRateHeaders(c, res)
			if res.ResetIn > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(res.ResetIn.Seconds())))
			}
			return apperrors.NewRateLimited()
		case err != nil:
			logger.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		setRateHeaders(c, res)
		return c.Next()
	}
}

func setRateHeaders(c *fiber.Ctx, res ratelimit.Result) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
}

// LoginThrottleMiddleware counts wrong-password logins per identity and
// rejects further attempts once the budget is spent. A successful login
// clears the count.
func LoginThrottleMiddleware(limiter LoginLimiter, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Email string `json:"email"`
		}
		if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Email) == "" {
			return c.Next()
		}
		key := "login:" + domain.NormalizeEmail(req.Email)
		ctx := c.UserContext()

		res, err := limiter.Check(ctx, key)
		switch {
		case errors.Is(err, ratelimit.ErrRateLimited):
			if res.ResetIn > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(res.ResetIn.Seconds())))
			}
			return apperrors.NewRateLimited()
		case err != nil:
			logger.Warn("login throttle unavailable", zap.Error(err))
			return c.Next()
		}

		err = c.Next()
		switch {
		case apperrors.HasCode(err, apperrors.CodeInvalidCredentials):
			if _, lerr := limiter.Allow(ctx, key); lerr != nil && !errors.Is(lerr, ratelimit.ErrRateLimited) {
				logger.Warn("record failed login", zap.Error(lerr))
			}
		case err == nil:
			if rerr := limiter.Reset(ctx, key); rerr != nil {
				logger.Warn("reset login throttle", zap.Error(rerr))
			}
		}
		return err
	}
}
