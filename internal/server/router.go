package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/liquor-catalog/imgcache/internal/cache"
	"github.com/liquor-catalog/imgcache/internal/imagecache"
)

// ImageCache describes the cache operations the HTTP layer depends on. It
// allows injecting fakes during tests; *imagecache.Manager satisfies it.
type ImageCache interface {
	Lookup(ctx context.Context, sourceURL string) (imagecache.Result, error)
	Open(ctx context.Context, digest string) (*cache.ReadResult, error)
	Entries(ctx context.Context) []imagecache.EntryStatus
	Sweep(ctx context.Context) (int, error)
	Retention() time.Duration
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Cache      ImageCache
	ListenPort int
}

const contextKeyRequestID = "_imgcache_request_id"

// NewApp builds a Fiber application with request ID middleware, the resolve
// endpoint and the cached image handler.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("image cache is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	h := &handlers{cache: opts.Cache, logger: opts.Logger}
	app.Get("/-/resolve", h.resolve)
	app.Get("/images/:digest", h.image)

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID，并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// RequestContext 返回请求关联的 context，缺失时回退到 Background。
func RequestContext(c fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
