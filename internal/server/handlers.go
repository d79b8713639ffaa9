package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/liquor-catalog/imgcache/internal/cache"
	"github.com/liquor-catalog/imgcache/internal/imagecache"
	"github.com/liquor-catalog/imgcache/internal/logging"
)

type handlers struct {
	cache  ImageCache
	logger *logrus.Logger
}

type resolvePayload struct {
	SourceURL string `json:"source_url"`
	Ref       string `json:"ref"`
	Digest    string `json:"digest,omitempty"`
	CacheHit  bool   `json:"cache_hit"`
	Fallback  bool   `json:"fallback"`
	Error     string `json:"error,omitempty"`
}

// resolve 将 ?url= 解析为本地文件引用。缓存失败时仍返回 200，ref 退回原始地址并标记 fallback。
func (h *handlers) resolve(c fiber.Ctx) error {
	started := time.Now()
	sourceURL := strings.TrimSpace(c.Query("url"))
	if sourceURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
	}

	result, err := h.cache.Lookup(RequestContext(c), sourceURL)
	payload := resolvePayload{
		SourceURL: sourceURL,
		Ref:       result.Ref,
		Digest:    result.Digest,
		CacheHit:  result.CacheHit,
	}

	fields := logging.ResolveFields(sourceURL, result.Digest, result.CacheHit)
	fields["request_id"] = RequestID(c)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		payload.Ref = sourceURL
		payload.Fallback = true
		payload.Error = errorCode(err)
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("resolve_fallback")
	} else {
		h.logger.WithFields(fields).Info("resolve_complete")
	}

	c.Set("X-Imgcache-Cache-Hit", boolHeader(payload.CacheHit))
	return c.JSON(payload)
}

// image 按摘要流式返回缓存的图片正文，未缓存或已过期返回 404。
func (h *handlers) image(c fiber.Ctx) error {
	digest := c.Params("digest")
	result, err := h.cache.Open(RequestContext(c), digest)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "image_not_cached"})
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "serve_image",
			"digest":     digest,
			"request_id": RequestID(c),
		}).Error("image_open_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "image_unavailable"})
	}
	defer result.Reader.Close()

	c.Set("Content-Type", sniffContentType(result.Reader))
	c.Set("X-Imgcache-Cache-Hit", "true")
	c.Response().Header.SetContentLength(int(result.Entry.SizeBytes))
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(c.Response().BodyWriter(), result.Reader); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "read cache failed: "+err.Error())
	}
	return nil
}

// sniffContentType 读取前 512 字节推断类型，并将读取位置复原。
func sniffContentType(reader io.ReadSeeker) string {
	buf := make([]byte, 512)
	n, _ := io.ReadFull(reader, buf)
	_, _ = reader.Seek(0, io.SeekStart)
	return http.DetectContentType(buf[:n])
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, imagecache.ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, imagecache.ErrDirectory):
		return "cache_dir_unavailable"
	case errors.Is(err, imagecache.ErrDownload):
		return "download_failed"
	case errors.Is(err, imagecache.ErrSerialization):
		return "index_unavailable"
	default:
		return "cache_failed"
	}
}

func boolHeader(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
