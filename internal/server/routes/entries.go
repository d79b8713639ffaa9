package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/liquor-catalog/imgcache/internal/imagecache"
	"github.com/liquor-catalog/imgcache/internal/server"
)

// RegisterCacheRoutes 暴露 /-/entries 与 /-/sweep 诊断接口，供运维查看与清理缓存索引。
func RegisterCacheRoutes(app *fiber.App, imageCache server.ImageCache, logger *logrus.Logger) {
	if app == nil || imageCache == nil {
		return
	}

	app.Get("/-/entries", func(c fiber.Ctx) error {
		entries := imageCache.Entries(server.RequestContext(c))
		return c.JSON(fiber.Map{
			"retention_seconds": int64(imageCache.Retention() / time.Second),
			"count":             len(entries),
			"entries":           encodeEntries(entries),
		})
	})

	app.Post("/-/sweep", func(c fiber.Ctx) error {
		removed, err := imageCache.Sweep(server.RequestContext(c))
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"action":     "sweep",
					"removed":    removed,
					"request_id": server.RequestID(c),
				}).Warn("sweep_persist_failed")
			}
			// 条目已从内存移除，但索引未能落盘。
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "index_persist_failed",
				"removed": removed,
			})
		}
		return c.JSON(fiber.Map{"removed": removed})
	})
}

type entryPayload struct {
	SourceURL  string    `json:"source_url"`
	Digest     string    `json:"digest"`
	LocalPath  string    `json:"local_path"`
	StoredAt   time.Time `json:"stored_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	AgeSeconds int64     `json:"age_seconds"`
	Expired    bool      `json:"expired"`
}

// encodeEntries 直接使用快照中的 Age，与 Expired 共用缓存管理器的时钟。
func encodeEntries(entries []imagecache.EntryStatus) []entryPayload {
	result := make([]entryPayload, 0, len(entries))
	for _, e := range entries {
		stored := e.StoredTime().UTC()
		age := e.Age
		if age < 0 {
			age = 0
		}
		result = append(result, entryPayload{
			SourceURL:  e.SourceURL,
			Digest:     e.Digest,
			LocalPath:  e.LocalPath,
			StoredAt:   stored,
			ExpiresAt:  e.ExpiresAt.UTC(),
			AgeSeconds: int64(age / time.Second),
			Expired:    e.Expired,
		})
	}
	return result
}
