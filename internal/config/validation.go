package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别: "+g.LogLevel)
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if err := validateFileName(g.CacheNamespace); err != nil {
		return newFieldError("Global.CacheNamespace", err.Error())
	}
	if err := validateFileName(g.IndexFile); err != nil {
		return newFieldError("Global.IndexFile", err.Error())
	}
	if g.Retention.DurationValue() <= 0 {
		return newFieldError("Global.Retention", "必须大于 0")
	}
	if g.DownloadTimeout.DurationValue() < 0 {
		return newFieldError("Global.DownloadTimeout", "不能为负数")
	}
	if g.MaxImageBytes < 0 {
		return newFieldError("Global.MaxImageBytes", "不能为负数")
	}
	if g.WarmConcurrency < 1 {
		return newFieldError("Global.WarmConcurrency", "至少为 1")
	}
	return nil
}

// validateFileName 要求值为单层文件名，避免索引或命名空间逃逸出缓存根目录。
func validateFileName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("不能为空")
	}
	if trimmed == "." || trimmed == ".." || strings.ContainsAny(trimmed, `/\`) {
		return errors.New("不允许包含路径")
	}
	return nil
}
