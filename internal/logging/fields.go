package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResolveFields 提供源地址/摘要/命中状态字段，供图片缓存解析日志复用。
func ResolveFields(sourceURL, digest string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":     "resolve",
		"source_url": sourceURL,
		"digest":     digest,
		"cache_hit":  cacheHit,
	}
}
