package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"168h" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数，HTTP 服务与 CLI 解析模式共享同一份。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// StoragePath 是缓存根目录，图片与索引位于 <StoragePath>/<CacheNamespace>/。
	StoragePath    string `mapstructure:"StoragePath"`
	CacheNamespace string `mapstructure:"CacheNamespace"`
	IndexFile      string `mapstructure:"IndexFile"`
	// Retention 为条目保留时长，超过即在下一次解析时被清理。
	Retention Duration `mapstructure:"Retention"`
	// DownloadTimeout 为 0 表示不设置超时。
	DownloadTimeout Duration `mapstructure:"DownloadTimeout"`
	// MaxImageBytes 为 0 表示不限制单张图片大小。
	MaxImageBytes   int64 `mapstructure:"MaxImageBytes"`
	WarmConcurrency int   `mapstructure:"WarmConcurrency"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// RetentionWindow 返回生效的保留时长。
func (c *Config) RetentionWindow() time.Duration {
	return c.Global.Retention.DurationValue()
}
