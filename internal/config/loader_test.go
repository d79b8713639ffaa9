package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
Retention = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsNumericSeconds(t *testing.T) {
	cfg := `
StoragePath = "./data"
Retention = 3600
DownloadTimeout = 15
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if got := loaded.RetentionWindow().Seconds(); got != 3600 {
		t.Fatalf("Retention 应解析为 3600 秒，得到 %v", got)
	}
	if got := loaded.Global.DownloadTimeout.DurationValue().Seconds(); got != 15 {
		t.Fatalf("DownloadTimeout 应解析为 15 秒，得到 %v", got)
	}
}
