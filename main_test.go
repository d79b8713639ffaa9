package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("IMGCACHE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsDefaultsAndURLs(t *testing.T) {
	t.Setenv("IMGCACHE_CONFIG", "")

	opts, err := parseCLIFlags([]string{"https://img.example/a.jpg", "https://img.example/b.jpg"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" {
		t.Fatalf("默认配置路径应为 config.toml，得到 %s", opts.configPath)
	}
	if len(opts.urls) != 2 || opts.urls[1] != "https://img.example/b.jpg" {
		t.Fatalf("位置参数应作为待解析地址，得到 %v", opts.urls)
	}
}

func TestParseCLIFlagsUnknownFlag(t *testing.T) {
	if _, err := parseCLIFlags([]string{"--bogus"}); err == nil {
		t.Fatalf("未知参数应返回错误")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("应输出配置错误，得到 %s", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "imgcache") {
		t.Fatalf("version 输出应包含 imgcache 标识")
	}
}

func TestRunResolveURLsKeepsInputOrder(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte("jpeg:" + r.URL.Path))
	}))
	defer upstream.Close()

	storage := filepath.Join(t.TempDir(), "storage")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
StoragePath = "%s"
ListenPort = 5000
WarmConcurrency = 2
`, storage))

	urls := []string{
		upstream.URL + "/hibiki.jpg",
		upstream.URL + "/gone.jpg",
		"not a url",
		upstream.URL + "/hakushu.jpg",
	}

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, urls: urls}); code != 0 {
		t.Fatalf("解析模式应成功退出，得到 %d: %s", code, stdErrBuffer().String())
	}

	lines := strings.Split(strings.TrimSpace(stdOutBuffer().String()), "\n")
	if len(lines) != len(urls) {
		t.Fatalf("期望 %d 行输出，得到 %d: %q", len(urls), len(lines), lines)
	}
	for i, line := range lines {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 || parts[0] != urls[i] {
			t.Fatalf("第 %d 行顺序错误: %q", i, line)
		}
	}

	for _, i := range []int{0, 3} {
		ref := strings.SplitN(lines[i], "\t", 2)[1]
		if !strings.HasPrefix(ref, "file://") {
			t.Fatalf("成功下载应返回本地引用，得到 %s", ref)
		}
		if _, err := os.Stat(strings.TrimPrefix(ref, "file://")); err != nil {
			t.Fatalf("本地文件应存在: %v", err)
		}
	}
	for _, i := range []int{1, 2} {
		if ref := strings.SplitN(lines[i], "\t", 2)[1]; ref != urls[i] {
			t.Fatalf("失败时应回退到源地址，得到 %s", ref)
		}
	}
	if hits.Load() != 2 {
		t.Fatalf("期望 2 次上游下载，得到 %d", hits.Load())
	}
	if _, err := os.Stat(filepath.Join(storage, "images", "metadata.json")); err != nil {
		t.Fatalf("索引文件应已写入: %v", err)
	}
}
