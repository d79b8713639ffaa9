package server

import (
	"net"
	"net/http"
	"time"

	"github.com/liquor-catalog/imgcache/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置拨号/握手超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewDownloadClient 返回图片下载共用的 http.Client。DownloadTimeout 为 0 时不设整体超时。
func NewDownloadClient(cfg *config.Config) *http.Client {
	var timeout time.Duration
	if cfg != nil && cfg.Global.DownloadTimeout.DurationValue() > 0 {
		timeout = cfg.Global.DownloadTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}
