package imagecache

import "errors"

// 错误分类，Lookup 返回的错误均包装其中之一，可用 errors.Is 判断。
var (
	ErrInvalidURL    = errors.New("invalid source url")
	ErrDirectory     = errors.New("cache directory unavailable")
	ErrSerialization = errors.New("cache index unreadable")
	ErrDownload      = errors.New("image download failed")
	ErrDelete        = errors.New("expired image not removed")
)
