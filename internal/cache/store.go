package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<Namespace>/<Name>    # 实际正文
//
// 每个条目仅由正文文件组成，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// EnsureNamespace 创建命名空间目录（幂等），返回其绝对路径。
	EnsureNamespace(ctx context.Context, namespace string) (string, error)

	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Stat 仅返回条目的文件信息，不打开正文。若不存在则返回 ErrNotFound。
	Stat(ctx context.Context, locator Locator) (*Entry, error)

	// Put 将正文写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文文件，文件不存在时视为成功。
	Remove(ctx context.Context, locator Locator) error

	// Path 返回 locator 对应的绝对文件路径，不检查文件是否存在。
	Path(locator Locator) (string, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
	// MaxBytes 大于 0 时限制正文大小，超出返回 ErrTooLarge 且不落盘。
	MaxBytes int64
}

// Locator 唯一定位一个缓存条目（命名空间 + 文件名），文件名不允许包含路径分隔符。
type Locator struct {
	Namespace string
	Name      string
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
}

// ReadResult 组合 Entry 与正文 Reader，便于 HTTP 层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrTooLarge 表示正文超过 PutOptions.MaxBytes。
	ErrTooLarge = errors.New("cache entry exceeds size limit")
	// ErrInvalidLocator 表示命名空间或文件名非法。
	ErrInvalidLocator = errors.New("invalid cache locator")
)
