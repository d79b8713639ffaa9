package imagecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/liquor-catalog/imgcache/internal/cache"
	"github.com/liquor-catalog/imgcache/internal/logging"
)

const (
	defaultNamespace = "images"
	defaultIndexFile = "metadata.json"
)

// Options 汇总 Manager 的依赖，Store 与 Logger 必填，其余字段有默认值。
type Options struct {
	Store  cache.Store
	Client *http.Client
	Logger *logrus.Logger

	Namespace string
	IndexFile string
	Retention time.Duration
	// MaxBytes 大于 0 时拒绝超出大小的图片。
	MaxBytes int64
	// Now 默认 time.Now，测试可注入固定时钟。
	Now func() time.Time
}

// Result 描述一次成功解析。Ref 为 file:// 形式的本地引用。
type Result struct {
	SourceURL string
	Ref       string
	LocalPath string
	Digest    string
	CacheHit  bool
	StoredAt  time.Time
}

// Manager 负责 “清理过期 → 查索引 → 命中返回 / 未命中下载并登记” 的全流程。
// 索引的读改写全部经过 mu 串行化；同一 URL 的并发未命中由 flight 合并为一次下载。
type Manager struct {
	store     cache.Store
	client    *http.Client
	logger    *logrus.Logger
	namespace string
	indexFile string
	maxBytes  int64
	policy    cache.RetentionPolicy

	mu    sync.Mutex
	index Index
	// digests 是 index 的反向映射（摘要 → 源地址），随 index 一起维护。
	digests map[string]string
	flight  singleflight.Group
}

// New 构造 Manager。索引延迟到首次访问时加载。
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	indexFile := opts.IndexFile
	if indexFile == "" {
		indexFile = defaultIndexFile
	}
	if IsDigest(indexFile) {
		return nil, fmt.Errorf("index file %q collides with image names", indexFile)
	}

	return &Manager{
		store:     opts.Store,
		client:    client,
		logger:    opts.Logger,
		namespace: namespace,
		indexFile: indexFile,
		maxBytes:  opts.MaxBytes,
		policy:    cache.NewRetentionPolicy(opts.Retention, opts.Now),
	}, nil
}

// Retention 返回生效的保留时长。
func (m *Manager) Retention() time.Duration {
	return m.policy.Window()
}

// Resolve 返回 sourceURL 对应的本地文件引用；任何失败都会记录告警并原样返回 sourceURL。
func (m *Manager) Resolve(ctx context.Context, sourceURL string) string {
	result, err := m.Lookup(ctx, sourceURL)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "resolve",
			"source_url": sourceURL,
		}).Warn("image_cache_fallback")
		return sourceURL
	}
	return result.Ref
}

// Lookup 与 Resolve 流程一致，但把失败以包装后的错误返回给调用方。
func (m *Manager) Lookup(ctx context.Context, sourceURL string) (Result, error) {
	started := time.Now()
	if err := validateSourceURL(sourceURL); err != nil {
		return Result{}, err
	}
	if _, err := m.store.EnsureNamespace(ctx, m.namespace); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"action":    "ensure_dir",
			"namespace": m.namespace,
		}).Warn("cache_dir_unavailable")
		return Result{}, fmt.Errorf("%w: %w", ErrDirectory, err)
	}

	digest := Digest(sourceURL)
	result, ok := m.sweepAndLookup(ctx, sourceURL, digest)
	if !ok {
		value, err, _ := m.flight.Do(digest, func() (interface{}, error) {
			// 等待期间其它调用者可能已完成下载，先复查一次索引。
			if live, ok := m.liveResult(ctx, sourceURL, digest); ok {
				return live, nil
			}
			// 下载由所有等待者共享，一旦发起就不随任何一个调用者取消。
			return m.download(context.WithoutCancel(ctx), sourceURL, digest)
		})
		if err != nil {
			return Result{}, err
		}
		result = value.(Result)
	}

	fields := logging.ResolveFields(sourceURL, digest, result.CacheHit)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	m.logger.WithFields(fields).Debug("resolve_complete")
	return result, nil
}

// Sweep 删除所有过期条目及其文件，返回移除的条目数；有变更时立即持久化索引。
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadIndexLocked(ctx)
	removed := m.sweepLocked(ctx)
	if removed == 0 {
		return 0, nil
	}
	return removed, m.saveIndexLocked(ctx)
}

// sweepAndLookup 在一次加锁内完成过期清理与命中判断。命中要求条目未过期且文件仍在磁盘上。
func (m *Manager) sweepAndLookup(ctx context.Context, sourceURL, digest string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadIndexLocked(ctx)
	// 过期的目标条目在清理阶段已被移除，这里只需区分命中与文件缺失。
	if m.sweepLocked(ctx) > 0 {
		m.saveIndexLocked(ctx)
	}
	return m.liveResultLocked(ctx, sourceURL, digest)
}

func (m *Manager) liveResult(ctx context.Context, sourceURL, digest string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadIndexLocked(ctx)
	return m.liveResultLocked(ctx, sourceURL, digest)
}

func (m *Manager) liveResultLocked(ctx context.Context, sourceURL, digest string) (Result, bool) {
	entry, ok := m.index[sourceURL]
	if !ok || m.policy.Expired(entry.StoredTime()) {
		return Result{}, false
	}
	stat, err := m.store.Stat(ctx, m.imageLocator(digest))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			// 文件已丢失：立即移除条目，避免随后的清理按旧时间戳删掉重新下载的文件。
			m.deleteEntryLocked(sourceURL)
			m.saveIndexLocked(ctx)
		} else {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"action":     "stat",
				"source_url": sourceURL,
			}).Warn("cache_stat_failed")
		}
		return Result{}, false
	}
	return Result{
		SourceURL: sourceURL,
		Ref:       fileRef(stat.FilePath),
		LocalPath: stat.FilePath,
		Digest:    digest,
		CacheHit:  true,
		StoredAt:  entry.StoredTime(),
	}, true
}

// sweepLocked 移除所有过期条目。文件删除失败只记录告警，条目仍然移除。调用方必须持有 m.mu。
func (m *Manager) sweepLocked(ctx context.Context) int {
	removed := 0
	for _, sourceURL := range m.index.sortedURLs() {
		entry := m.index[sourceURL]
		if !m.policy.Expired(entry.StoredTime()) {
			continue
		}
		m.removeLocked(ctx, entry)
		removed++
	}
	return removed
}

func (m *Manager) removeLocked(ctx context.Context, entry Entry) {
	locator := m.imageLocator(Digest(entry.SourceURL))
	if err := m.store.Remove(ctx, locator); err != nil {
		m.logger.WithError(fmt.Errorf("%w: %w", ErrDelete, err)).WithFields(logrus.Fields{
			"action":     "sweep_delete",
			"source_url": entry.SourceURL,
			"file_path":  entry.LocalPath,
		}).Warn("cache_delete_failed")
	}
	m.deleteEntryLocked(entry.SourceURL)
}

// putEntryLocked 与 deleteEntryLocked 同步维护 index 与 digests。调用方必须持有 m.mu。
func (m *Manager) putEntryLocked(entry Entry) {
	m.index[entry.SourceURL] = entry
	m.digests[Digest(entry.SourceURL)] = entry.SourceURL
}

func (m *Manager) deleteEntryLocked(sourceURL string) {
	delete(m.index, sourceURL)
	delete(m.digests, Digest(sourceURL))
}

// download 拉取图片写入磁盘，成功后再登记索引，保证失败时不会留下指向半成品的条目。
func (m *Manager) download(ctx context.Context, sourceURL, digest string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("%w: upstream status %d", ErrDownload, resp.StatusCode)
	}

	now := m.policy.Now()
	stored, err := m.store.Put(ctx, m.imageLocator(digest), resp.Body, cache.PutOptions{
		ModTime:  now,
		MaxBytes: m.maxBytes,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	m.mu.Lock()
	m.loadIndexLocked(ctx)
	m.putEntryLocked(Entry{
		SourceURL: sourceURL,
		LocalPath: stored.FilePath,
		StoredAt:  now.UnixMilli(),
	})
	m.saveIndexLocked(ctx)
	m.mu.Unlock()

	return Result{
		SourceURL: sourceURL,
		Ref:       fileRef(stored.FilePath),
		LocalPath: stored.FilePath,
		Digest:    digest,
		CacheHit:  false,
		StoredAt:  time.UnixMilli(now.UnixMilli()),
	}, nil
}

func (m *Manager) imageLocator(digest string) cache.Locator {
	return cache.Locator{Namespace: m.namespace, Name: digest}
}

func fileRef(path string) string {
	return "file://" + path
}
