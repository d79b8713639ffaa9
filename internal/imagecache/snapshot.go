package imagecache

import (
	"context"
	"time"

	"github.com/liquor-catalog/imgcache/internal/cache"
)

// EntryStatus 是索引条目的只读视图，附带摘要与过期信息，供诊断接口输出。
// Age 与 Expired 基于同一时刻计算。
type EntryStatus struct {
	Entry
	Digest    string
	Age       time.Duration
	ExpiresAt time.Time
	Expired   bool
}

// Entries 返回索引快照（按源地址排序），不会触发清理。
func (m *Manager) Entries(ctx context.Context) []EntryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.loadIndexLocked(ctx)
	now := m.policy.Now()
	result := make([]EntryStatus, 0, len(idx))
	for _, sourceURL := range idx.sortedURLs() {
		entry := idx[sourceURL]
		stored := entry.StoredTime()
		age := now.Sub(stored)
		result = append(result, EntryStatus{
			Entry:     entry,
			Digest:    Digest(sourceURL),
			Age:       age,
			ExpiresAt: m.policy.ExpiresAt(stored),
			Expired:   age > m.policy.Window(),
		})
	}
	return result
}

// Open 按摘要读取仍在保留期内的缓存图片；未登记、已过期或文件缺失时返回 cache.ErrNotFound。
// 调用方负责关闭 Reader。
func (m *Manager) Open(ctx context.Context, digest string) (*cache.ReadResult, error) {
	if !IsDigest(digest) {
		return nil, cache.ErrNotFound
	}

	m.mu.Lock()
	idx := m.loadIndexLocked(ctx)
	live := false
	if sourceURL, ok := m.digests[digest]; ok {
		live = !m.policy.Expired(idx[sourceURL].StoredTime())
	}
	m.mu.Unlock()

	if !live {
		return nil, cache.ErrNotFound
	}
	return m.store.Get(ctx, m.imageLocator(digest))
}
