package imagecache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liquor-catalog/imgcache/internal/cache"
)

// Entry 记录一次成功下载：源地址、落盘路径与写入时间（毫秒时间戳）。
type Entry struct {
	SourceURL string `json:"-"`
	LocalPath string `json:"filePath"`
	StoredAt  int64  `json:"timestamp"`
}

// StoredTime 将毫秒时间戳转换为 time.Time。
func (e Entry) StoredTime() time.Time {
	return time.UnixMilli(e.StoredAt)
}

// Index 以源地址为键，每个地址至多对应一个条目；刷新时覆盖而非追加。
type Index map[string]Entry

// sortedURLs 返回按字典序排列的键，保证快照与清理顺序稳定。
func (idx Index) sortedURLs() []string {
	urls := make([]string, 0, len(idx))
	for u := range idx {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

func decodeIndex(r io.Reader) (Index, error) {
	var raw map[string]Entry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	idx := make(Index, len(raw))
	for sourceURL, entry := range raw {
		entry.SourceURL = sourceURL
		idx[sourceURL] = entry
	}
	return idx, nil
}

func encodeIndex(idx Index) ([]byte, error) {
	return json.Marshal(map[string]Entry(idx))
}

func (m *Manager) indexLocator() cache.Locator {
	return cache.Locator{Namespace: m.namespace, Name: m.indexFile}
}

// loadIndexLocked 首次访问时从磁盘读取索引；文件缺失视为空索引，损坏时记录告警后同样回退为空。
// 调用方必须持有 m.mu。
func (m *Manager) loadIndexLocked(ctx context.Context) Index {
	if m.index != nil {
		return m.index
	}

	idx, err := m.readIndex(ctx)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"action": "index_load",
			"index":  m.indexFile,
		}).Warn("cache_index_reset")
		idx = Index{}
	}
	m.index = idx
	m.digests = make(map[string]string, len(idx))
	for sourceURL := range idx {
		m.digests[Digest(sourceURL)] = sourceURL
	}
	return m.index
}

func (m *Manager) readIndex(ctx context.Context) (Index, error) {
	result, err := m.store.Get(ctx, m.indexLocator())
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return Index{}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	defer result.Reader.Close()

	idx, err := decodeIndex(result.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return idx, nil
}

// saveIndexLocked 将内存索引整体写回磁盘（临时文件 + rename）。失败时记录告警并返回包装后的错误。
// 调用方必须持有 m.mu。
func (m *Manager) saveIndexLocked(ctx context.Context) error {
	payload, err := encodeIndex(m.index)
	if err == nil {
		_, err = m.store.Put(ctx, m.indexLocator(), bytes.NewReader(payload), cache.PutOptions{})
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSerialization, err)
		m.logger.WithError(err).WithFields(logrus.Fields{
			"action":  "index_save",
			"index":   m.indexFile,
			"entries": len(m.index),
		}).Warn("cache_index_save_failed")
		return err
	}
	return nil
}
