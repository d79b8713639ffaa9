package cache

import "time"

// DefaultRetention 是图片缓存的默认保留时长（7 天）。
const DefaultRetention = 7 * 24 * time.Hour

// RetentionPolicy 根据写入时间判断缓存条目是否过期，时钟可在测试中替换。
type RetentionPolicy struct {
	window time.Duration
	now    func() time.Time
}

// NewRetentionPolicy 构造保留策略，window 非正数时回退为 DefaultRetention。
func NewRetentionPolicy(window time.Duration, now func() time.Time) RetentionPolicy {
	if window <= 0 {
		window = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return RetentionPolicy{window: window, now: now}
}

// Window 返回生效的保留时长。
func (p RetentionPolicy) Window() time.Duration {
	return p.window
}

// Now 返回策略使用的当前时间。
func (p RetentionPolicy) Now() time.Time {
	return p.now()
}

// Expired 判断 storedAt 距今是否已超过保留时长；恰好等于窗口时仍视为有效。
func (p RetentionPolicy) Expired(storedAt time.Time) bool {
	return p.now().Sub(storedAt) > p.window
}

// ExpiresAt 返回 storedAt 对应的过期时刻。
func (p RetentionPolicy) ExpiresAt(storedAt time.Time) time.Time {
	return storedAt.Add(p.window)
}
