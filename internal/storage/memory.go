package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProvider 进程内存储，用于本地开发和测试
type MemoryProvider struct {
	bucket string
	now    func() time.Time

	mu         sync.RWMutex
	objects    map[string]int64
	headErr    error
	presignErr error
}

func NewMemoryProvider(bucket string) *MemoryProvider {
	return &MemoryProvider{
		bucket:  bucket,
		now:     time.Now,
		objects: make(map[string]int64),
	}
}

// SetClock 替换时间来源
func (p *MemoryProvider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Put 登记一个对象
func (p *MemoryProvider) Put(key string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[key] = size
}

// Remove 删除对象，模拟目录与存储不一致
func (p *MemoryProvider) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, key)
}

// FailWith 让后续调用返回指定错误，nil 表示恢复
func (p *MemoryProvider) FailWith(headErr, presignErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headErr = headErr
	p.presignErr = presignErr
}

func (p *MemoryProvider) HeadObject(_ context.Context, key string) (ObjectInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.headErr != nil {
		return ObjectInfo{}, p.headErr
	}
	size, ok := p.objects[key]
	if !ok {
		return ObjectInfo{Exists: false}, nil
	}
	return ObjectInfo{Exists: true, SizeBytes: size}, nil
}

func (p *MemoryProvider) PresignDownload(_ context.Context, key string, ttl time.Duration) (PresignedURL, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.presignErr != nil {
		return PresignedURL{}, p.presignErr
	}
	expiresAt := p.now().Add(ttl)
	q := url.Values{}
	q.Set("expires", fmt.Sprint(expiresAt.UnixMilli()))
	q.Set("signature", uuid.NewString())
	u := url.URL{Scheme: "memory", Host: p.bucket, Path: "/" + key, RawQuery: q.Encode()}
	return PresignedURL{URL: u.String(), ExpiresAt: expiresAt}, nil
}
