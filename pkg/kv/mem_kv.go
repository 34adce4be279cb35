package kv

import (
	"context"
	"sync"

	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// MemoryKV 是基于内存 map 的 KV 实现，主要用于测试和单机部署。
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		items: make(map[string]string),
	}
}

func (kv *MemoryKV) Load(_ context.Context, key string) (string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	value, ok := kv.items[key]
	if !ok {
		return "", merr.WrapErrIoKeyNotFound(key)
	}
	return value, nil
}

func (kv *MemoryKV) Save(_ context.Context, key string, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.items[key] = value
	return nil
}

func (kv *MemoryKV) Remove(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.items, key)
	return nil
}

func (kv *MemoryKV) Close() error {
	return nil
}
