package kv

import "context"

// KV 是最小化的键值存储接口，
// 用于存取握手密钥等少量运行时配置数据。
type KV interface {
	// Load 读取指定 key 的值。
	// key 不存在时返回 merr.ErrIoKeyNotFound。
	Load(ctx context.Context, key string) (string, error)
	// Save 写入指定 key 的值，key 已存在时覆盖。
	Save(ctx context.Context, key string, value string) error
	// Remove 删除指定 key。key 不存在时不报错。
	Remove(ctx context.Context, key string) error
	// Close 释放底层资源。
	Close() error
}
