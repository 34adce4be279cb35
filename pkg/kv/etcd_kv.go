package kv

import (
	"context"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

const (
	// requestTimeout 为单次 etcd 请求的超时时间。
	requestTimeout = 10 * time.Second
)

// EtcdKV 是基于 etcd v3 客户端的 KV 实现。
// 所有 key 都会拼接在 rootPath 之下。
type EtcdKV struct {
	client   *clientv3.Client
	rootPath string
}

// NewEtcdKV 创建 EtcdKV。
// client 的生命周期由调用方管理，Close 时一并关闭。
func NewEtcdKV(client *clientv3.Client, rootPath string) *EtcdKV {
	return &EtcdKV{
		client:   client,
		rootPath: rootPath,
	}
}

func (kv *EtcdKV) joinPath(key string) string {
	return path.Join(kv.rootPath, key)
}

// Load 读取指定 key 的值。
// key 不存在时返回 merr.ErrIoKeyNotFound。
func (kv *EtcdKV) Load(ctx context.Context, key string) (string, error) {
	start := time.Now()
	key = kv.joinPath(key)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := kv.client.Get(ctx, key)
	if err != nil {
		return "", merr.WrapErrIoFailed(key, err)
	}
	if resp.Count <= 0 {
		return "", merr.WrapErrIoKeyNotFound(key)
	}
	log.Debug("EtcdKV load", zap.String("key", key), zap.Duration("cost", time.Since(start)))
	return string(resp.Kvs[0].Value), nil
}

// Save 写入指定 key 的值，key 已存在时覆盖。
func (kv *EtcdKV) Save(ctx context.Context, key string, value string) error {
	key = kv.joinPath(key)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	_, err := kv.client.Put(ctx, key, value)
	if err != nil {
		return merr.WrapErrIoFailed(key, err)
	}
	return nil
}

// Remove 删除指定 key。key 不存在时不报错。
func (kv *EtcdKV) Remove(ctx context.Context, key string) error {
	key = kv.joinPath(key)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	_, err := kv.client.Delete(ctx, key)
	if err != nil {
		return merr.WrapErrIoFailed(key, err)
	}
	return nil
}

// Close 关闭底层 etcd 客户端。
func (kv *EtcdKV) Close() error {
	return kv.client.Close()
}
