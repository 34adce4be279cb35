package acceptor

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/pkg/kv"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/retry"
)

const (
	// HeaderNetworkSecret 为握手请求携带共享密钥的头部字段。
	HeaderNetworkSecret = "NetworkSecret"

	// HeaderPlayerName 为握手请求携带玩家名的头部字段。
	HeaderPlayerName = "PlayerName"

	// SecretKey 为共享密钥在 KV 存储中的键名。
	SecretKey = "network/secret"
)

// Authenticator 负责 WebSocket 升级前的握手鉴权。
//
// 共享密钥在启动阶段从 KV 存储加载一次并缓存；密钥缺失视为部署
// 配置错误，服务不应继续启动。
type Authenticator struct {
	store kv.KV

	secret string
}

func NewAuthenticator(store kv.KV) *Authenticator {
	return &Authenticator{store: store}
}

// LoadSecret 从 KV 存储加载共享密钥。
//
// 行为：
//   - 存储暂时不可用时按退避重试；
//   - 键不存在时立即失败，不做重试：这是配置错误而不是瞬时故障。
func (a *Authenticator) LoadSecret(ctx context.Context) error {
	err := retry.Do(ctx, func() error {
		secret, err := a.store.Load(ctx, SecretKey)
		if err != nil {
			if merr.Code(err) == merr.Code(merr.ErrIoKeyNotFound) {
				return retry.Unrecoverable(merr.WrapErrAuthSecretNotConfigured(SecretKey))
			}
			return err
		}
		a.secret = secret
		return nil
	}, retry.Attempts(5), retry.Sleep(200*time.Millisecond))
	if err != nil {
		return err
	}

	log.Info("handshake secret loaded", zap.String("key", SecretKey))
	return nil
}

// Authenticate 校验一次握手请求。
//
// 返回：
//   - name：通过校验的玩家名；
//   - err ：ErrAuthMissingCredentials（缺少头部字段或玩家名为空）
//           或 ErrAuthInvalidSecret（密钥不匹配）。
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	secret := r.Header.Get(HeaderNetworkSecret)
	name := r.Header.Get(HeaderPlayerName)

	if secret == "" || name == "" {
		return "", merr.WrapErrAuthMissingCredentials()
	}

	if subtle.ConstantTimeCompare([]byte(secret), []byte(a.secret)) != 1 {
		return "", merr.WrapErrAuthInvalidSecret(name)
	}

	return name, nil
}
