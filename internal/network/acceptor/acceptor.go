package acceptor

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	network "github.com/lk2023060901/tabletop-garden-go/internal/network"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/router"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// Config 描述 Acceptor 在会话层面的配置。
//
// 说明：
//   - SendQueueSize 控制每个连接的发送缓冲队列大小；
//   - WriteTimeout 控制单帧写出的超时时间（为 0 表示使用默认值）；
//   - Upgrader 允许调用方自定义 gorilla/websocket 的升级行为，
//     若为 nil，则使用内部默认的 Upgrader。
type Config struct {
	SendQueueSize int
	WriteTimeout  time.Duration

	Upgrader *websocket.Upgrader
}

// Disconnector 在会话生命周期结束后执行业务侧清理。
// 典型实现为对局目录：把断开的会话从其关联的对局中移除。
type Disconnector interface {
	Disconnect(sess session.Session)
}

// Acceptor 是服务器侧的 WebSocket 接入层。
//
// 职责：
//   - 作为 http.Handler 处理升级请求，升级前完成握手鉴权；
//   - 为每个通过鉴权的连接创建会话并注册到 SessionManager；
//   - 驱动会话的读循环，把解码出的消息交给 Router 分发；
//   - 连接断开后完成注销与业务侧清理。
type Acceptor struct {
	ctx context.Context

	auth     *Authenticator
	sessions session.SessionManager
	router   router.Router
	codec    wire.Codec
	cleanup  Disconnector

	cfg      Config
	upgrader websocket.Upgrader
}

// 确保 Acceptor 可以直接挂到 http.ServeMux 上。
var _ http.Handler = (*Acceptor)(nil)

// New 创建一个接入器。
//
// 参数：
//   - ctx     ：接入器所属的上层上下文，取消后新会话都挂到已取消的上下文上；
//   - auth    ：握手鉴权器，必须已完成 LoadSecret；
//   - sm      ：会话管理器；
//   - r       ：消息路由；
//   - c       ：该入口使用的帧编解码器；
//   - cleanup ：会话断开后的业务清理，可为 nil。
func New(ctx context.Context, auth *Authenticator, sm session.SessionManager, r router.Router, c wire.Codec, cleanup Disconnector, cfg Config) *Acceptor {
	if ctx == nil {
		ctx = context.Background()
	}

	a := &Acceptor{
		ctx:      ctx,
		auth:     auth,
		sessions: sm,
		router:   r,
		codec:    c,
		cleanup:  cleanup,
		cfg:      cfg,
	}

	if cfg.Upgrader != nil {
		a.upgrader = *cfg.Upgrader
	} else {
		a.upgrader = websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 桌游客户端不是浏览器，不做同源检查。
			CheckOrigin: func(*http.Request) bool { return true },
		}
	}

	return a
}

// ServeHTTP 实现 http.Handler。
//
// 握手失败时直接以 HTTP 状态码拒绝，不进行升级：
//   - 缺少凭据 -> 400；
//   - 密钥不匹配 -> 401。
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, err := a.auth.Authenticate(r)
	if err != nil {
		status := http.StatusUnauthorized
		reason := "invalid_secret"
		if merr.Code(err) == merr.Code(merr.ErrAuthMissingCredentials) {
			status = http.StatusBadRequest
			reason = "missing_credentials"
		}
		metrics.RejectedHandshakes.WithLabelValues(reason).Inc()
		log.RatedInfo(10, "handshake rejected",
			zap.String("remote", r.RemoteAddr),
			zap.String("reason", reason))
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经向客户端写出了错误响应。
		log.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	var opts []session.Option
	if a.cfg.SendQueueSize > 0 {
		opts = append(opts, session.WithSendQueueSize(a.cfg.SendQueueSize))
	}
	if a.cfg.WriteTimeout > 0 {
		opts = append(opts, session.WithWriteTimeout(a.cfg.WriteTimeout))
	}

	sess := session.NewWSSession(a.ctx, a.sessions.NextID(), name, conn, a.codec, opts...)

	// 会话在读取任何帧之前就已注册，保证广播能覆盖刚连上的成员。
	if err := a.sessions.Register(sess); err != nil {
		log.Error("session register failed",
			zap.Uint64("sessionID", sess.ID()),
			zap.Error(err))
		_ = sess.Close()
		return
	}

	metrics.ActiveConnections.Inc()
	log.Info("session connected",
		zap.Uint64("sessionID", sess.ID()),
		zap.String("player", name),
		zap.String("remote", r.RemoteAddr))

	go a.readLoop(sess)
}

// readLoop 驱动单个会话的读循环。
//
// 协议级错误（乱帧、未知 tag）只丢弃当前消息，连接保持可用；
// 传输级错误结束循环，走统一的清理路径。
func (a *Acceptor) readLoop(sess session.Session) {
	defer a.teardown(sess)

	for {
		env, err := sess.Recv()
		if err != nil {
			if merr.Code(err) == merr.Code(merr.ErrProtocolMalformed) {
				a.onError(sess, network.StageDecode, err)
				continue
			}
			return
		}

		if err := a.router.Handle(sess, env); err != nil {
			a.onError(sess, network.StageDispatch, err)
		}
	}
}

func (a *Acceptor) onError(sess session.Session, stage network.Stage, err error) {
	log.RatedWarn(10, "frame dropped",
		zap.Uint64("sessionID", sess.ID()),
		zap.String("player", sess.Name()),
		zap.String("stage", string(stage)),
		zap.Error(err))
}

func (a *Acceptor) teardown(sess session.Session) {
	_ = a.sessions.Unregister(sess.ID())
	if a.cleanup != nil {
		a.cleanup.Disconnect(sess)
	}
	_ = sess.Close()

	metrics.ActiveConnections.Dec()
	log.Info("session disconnected",
		zap.Uint64("sessionID", sess.ID()),
		zap.String("player", sess.Name()))
}
