package room

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/acceptor"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

const (
	// joinPrefix 为房间选择控制帧的前缀。
	// 升级完成后的第一帧必须是 "JOIN_ROOM:<roomId>"，在常规分发开始前消费。
	joinPrefix = "JOIN_ROOM:"

	// joinTimeout 为等待房间选择控制帧的超时时间。
	joinTimeout = 10 * time.Second
)

// Channel 是房间入口的 WebSocket 处理器，使用带判别字段的帧格式。
//
// 与对局入口的差异：
//   - 升级完成后的第一帧是房间选择控制帧，而不是业务消息；
//   - 后续消息不经过静态路由表，而是携带所属房间显式分发给业务实例。
type Channel struct {
	ctx context.Context

	auth     *acceptor.Authenticator
	sessions session.SessionManager
	manager  *Manager
	codec    wire.TypedCodec

	upgrader websocket.Upgrader
}

var _ http.Handler = (*Channel)(nil)

func NewChannel(ctx context.Context, auth *acceptor.Authenticator, sm session.SessionManager, manager *Manager) *Channel {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Channel{
		ctx:      ctx,
		auth:     auth,
		sessions: sm,
		manager:  manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP 实现 http.Handler。
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, err := c.auth.Authenticate(r)
	if err != nil {
		status := http.StatusUnauthorized
		reason := "invalid_secret"
		if merr.Code(err) == merr.Code(merr.ErrAuthMissingCredentials) {
			status = http.StatusBadRequest
			reason = "missing_credentials"
		}
		metrics.RejectedHandshakes.WithLabelValues(reason).Inc()
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	roomID, err := c.readJoinFrame(conn)
	if err != nil {
		c.rejectConn(conn, err)
		return
	}

	// 控制帧消费完成后才创建会话；房间存在性先行检查，
	// 保证拒绝路径上错误帧一定先于关闭写出。
	if _, ok := c.manager.Get(roomID); !ok {
		c.rejectConn(conn, merr.WrapErrRoomNotFound(roomID))
		return
	}

	sess := session.NewWSSession(c.ctx, c.sessions.NextID(), name, conn, c.codec)
	if err := c.sessions.Register(sess); err != nil {
		log.Error("session register failed",
			zap.Uint64("sessionID", sess.ID()),
			zap.Error(err))
		_ = sess.Close()
		return
	}
	metrics.ActiveConnections.Inc()

	joined, err := c.manager.Join(sess, roomID)
	if err != nil {
		// 房间在检查与加入之间被关闭。
		_ = sess.Send(wire.TagError, &wire.ErrorNotification{Message: err.Error()})
		c.teardown(sess)
		return
	}

	log.Info("session connected to room",
		zap.Uint64("sessionID", sess.ID()),
		zap.String("player", name),
		zap.String("room", roomID))

	go c.readLoop(sess, joined)
}

// readJoinFrame 读取并解析房间选择控制帧。
func (c *Channel) readJoinFrame(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(joinTimeout)); err != nil {
		return "", err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	messageType, frame, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if messageType != websocket.TextMessage {
		return "", merr.WrapErrProtocolMalformed("join frame must be a text frame")
	}

	roomID, ok := strings.CutPrefix(string(frame), joinPrefix)
	if !ok || roomID == "" {
		return "", merr.WrapErrProtocolMalformed("expected %s<roomId> as first frame", joinPrefix)
	}
	return roomID, nil
}

// rejectConn 向对端写出错误帧后关闭连接。
func (c *Channel) rejectConn(conn *websocket.Conn, cause error) {
	frame, err := c.codec.Encode(&wire.Envelope{
		Tag:     wire.TagError,
		Payload: mustMarshal(&wire.ErrorNotification{Message: cause.Error()}),
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.Close()

	log.Info("room connection rejected", zap.Error(cause))
}

func mustMarshal(msg any) json.RawMessage {
	payload, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return payload
}

// readLoop 驱动单个房间会话的读循环。
func (c *Channel) readLoop(sess session.Session, r *Room) {
	defer c.teardown(sess)

	for {
		env, err := sess.Recv()
		if err != nil {
			if merr.Code(err) == merr.Code(merr.ErrProtocolMalformed) {
				c.onError(sess, network.StageDecode, err)
				continue
			}
			return
		}

		if err := r.Dispatch(sess, env); err != nil {
			c.onError(sess, network.StageDispatch, err)
		}
	}
}

func (c *Channel) onError(sess session.Session, stage network.Stage, err error) {
	log.RatedWarn(10, "room frame dropped",
		zap.Uint64("sessionID", sess.ID()),
		zap.String("player", sess.Name()),
		zap.String("stage", string(stage)),
		zap.Error(err))
}

func (c *Channel) teardown(sess session.Session) {
	_ = c.sessions.Unregister(sess.ID())
	c.manager.Disconnect(sess)
	_ = sess.Close()

	metrics.ActiveConnections.Dec()
	log.Info("room session disconnected",
		zap.Uint64("sessionID", sess.ID()),
		zap.String("player", sess.Name()))
}
