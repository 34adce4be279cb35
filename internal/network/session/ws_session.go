package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

const (
	// defaultSendQueueSize 为每个会话的发送队列容量。
	defaultSendQueueSize = 256

	// defaultWriteTimeout 为单帧写出的最长等待时间。
	// 超时视为对端不可用，会话将被关闭。
	defaultWriteTimeout = 10 * time.Second
)

// WSSession 是基于 gorilla/websocket 的 Session 实现。
//
// 设计目标：
//   - 所有写操作都收敛到专职发送协程，避免多协程并发写 conn；
//   - 发送队列有界：慢消费者不能反压广播方，队列满即判定会话不可用；
//   - 会话关闭幂等，且总是同时取消上下文并关闭底层连接。
type WSSession struct {
	id   uint64
	name string

	ctx    context.Context
	cancel context.CancelFunc

	conn  *websocket.Conn
	codec wire.Codec

	remoteAddr net.Addr

	// sendQueue 为待发送消息的队列。
	//   - Send 仅负责将编码好的帧投递到该队列；
	//   - 独立的发送协程从队列中取出帧并写到底层连接。
	sendQueue chan []byte

	writeTimeout time.Duration

	closeOnce sync.Once
}

// 确保 WSSession 实现了 Session 接口。
var _ Session = (*WSSession)(nil)

// Option 用于调整 WSSession 的行为。
type Option func(*WSSession)

// WithSendQueueSize 设置发送队列容量。
func WithSendQueueSize(size int) Option {
	return func(s *WSSession) {
		if size > 0 {
			s.sendQueue = make(chan []byte, size)
		}
	}
}

// WithWriteTimeout 设置单帧写出的超时时间。
func WithWriteTimeout(d time.Duration) Option {
	return func(s *WSSession) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// NewWSSession 创建一个基于已升级 WebSocket 连接的会话。
//
// 参数：
//   - parent：会话所属的上层上下文；若为 nil，则使用 context.Background()；
//   - id    ：会话 ID，应在调用侧保证全局唯一；
//   - name  ：握手阶段确定的玩家名；
//   - conn  ：已完成升级的 WebSocket 连接；
//   - c     ：用于该连接的帧编解码器。
func NewWSSession(parent context.Context, id uint64, name string, conn *websocket.Conn, c wire.Codec, opts ...Option) *WSSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &WSSession{
		id:           id,
		name:         name,
		ctx:          ctx,
		cancel:       cancel,
		conn:         conn,
		codec:        c,
		remoteAddr:   conn.RemoteAddr(),
		sendQueue:    make(chan []byte, defaultSendQueueSize),
		writeTimeout: defaultWriteTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.sendLoop()

	return s
}

// ID 实现 Session.ID。
func (s *WSSession) ID() uint64 {
	return s.id
}

// Name 实现 Session.Name。
func (s *WSSession) Name() string {
	return s.name
}

// Context 实现 Session.Context。
func (s *WSSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *WSSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// Send 实现 Session.Send。
//
// 编码在调用方协程完成，发送协程只负责写帧。投递失败（队列满或会话
// 已关闭）时会触发会话关闭：调用方不需要针对单条消息做重试，该会话
// 后续会经由读协程的退出路径完成清理。
func (s *WSSession) Send(tag string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	frame, err := s.codec.Encode(&wire.Envelope{
		Tag:     tag,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	select {
	case <-s.ctx.Done():
		return merr.WrapErrConnClosed(s.name)
	case s.sendQueue <- frame:
		return nil
	default:
		// 队列满说明对端长时间不消费，判定会话不可用。
		s.fail("send queue full")
		return merr.WrapErrConnSendQueueFull(s.name)
	}
}

// Recv 实现 Session.Recv。
func (s *WSSession) Recv() (*wire.Envelope, error) {
	messageType, frame, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.TextMessage {
		return nil, merr.WrapErrProtocolMalformed("unexpected message type %d", messageType)
	}
	return s.codec.Decode(frame)
}

// Close 实现 Session.Close。
func (s *WSSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// 先取消上下文，再关闭连接，保证发送协程能及时退出。
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

// fail 将会话标记为不可用并关闭底层连接。
//
// 之后该会话的读协程会因连接关闭而退出，走统一的清理路径。
func (s *WSSession) fail(reason string) {
	metrics.DroppedConnections.WithLabelValues(reason).Inc()
	log.Warn("session became unusable, closing",
		zap.Uint64("sessionID", s.id),
		zap.String("player", s.name),
		zap.String("reason", reason))
	_ = s.Close()
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 行为：
//   - 从 sendQueue 中按顺序取出帧并写出；
//   - 每帧写出前设置写超时，写失败或超时即关闭会话。
func (s *WSSession) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.sendQueue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.RatedWarn(10, "session write failed",
					zap.Uint64("sessionID", s.id),
					zap.String("player", s.name),
					zap.Error(err))
				s.fail("write failed")
				return
			}
		}
	}
}
