package connector

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	network "github.com/lk2023060901/tabletop-garden-go/internal/network"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/conc"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	SendQueueSize int
	RecvQueueSize int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Codec 为当前连接使用的帧编解码器。
	Codec wire.Codec

	// MaxDialTime 为拨号重试的总时长上限，0 表示只拨一次。
	MaxDialTime time.Duration
}

func defaultConfig() Config {
	return Config{
		SendQueueSize: 256,
		RecvQueueSize: 256,
	}
}

// ClientConn 抽象了客户端侧的一条连接。
//
// 注意：客户端连接不包含会话 ID 概念，玩家身份在握手头部中确定。
type ClientConn interface {
	Context() context.Context
	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	// Send 将消息投递到发送队列，由发送协程编码后写出。
	Send(tag string, msg any) error

	// Recv 返回入站消息通道，连接关闭时通道被关闭。
	Recv() <-chan *wire.Envelope

	Close() error
}

// ConnectorHandler 描述客户端在各阶段的回调能力。
//
// 所有回调均在连接的收/发协程中被调用，应避免耗时操作阻塞网络收发。
type ConnectorHandler interface {
	OnConnected(conn ClientConn)
	OnMessage(conn ClientConn, env *wire.Envelope)
	OnClosed(conn ClientConn, err error)
	OnError(conn ClientConn, stage network.Stage, err error)
}

// Connector 抽象了客户端的拨号器。
type Connector interface {
	Dial(ctx context.Context, urlStr string, h ConnectorHandler, header http.Header) (ClientConn, error)
}

// wsConnector 是基于 gorilla/websocket 的默认 Connector 实现。
type wsConnector struct {
	cfg Config
}

// NewWSConnector 创建一个基于 WebSocket 的 Connector。
func NewWSConnector(cfg Config) Connector {
	def := defaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.RecvQueueSize <= 0 {
		cfg.RecvQueueSize = def.RecvQueueSize
	}
	if cfg.Codec == nil {
		panic("connector: Codec is nil")
	}
	return &wsConnector{cfg: cfg}
}

// Dial 拨号并完成握手。
//
// 配置了 MaxDialTime 时按指数退避重试，适配服务端晚于客户端启动的场景；
// ctx 取消会中止正在进行的重试。
func (c *wsConnector) Dial(ctx context.Context, urlStr string, h ConnectorHandler, header http.Header) (ClientConn, error) {
	dialer := websocket.DefaultDialer

	dial := func() (*websocket.Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, urlStr, header)
		if resp != nil {
			_ = resp.Body.Close()
		}
		return conn, err
	}

	var conn *websocket.Conn
	var err error
	if c.cfg.MaxDialTime > 0 {
		policy := backoff.WithContext(
			backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(c.cfg.MaxDialTime)),
			ctx,
		)
		conn, err = backoff.RetryWithData(dial, policy)
	} else {
		conn, err = dial()
	}
	if err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithCancel(ctx)
	cc := newWSClientConn(connCtx, cancel, conn, c.cfg, h)
	h.OnConnected(cc)
	return cc, nil
}

// wsClientConn 是基于 WebSocket 的 ClientConn 默认实现。
type wsClientConn struct {
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	cfg Config
	h   ConnectorHandler

	remoteAddr net.Addr
	localAddr  net.Addr

	sendChan chan *wire.Envelope
	recvChan chan *wire.Envelope

	codec wire.Codec

	closeOnce sync.Once
}

func newWSClientConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	cfg Config,
	h ConnectorHandler,
) *wsClientConn {
	c := &wsClientConn{
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		h:          h,
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		sendChan:   make(chan *wire.Envelope, cfg.SendQueueSize),
		recvChan:   make(chan *wire.Envelope, cfg.RecvQueueSize),
		codec:      cfg.Codec,
	}

	// 使用 conc.Go 启动收发协程，避免直接使用原生 go 关键字。
	_ = conc.Go(func() (struct{}, error) {
		c.recvLoop()
		return struct{}{}, nil
	})
	_ = conc.Go(func() (struct{}, error) {
		c.sendLoop()
		return struct{}{}, nil
	})

	return c
}

// ClientConn 接口实现。

func (c *wsClientConn) Context() context.Context    { return c.ctx }
func (c *wsClientConn) RemoteAddr() net.Addr        { return c.remoteAddr }
func (c *wsClientConn) LocalAddr() net.Addr         { return c.localAddr }
func (c *wsClientConn) Recv() <-chan *wire.Envelope { return c.recvChan }
func (c *wsClientConn) Close() error                { return c.close(nil) }

func (c *wsClientConn) Send(tag string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.h.OnError(c, network.StageEncode, err)
		return err
	}

	env := &wire.Envelope{Tag: tag, Payload: payload}

	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case c.sendChan <- env:
		return nil
	}
}

func (c *wsClientConn) writeRaw(data []byte) error {
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.h.OnError(c, network.StageSend, err)
			c.close(network.ErrSendFailed)
			return network.ErrSendFailed
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.h.OnError(c, network.StageSend, err)
		c.close(err)
		return network.ErrSendFailed
	}
	return nil
}

func (c *wsClientConn) close(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if cerr := c.conn.Close(); cerr != nil {
			err = cerr
		}
		c.h.OnClosed(c, cause)
	})
	return err
}

// recvLoop 持续读取 WebSocket 文本帧并解码为 Envelope。
//
// recvChan 只由本协程写入，因此也只在本协程退出时关闭。
func (c *wsClientConn) recvLoop() {
	defer func() {
		_ = c.close(nil)
		close(c.recvChan)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if c.cfg.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
				c.h.OnError(c, network.StageRecvRaw, err)
				c.close(network.ErrRecvFailed)
				return
			}
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.h.OnError(c, network.StageRecvRaw, err)
			c.close(network.ErrRecvFailed)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		env, err := c.codec.Decode(data)
		if err != nil {
			c.h.OnError(c, network.StageDecode, err)
			continue
		}

		select {
		case <-c.ctx.Done():
			return
		case c.recvChan <- env:
		default:
			// 接收通道满时丢弃当前消息，避免阻塞读协程。
		}

		c.h.OnMessage(c, env)
	}
}

// sendLoop 从 sendChan 读取消息并使用 Codec 编码后写入 WebSocket。
func (c *wsClientConn) sendLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.sendChan:
			frame, err := c.codec.Encode(env)
			if err != nil {
				c.h.OnError(c, network.StageEncode, err)
				continue
			}
			if err := c.writeRaw(frame); err != nil {
				return
			}
		}
	}
}
