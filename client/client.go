package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/acceptor"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/connector"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// Config 描述客户端的连接参数。
type Config struct {
	// Address 为服务端对局入口地址，如 ws://127.0.0.1:8080/chat。
	Address string

	// Secret 与 PlayerName 在握手头部中携带。
	Secret     string
	PlayerName string

	// MaxDialTime 为拨号重试总时长上限，0 表示只拨一次。
	MaxDialTime time.Duration

	SendQueueSize int
	RecvQueueSize int
}

// BoardGameClient 是面向桌游业务的客户端门面。
//
// 使用方式：先注册关心的消息回调，再调用 Connect；
// 所有回调在接收协程中触发，耗时处理应自行转移到其它协程。
type BoardGameClient struct {
	cfg Config

	connector connector.Connector

	mu       sync.RWMutex
	conn     connector.ClientConn
	handlers map[string]func(payload json.RawMessage)

	onOpen  func()
	onClose func(err error)
}

func New(cfg Config) *BoardGameClient {
	c := &BoardGameClient{
		cfg:      cfg,
		handlers: make(map[string]func(payload json.RawMessage)),
	}
	c.connector = connector.NewWSConnector(connector.Config{
		SendQueueSize: cfg.SendQueueSize,
		RecvQueueSize: cfg.RecvQueueSize,
		Codec:         wire.DelimitedCodec{},
		MaxDialTime:   cfg.MaxDialTime,
	})
	return c
}

// Connect 拨号并完成握手，返回是否成功。
// 失败原因通过日志给出；配置了 MaxDialTime 时内部按指数退避重试。
func (c *BoardGameClient) Connect(ctx context.Context) bool {
	header := http.Header{}
	header.Set(acceptor.HeaderNetworkSecret, c.cfg.Secret)
	header.Set(acceptor.HeaderPlayerName, c.cfg.PlayerName)

	conn, err := c.connector.Dial(ctx, c.cfg.Address, &clientHandler{c: c}, header)
	if err != nil {
		log.Warn("connect failed",
			zap.String("address", c.cfg.Address),
			zap.String("player", c.cfg.PlayerName),
			zap.Error(err))
		return false
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return true
}

// IsConnected 返回当前是否持有可用连接。
func (c *BoardGameClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.Context().Err() == nil
}

// Disconnect 主动断开连接。
func (c *BoardGameClient) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *BoardGameClient) send(tag string, msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return merr.WrapErrConnClosed(c.cfg.PlayerName)
	}
	return conn.Send(tag, msg)
}

// CreateGame 请求创建对局。sessionID 为空时由服务端生成。
func (c *BoardGameClient) CreateGame(gameType, sessionID, greeting string) error {
	return c.send(wire.TagCreateGame, &wire.CreateGameRequest{
		GameType:  gameType,
		SessionID: sessionID,
		Greeting:  greeting,
	})
}

// JoinGame 请求加入对局。
func (c *BoardGameClient) JoinGame(sessionID, greeting string) error {
	return c.send(wire.TagJoinGame, &wire.JoinGameRequest{
		SessionID: sessionID,
		Greeting:  greeting,
	})
}

// LeaveGame 请求离开当前对局。
func (c *BoardGameClient) LeaveGame(goodbye string) error {
	return c.send(wire.TagLeaveGame, &wire.LeaveGameRequest{Goodbye: goodbye})
}

// SendAction 将业务动作发给对局内其他玩家。
// payload 为任意可序列化的业务消息；发送者身份由服务端填写。
func (c *BoardGameClient) SendAction(payload any, prettyPrint bool) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(wire.TagGameAction, &wire.GameAction{
		Payload:     raw,
		PrettyPrint: prettyPrint,
	})
}

// On 注册原始回调，收到指定 tag 的消息时携带其载荷触发。
// 与类型化的 OnXxx 注册互斥：同一 tag 后注册者覆盖先注册者。
func (c *BoardGameClient) On(tag string, fn func(payload json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[tag] = fn
}

// OnOpen 注册连接建立回调。
func (c *BoardGameClient) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

// OnClose 注册连接关闭回调，err 为非主动关闭时的原因。
func (c *BoardGameClient) OnClose(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *BoardGameClient) OnCreateGameResponse(fn func(*wire.CreateGameResponse)) {
	registerTyped(c, wire.TagCreateGameResponse, fn)
}

func (c *BoardGameClient) OnJoinGameResponse(fn func(*wire.JoinGameResponse)) {
	registerTyped(c, wire.TagJoinGameResponse, fn)
}

func (c *BoardGameClient) OnLeaveGameResponse(fn func(*wire.Response)) {
	registerTyped(c, wire.TagLeaveGameResponse, fn)
}

func (c *BoardGameClient) OnGameActionResponse(fn func(*wire.Response)) {
	registerTyped(c, wire.TagGameActionResponse, fn)
}

func (c *BoardGameClient) OnGameAction(fn func(*wire.GameAction)) {
	registerTyped(c, wire.TagGameAction, fn)
}

func (c *BoardGameClient) OnPlayerJoined(fn func(*wire.PlayerJoinedNotification)) {
	registerTyped(c, wire.TagPlayerJoined, fn)
}

func (c *BoardGameClient) OnPlayerLeft(fn func(*wire.PlayerLeftNotification)) {
	registerTyped(c, wire.TagPlayerLeft, fn)
}

// registerTyped 包一层反序列化，把原始载荷转成具体消息类型。
func registerTyped[T any](c *BoardGameClient, tag string, fn func(*T)) {
	c.On(tag, func(payload json.RawMessage) {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn("drop undecodable message",
				zap.String("tag", tag),
				zap.Error(err))
			return
		}
		fn(&msg)
	})
}

func (c *BoardGameClient) dispatch(env *wire.Envelope) {
	c.mu.RLock()
	fn, ok := c.handlers[env.Tag]
	c.mu.RUnlock()

	if !ok {
		log.RatedInfo(10, "no handler registered for tag", zap.String("tag", env.Tag))
		return
	}
	fn(env.Payload)
}

// clientHandler 将连接层回调适配到门面上注册的回调表。
type clientHandler struct {
	c *BoardGameClient
}

var _ connector.ConnectorHandler = (*clientHandler)(nil)

func (h *clientHandler) OnConnected(conn connector.ClientConn) {
	h.c.mu.RLock()
	fn := h.c.onOpen
	h.c.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

func (h *clientHandler) OnMessage(conn connector.ClientConn, env *wire.Envelope) {
	h.c.dispatch(env)
}

func (h *clientHandler) OnClosed(conn connector.ClientConn, err error) {
	h.c.mu.RLock()
	fn := h.c.onClose
	h.c.mu.RUnlock()

	if fn != nil {
		fn(err)
	}
}

func (h *clientHandler) OnError(conn connector.ClientConn, stage network.Stage, err error) {
	log.RatedWarn(10, "client connection error",
		zap.String("stage", string(stage)),
		zap.Error(err))
}
