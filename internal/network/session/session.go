package session

import (
	"context"
	"net"

	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
)

// Session 抽象了一条已通过握手的玩家连接。
//
// 约定：
//   - 每个 Session 对应一条底层 WebSocket 连接。
//   - Session ID 使用 64 位无符号整型，在框架内应保持全局唯一。
//   - 玩家名在握手阶段确定，连接存续期间不变。
type Session interface {
	// ID 返回该会话在框架内的全局唯一标识。
	//
	// 说明：
	//   - 由接入层在连接升级成功后分配（自增 uint64）。
	//   - 业务层可以通过该 ID 建立 “Session <-> 对局” 的映射关系。
	ID() uint64

	// Name 返回握手阶段确定的玩家名。
	Name() string

	// Context 返回与该会话关联的上下文。
	//
	// 说明：
	//   - 可用于级联取消：当会话关闭时，应触发 Context.Done()。
	Context() context.Context

	// RemoteAddr 返回远端地址（客户端地址）。
	//
	// 说明：
	//   - 主要用于日志记录、审计或限流策略。
	RemoteAddr() net.Addr

	// Send 向该会话发送一条业务消息。
	//
	// 参数：
	//   - tag ：消息类型标识；
	//   - msg ：业务层的请求/响应对象，由内部 Codec 负责序列化与封帧。
	//
	// 行为：
	//   - 消息仅被投递到会话级发送队列，由专职发送协程按顺序写出，
	//     保证单个会话内的消息顺序与入队顺序一致；
	//   - 队列已满或会话已关闭时立即返回错误，不阻塞调用方；
	//   - 投递失败意味着该会话已不可用，内部会触发会话关闭。
	Send(tag string, msg any) error

	// Recv 阻塞读取下一条入站消息并解码为 Envelope。
	//
	// 说明：
	//   - 只应由该会话的读协程调用；
	//   - 连接断开或解帧失败时返回错误。
	Recv() (*wire.Envelope, error)

	// Close 主动关闭该会话。
	//
	// 说明：
	//   - 应关闭底层连接，并触发 Context 的取消。
	//   - 多次调用应是幂等的：对已关闭的会话再次调用 Close 不应引发 panic。
	Close() error
}
