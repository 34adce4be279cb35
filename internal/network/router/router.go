package router

import (
	"time"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// Handler 是框架暴露给业务层的通用处理函数签名。
//
// 说明：
//   - sess：当前会话，用于关联玩家，并发送响应；由框架层定义 Session 抽象；
//   - req ：已经经过反序列化的请求对象（通常为 *XXXRequest），
//           具体类型由业务侧在 Register 时通过 NewRequest 决定；
//   - 返回：
//       - resp：可选的响应对象（通常为 *XXXResponse），为 nil 时表示无需自动发送响应；
//       - err ：业务执行失败时的错误，由上层决定如何记录或转换为响应状态。
type Handler func(sess session.Session, req any) (resp any, err error)

// Route 描述一条路由规则：请求 tag -> 请求类型 + 业务 Handler + 响应 tag。
type Route struct {
	// NewRequest 用于创建一个空的请求对象实例。
	//
	// 要求：
	//   - 必须返回指向具体请求类型的指针（例如：func() any { return &wire.JoinGameRequest{} }）。
	NewRequest func() any

	// Handler 为业务层实现的处理函数。
	//
	// Router 会在反序列化完成后调用该函数，并根据其返回值决定是否发送响应。
	Handler Handler

	// RespTag 为响应消息使用的 tag。
	//
	// 说明：
	//   - 当 RespTag 为空时，Router 不会根据 Handler 返回值自动发送响应；
	//     这种情况下，业务可以在 Handler 内部自行调用 sess.Send 进行发送。
	//   - 当 RespTag 非空且 Handler 返回非 nil 的 resp 时，
	//     Router 会通过 sess.Send 自动发送响应。
	RespTag string
}

// Router 维护 tag 到路由规则的映射，并负责从“逻辑消息”到业务 Handler 的完整调度流程。
//
// 典型调用链（服务器侧）：
//   1. Session.Recv 从底层连接读取并解码出 Envelope；
//   2. 上层调用 Router.Handle(sess, env)；
//   3. Router 根据 env.Tag 找到 Route：
//        - NewRequest() 创建请求对象；
//        - 将 env.Payload 反序列化到请求对象；
//        - 调用业务 Handler(sess, req)；
//        - 如有需要，通过 sess.Send 发送响应。
type Router interface {
	// Register 为 tag 注册一条路由规则。
	//
	// 要求：
	//   - 同一 tag 不允许重复注册，重复时应返回错误。
	Register(tag string, route Route) error

	// Handle 处理一条已经解码出的逻辑消息。
	//
	// 行为：
	//   - 未注册的 tag 返回 merr.ErrProtocolUnknownType；
	//   - 载荷反序列化失败返回 merr.ErrProtocolMalformed；
	//   - 上述两类错误都不应导致会话被关闭，由调用方决定是否继续读取。
	Handle(sess session.Session, env *wire.Envelope) error
}

// defaultRouter 是 Router 接口的基础实现。
//
// 它基于一个简单的 map[tag]Route 进行路由。路由表只在启动阶段写入，
// 服务期间只读，因此不加锁。
type defaultRouter struct {
	routes map[string]Route
}

// 编译期断言：确保 defaultRouter 实现了 Router 接口。
var _ Router = (*defaultRouter)(nil)

// New 创建一个空的 Router 实例。
func New() Router {
	return &defaultRouter{
		routes: make(map[string]Route),
	}
}

// Register 实现 Router.Register。
func (r *defaultRouter) Register(tag string, route Route) error {
	if tag == "" {
		return merr.WrapErrParameterInvalidMsg("router: tag must not be empty")
	}
	if route.NewRequest == nil {
		return merr.WrapErrParameterInvalidMsg("router: NewRequest is nil for tag=%s", tag)
	}
	if route.Handler == nil {
		return merr.WrapErrParameterInvalidMsg("router: Handler is nil for tag=%s", tag)
	}
	if _, exists := r.routes[tag]; exists {
		return merr.WrapErrParameterInvalidMsg("router: tag=%s already registered", tag)
	}
	r.routes[tag] = route
	return nil
}

// Handle 实现 Router.Handle。
func (r *defaultRouter) Handle(sess session.Session, env *wire.Envelope) error {
	if sess == nil {
		return merr.WrapErrParameterInvalidMsg("router: session is nil")
	}
	if env == nil {
		return merr.WrapErrParameterInvalidMsg("router: envelope is nil")
	}

	route, ok := r.routes[env.Tag]
	if !ok {
		metrics.DispatchedFrames.WithLabelValues(env.Tag, "unknown").Inc()
		return merr.WrapErrProtocolUnknownType(env.Tag)
	}

	// 1. 构造请求对象并反序列化。
	req := route.NewRequest()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, req); err != nil {
			metrics.DispatchedFrames.WithLabelValues(env.Tag, "malformed").Inc()
			return merr.WrapErrProtocolMalformed("unmarshal payload failed for tag=%s: %v", env.Tag, err)
		}
	}

	// 2. 调用业务 Handler。
	start := time.Now()
	resp, err := route.Handler(sess, req)
	metrics.DispatchLatency.WithLabelValues(env.Tag).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.DispatchedFrames.WithLabelValues(env.Tag, "error").Inc()
		return err
	}
	metrics.DispatchedFrames.WithLabelValues(env.Tag, "ok").Inc()

	// 3. 根据路由规则决定是否自动发送响应。
	if route.RespTag != "" && resp != nil {
		return sess.Send(route.RespTag, resp)
	}
	return nil
}
