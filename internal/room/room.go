package room

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
)

// Application 是房间承载的业务实例，对网络层完全不透明。
//
// 所有方法调用都由房间锁串行化，实现方不需要自己加锁。
type Application interface {
	// Snapshot 返回当前完整状态，发给刚加入的成员做初始化。
	// 返回 nil 表示没有需要同步的状态。
	Snapshot() (json.RawMessage, error)

	// Apply 处理一条成员消息。
	//
	// room 为消息所属的房间，由调用方显式传入；实现方需要广播时
	// 调用 room 上的广播方法，不得缓存 room 引用供其它协程使用。
	Apply(room *Room, sender session.Session, env *wire.Envelope) error
}

// Room 表示一个承载业务实例的房间。
//
// 并发约定与对局相同：mu 串行化成员变更、广播与 Application 调用；
// 锁序为 Manager.mu -> Room.mu。
type Room struct {
	id  string
	app Application

	mu      sync.Mutex
	members map[uint64]session.Session
}

func newRoom(id string, app Application) *Room {
	return &Room{
		id:      id,
		app:     app,
		members: make(map[uint64]session.Session),
	}
}

// ID 返回房间编号。
func (r *Room) ID() string {
	return r.id
}

// MemberCount 返回当前成员数。
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// join 将会话加入房间并向其发送初始状态快照。
func (r *Room) join(sess session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, err := r.app.Snapshot()
	if err != nil {
		return err
	}

	r.members[sess.ID()] = sess

	if snapshot != nil {
		return sess.Send(wire.TagInitialState, &wire.InitialStateNotification{State: snapshot})
	}
	return nil
}

// leave 将会话移出房间，返回剩余成员数。
func (r *Room) leave(sess session.Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, sess.ID())
	return len(r.members)
}

// Dispatch 将一条成员消息交给业务实例处理。
// 房间实例随调用显式传递，Application 不持有任何环境状态。
func (r *Room) Dispatch(sess session.Session, env *wire.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.app.Apply(r, sess, env)
}

// BroadcastFrom 将消息转发给除 sender 之外的所有成员。
// sender 为 0 时发送给全部成员。
//
// 只应在 Application.Apply 内调用：此时房间锁已被持有。
func (r *Room) BroadcastFrom(sender uint64, tag string, msg any) {
	covered := 0
	for id, member := range r.members {
		if id == sender {
			continue
		}
		if err := member.Send(tag, msg); err != nil {
			log.RatedWarn(10, "broadcast to room member failed",
				zap.String("room", r.id),
				zap.String("player", member.Name()),
				zap.Error(err))
			continue
		}
		covered++
	}
	metrics.BroadcastFanout.Observe(float64(covered))
}

// close 关闭房间内所有成员连接。
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, member := range r.members {
		_ = member.Close()
	}
	r.members = make(map[uint64]session.Session)
}
