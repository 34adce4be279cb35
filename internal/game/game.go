package game

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/typeutil"
)

// Game 表示一局进行中的对局。
//
// 并发约定：
//   - mu 串行化成员变更与广播：同一对局内，成员看到的消息顺序
//     与事件发生顺序一致；
//   - 加锁期间只做入队级别的发送，不做任何阻塞 IO；
//   - 不在持有 mu 的情况下调用 Directory 的任何方法（锁序为
//     Directory.mu -> Game.mu，反向获取会死锁）。
type Game struct {
	id       string
	gameType string

	mu      sync.Mutex
	members map[uint64]session.Session
	names   typeutil.Set[string]

	createdAt time.Time
}

func newGame(id, gameType string) *Game {
	return &Game{
		id:        id,
		gameType:  gameType,
		members:   make(map[uint64]session.Session),
		names:     typeutil.NewSet[string](),
		createdAt: time.Now(),
	}
}

// ID 返回对局编号。
func (g *Game) ID() string {
	return g.id
}

// GameType 返回创建时声明的对局类型。
func (g *Game) GameType() string {
	return g.gameType
}

// MemberCount 返回当前成员数。
func (g *Game) MemberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// MemberNames 返回当前成员的玩家名快照。
func (g *Game) MemberNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.names.Collect()
}

// join 将会话加入对局并通知已有成员。
// 返回值为加入前已有成员的玩家名，供 JoinGameResponse 携带。
func (g *Game) join(sess session.Session, greeting string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.names.Contain(sess.Name()) {
		return nil, false
	}

	opponents := g.names.Collect()

	g.broadcastLocked(0, wire.TagPlayerJoined, &wire.PlayerJoinedNotification{
		Name:     sess.Name(),
		Greeting: greeting,
	})

	g.members[sess.ID()] = sess
	g.names.Insert(sess.Name())

	return opponents, true
}

// leave 将会话移出对局并通知剩余成员。
// 返回值为移除后的剩余成员数，用于判断对局是否应被拆除。
func (g *Game) leave(sess session.Session, goodbye string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.members[sess.ID()]; !ok {
		return len(g.members)
	}

	delete(g.members, sess.ID())
	g.names.Remove(sess.Name())

	g.broadcastLocked(0, wire.TagPlayerLeft, &wire.PlayerLeftNotification{
		Name:    sess.Name(),
		Goodbye: goodbye,
	})

	return len(g.members)
}

// BroadcastFrom 将消息转发给除 sender 之外的所有成员。
// sender 为 0 时发送给全部成员。
func (g *Game) BroadcastFrom(sender uint64, tag string, msg any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcastLocked(sender, tag, msg)
}

// broadcastLocked 在持有 mu 的前提下执行扇出。
//
// 单个成员发送失败只影响该成员：失败的发送会在会话内部触发关闭，
// 随后由该会话自己的读协程走统一的离开路径，这里不做任何清理。
func (g *Game) broadcastLocked(sender uint64, tag string, msg any) {
	covered := 0
	for id, member := range g.members {
		if id == sender {
			continue
		}
		if err := member.Send(tag, msg); err != nil {
			log.RatedWarn(10, "broadcast to member failed",
				zap.String("game", g.id),
				zap.String("player", member.Name()),
				zap.String("tag", tag),
				zap.Error(err))
			continue
		}
		covered++
	}
	metrics.BroadcastFanout.Observe(float64(covered))
}
