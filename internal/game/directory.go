package game

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

const (
	// sessionIDLength 为服务端生成的对局编号长度。
	sessionIDLength = 6

	// sessionIDCharset 为对局编号的字符集，便于口头传播。
	sessionIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxIDAttempts 为生成对局编号时的最大碰撞重试次数。
	maxIDAttempts = 16
)

// Directory 维护对局编号到对局实例的索引，以及会话到对局的反向索引。
//
// 并发约定：
//   - mu 只保护两个 map 本身，持锁时间应尽量短；
//   - 成员变更与广播由各 Game 自己的锁串行化；
//   - 锁序固定为 Directory.mu -> Game.mu，任何路径都不得反向获取。
type Directory struct {
	mu          sync.Mutex
	games       map[string]*Game
	sessionGame map[uint64]*Game
}

func NewDirectory() *Directory {
	return &Directory{
		games:       make(map[string]*Game),
		sessionGame: make(map[uint64]*Game),
	}
}

// Create 创建一局新对局，创建者自动成为第一个成员。
//
// 行为：
//   - sess 已关联对局时返回 ErrSessionAlreadyJoined；
//   - id 非空且已被占用时返回 ErrSessionDuplicateID；
//   - id 为空时由服务端生成 6 位对局编号。
//
// 返回最终生效的对局编号。
func (d *Directory) Create(sess session.Session, gameType, id string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.sessionGame[sess.ID()]; ok {
		return "", merr.WrapErrSessionAlreadyJoined(current.ID())
	}

	if id == "" {
		generated, err := d.generateIDLocked()
		if err != nil {
			return "", err
		}
		id = generated
	} else if _, exists := d.games[id]; exists {
		return "", merr.WrapErrSessionDuplicateID(id)
	}

	g := newGame(id, gameType)
	g.members[sess.ID()] = sess
	g.names.Insert(sess.Name())

	d.games[id] = g
	d.sessionGame[sess.ID()] = g
	metrics.ActiveGames.Inc()

	log.Info("game created",
		zap.String("game", id),
		zap.String("gameType", gameType),
		zap.String("creator", sess.Name()))

	return id, nil
}

// Join 将会话加入已存在的对局。
//
// 行为：
//   - sess 已关联对局时返回 ErrSessionAlreadyJoined；
//   - 对局不存在时返回 ErrSessionNotFound；
//   - 玩家名与对局内已有成员冲突时返回 ErrSessionNameTaken。
//
// 返回加入前已有成员的玩家名。
func (d *Directory) Join(sess session.Session, id, greeting string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.sessionGame[sess.ID()]; ok {
		return nil, merr.WrapErrSessionAlreadyJoined(current.ID())
	}

	g, ok := d.games[id]
	if !ok {
		return nil, merr.WrapErrSessionNotFound(id)
	}

	opponents, ok := g.join(sess, greeting)
	if !ok {
		return nil, merr.WrapErrSessionNameTaken(id, sess.Name())
	}

	d.sessionGame[sess.ID()] = g

	log.Info("player joined game",
		zap.String("game", id),
		zap.String("player", sess.Name()))

	return opponents, nil
}

// Leave 将会话移出当前关联的对局。
//
// 行为：
//   - sess 未关联对局时返回 ErrSessionNotJoined；
//   - 最后一个成员离开后对局被立即拆除。
func (d *Directory) Leave(sess session.Session, goodbye string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.sessionGame[sess.ID()]
	if !ok {
		return merr.ErrSessionNotJoined
	}

	delete(d.sessionGame, sess.ID())
	remaining := g.leave(sess, goodbye)

	log.Info("player left game",
		zap.String("game", g.ID()),
		zap.String("player", sess.Name()))

	if remaining == 0 {
		d.removeGameLocked(g)
	}
	return nil
}

// Disconnect 处理会话断开后的隐式离开。
//
// 与 Leave 的区别仅在于未关联对局时不报错：
// 每条连接关闭时都会走到这里，无论它是否加入过对局。
func (d *Directory) Disconnect(sess session.Session) {
	_ = d.Leave(sess, "")
}

// GameOf 返回会话当前关联的对局。
func (d *Directory) GameOf(sess session.Session) (*Game, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.sessionGame[sess.ID()]
	if !ok {
		return nil, merr.ErrSessionNotJoined
	}
	return g, nil
}

// Get 按编号查找对局。
func (d *Directory) Get(id string) (*Game, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.games[id]
	return g, ok
}

// List 返回当前所有对局编号的快照。
func (d *Directory) List() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return lo.Keys(d.games)
}

// Count 返回当前对局数。
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.games)
}

// StartSweeper 启动后台协程，定期清理空对局。
//
// 空对局在成员归零时已被同步拆除，这里兜底处理成员清理路径
// 未能执行到的情况（例如进程内 bug 导致的泄漏索引）。
func (d *Directory) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sweep()
			}
		}
	}()
}

func (d *Directory) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, g := range d.games {
		if g.MemberCount() == 0 {
			log.Warn("sweeping orphaned game", zap.String("game", g.ID()))
			d.removeGameLocked(g)
		}
	}
}

// removeGameLocked 在持有 mu 的前提下拆除对局。
func (d *Directory) removeGameLocked(g *Game) {
	delete(d.games, g.ID())
	metrics.ActiveGames.Dec()
	log.Info("game torn down", zap.String("game", g.ID()))
}

// generateIDLocked 生成一个未被占用的对局编号。
func (d *Directory) generateIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := lo.RandomString(sessionIDLength, []rune(sessionIDCharset))
		if _, exists := d.games[id]; !exists {
			return id, nil
		}
	}
	return "", merr.WrapErrParameterInvalidMsg("could not allocate a free session id")
}
