package room

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// Manager 维护房间编号到房间实例的索引，以及会话到房间的反向索引。
//
// 与对局目录不同，房间由服务端显式创建和关闭，成员归零不触发拆除。
type Manager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	sessionRoom map[uint64]*Room
}

func NewManager() *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		sessionRoom: make(map[uint64]*Room),
	}
}

// CreateRoom 创建一个承载给定业务实例的房间。
// 编号已被占用时返回 ErrRoomDuplicateID。
func (m *Manager) CreateRoom(id string, app Application) (*Room, error) {
	if id == "" || app == nil {
		return nil, merr.WrapErrParameterInvalidMsg("room id and application are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[id]; exists {
		return nil, merr.WrapErrRoomDuplicateID(id)
	}

	r := newRoom(id, app)
	m.rooms[id] = r
	metrics.ActiveRooms.Inc()

	log.Info("room created", zap.String("room", id))
	return r, nil
}

// Join 将会话加入指定房间。
//
// 行为：
//   - 会话已关联房间时返回 ErrRoomAlreadyJoined；
//   - 房间不存在时返回 ErrRoomNotFound。
func (m *Manager) Join(sess session.Session, id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.sessionRoom[sess.ID()]; ok {
		return nil, merr.WrapErrRoomAlreadyJoined(current.ID())
	}

	r, ok := m.rooms[id]
	if !ok {
		return nil, merr.WrapErrRoomNotFound(id)
	}

	if err := r.join(sess); err != nil {
		return nil, err
	}
	m.sessionRoom[sess.ID()] = r

	log.Info("player joined room",
		zap.String("room", id),
		zap.String("player", sess.Name()))
	return r, nil
}

// Disconnect 处理会话断开后的隐式离开。
func (m *Manager) Disconnect(sess session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessionRoom[sess.ID()]
	if !ok {
		return
	}
	delete(m.sessionRoom, sess.ID())
	r.leave(sess)

	log.Info("player left room",
		zap.String("room", r.ID()),
		zap.String("player", sess.Name()))
}

// CloseRoom 关闭房间并断开其全部成员连接。
func (m *Manager) CloseRoom(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return merr.WrapErrRoomNotFound(id)
	}

	delete(m.rooms, id)
	for sessID, joined := range m.sessionRoom {
		if joined == r {
			delete(m.sessionRoom, sessID)
		}
	}
	r.close()
	metrics.ActiveRooms.Dec()

	log.Info("room closed", zap.String("room", id))
	return nil
}

// Get 按编号查找房间。
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	return r, ok
}

// RoomOf 返回会话当前关联的房间。
func (m *Manager) RoomOf(sess session.Session) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessionRoom[sess.ID()]
	return r, ok
}

// List 返回当前所有房间编号的快照。
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return lo.Keys(m.rooms)
}

// Count 返回当前房间数。
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
