package session

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type SessionManagerSuite struct {
	suite.Suite

	manager *BaseSessionManager
}

func (s *SessionManagerSuite) SetupTest() {
	s.manager = NewBaseSessionManager()
}

func (s *SessionManagerSuite) TestNextID() {
	first := s.manager.NextID()
	second := s.manager.NextID()
	s.NotEqual(first, second)
}

func (s *SessionManagerSuite) TestRegisterGet() {
	sess := NewRecordingSession(s.manager.NextID(), "Alice")
	s.NoError(s.manager.Register(sess))
	s.Equal(1, s.manager.Count())

	got, ok := s.manager.Get(sess.ID())
	s.True(ok)
	s.Equal("Alice", got.Name())
}

func (s *SessionManagerSuite) TestRegisterDuplicateID() {
	s.NoError(s.manager.Register(NewRecordingSession(7, "Alice")))
	s.Error(s.manager.Register(NewRecordingSession(7, "Bob")))
	s.Equal(1, s.manager.Count())
}

func (s *SessionManagerSuite) TestUnregister() {
	s.NoError(s.manager.Register(NewRecordingSession(1, "Alice")))
	s.NoError(s.manager.Unregister(1))
	s.Equal(0, s.manager.Count())

	_, ok := s.manager.Get(1)
	s.False(ok)

	s.Error(s.manager.Unregister(1))
}

func (s *SessionManagerSuite) TestRange() {
	for i := uint64(1); i <= 3; i++ {
		s.NoError(s.manager.Register(NewRecordingSession(i, "")))
	}

	seen := 0
	s.manager.Range(func(sess Session) bool {
		seen++
		return true
	})
	s.Equal(3, seen)

	// 回调返回 false 时提前终止。
	seen = 0
	s.manager.Range(func(sess Session) bool {
		seen++
		return false
	})
	s.Equal(1, seen)
}

func TestSessionManager(t *testing.T) {
	suite.Run(t, new(SessionManagerSuite))
}
