package game

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

type DirectorySuite struct {
	suite.Suite

	dir   *Directory
	alice *session.RecordingSession
	bob   *session.RecordingSession
}

func (s *DirectorySuite) SetupTest() {
	s.dir = NewDirectory()
	s.alice = session.NewRecordingSession(1, "Alice")
	s.bob = session.NewRecordingSession(2, "Bob")
}

func (s *DirectorySuite) TestCreate() {
	id, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)
	s.Equal("ABC123", id)
	s.Equal(1, s.dir.Count())

	g, ok := s.dir.Get("ABC123")
	s.True(ok)
	s.Equal("chess", g.GameType())
	s.Equal([]string{"Alice"}, g.MemberNames())
}

func (s *DirectorySuite) TestCreateDuplicateID() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)

	_, err = s.dir.Create(s.bob, "chess", "ABC123")
	s.ErrorIs(err, merr.ErrSessionDuplicateID)
	s.Equal(1, s.dir.Count())
}

func (s *DirectorySuite) TestCreateWhileAssociated() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)

	_, err = s.dir.Create(s.alice, "chess", "XYZ789")
	s.ErrorIs(err, merr.ErrSessionAlreadyJoined)
	s.Equal(1, s.dir.Count())
}

func (s *DirectorySuite) TestCreateGeneratesID() {
	id, err := s.dir.Create(s.alice, "chess", "")
	s.NoError(err)
	s.Regexp(regexp.MustCompile(`^[A-Z0-9]{6}$`), id)

	_, ok := s.dir.Get(id)
	s.True(ok)
}

func (s *DirectorySuite) TestJoin() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)

	opponents, err := s.dir.Join(s.bob, "ABC123", "hello")
	s.NoError(err)
	s.Equal([]string{"Alice"}, opponents)

	// 已有成员收到 playerJoined 通知，加入者自己收不到。
	s.Equal([]string{wire.TagPlayerJoined}, s.alice.SentTags())
	s.Empty(s.bob.SentTags())
}

func (s *DirectorySuite) TestJoinMissingGame() {
	_, err := s.dir.Join(s.bob, "NOPE42", "")
	s.ErrorIs(err, merr.ErrSessionNotFound)
}

func (s *DirectorySuite) TestJoinWhileAssociated() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)
	_, err = s.dir.Create(s.bob, "chess", "XYZ789")
	s.NoError(err)

	_, err = s.dir.Join(s.bob, "ABC123", "")
	s.ErrorIs(err, merr.ErrSessionAlreadyJoined)
}

func (s *DirectorySuite) TestJoinNameTaken() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)

	impostor := session.NewRecordingSession(3, "Alice")
	_, err = s.dir.Join(impostor, "ABC123", "")
	s.ErrorIs(err, merr.ErrSessionNameTaken)

	// 加入失败不产生任何通知，也不建立关联。
	s.Empty(s.alice.SentTags())
	_, err = s.dir.GameOf(impostor)
	s.ErrorIs(err, merr.ErrSessionNotJoined)
}

func (s *DirectorySuite) TestLeave() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)
	_, err = s.dir.Join(s.bob, "ABC123", "")
	s.NoError(err)

	s.NoError(s.dir.Leave(s.bob, "bye"))

	// 剩余成员收到 playerLeft 通知。
	s.Equal([]string{wire.TagPlayerJoined, wire.TagPlayerLeft}, s.alice.SentTags())

	// 离开后会话不再关联对局。
	_, err = s.dir.GameOf(s.bob)
	s.ErrorIs(err, merr.ErrSessionNotJoined)

	// 对局仍然存在，Alice 还在里面。
	g, ok := s.dir.Get("ABC123")
	s.True(ok)
	s.Equal(1, g.MemberCount())
}

func (s *DirectorySuite) TestLeaveNotJoined() {
	s.ErrorIs(s.dir.Leave(s.bob, ""), merr.ErrSessionNotJoined)
}

func (s *DirectorySuite) TestLastLeaveTearsDown() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)

	s.NoError(s.dir.Leave(s.alice, ""))
	s.Equal(0, s.dir.Count())

	_, ok := s.dir.Get("ABC123")
	s.False(ok)
}

func (s *DirectorySuite) TestDisconnectImplicitLeave() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)
	_, err = s.dir.Join(s.bob, "ABC123", "")
	s.NoError(err)

	s.dir.Disconnect(s.bob)
	s.Equal([]string{wire.TagPlayerJoined, wire.TagPlayerLeft}, s.alice.SentTags())

	// 未关联对局的会话断开不报错也无副作用。
	stranger := session.NewRecordingSession(9, "Carol")
	s.dir.Disconnect(stranger)
	s.Equal(1, s.dir.Count())
}

func (s *DirectorySuite) TestBroadcastSkipsFailedMember() {
	_, err := s.dir.Create(s.alice, "chess", "ABC123")
	s.NoError(err)
	_, err = s.dir.Join(s.bob, "ABC123", "")
	s.NoError(err)

	carol := session.NewRecordingSession(3, "Carol")
	_, err = s.dir.Join(carol, "ABC123", "")
	s.NoError(err)

	// Bob 的发送队列满：广播继续覆盖其余成员。
	s.bob.FailNextSends()

	g, ok := s.dir.Get("ABC123")
	s.Require().True(ok)
	g.BroadcastFrom(s.alice.ID(), wire.TagGameAction, &wire.GameAction{Sender: "Alice"})

	s.Contains(carol.SentTags(), wire.TagGameAction)
	s.NotContains(s.alice.SentTags(), wire.TagGameAction)
}

func TestDirectory(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}
