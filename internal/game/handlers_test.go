package game

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/router"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

type HandlersSuite struct {
	suite.Suite

	dir    *Directory
	router router.Router
	alice  *session.RecordingSession
	bob    *session.RecordingSession
}

func (s *HandlersSuite) SetupTest() {
	s.dir = NewDirectory()
	s.router = router.New()
	s.NoError(RegisterRoutes(s.router, s.dir))

	s.alice = session.NewRecordingSession(1, "Alice")
	s.bob = session.NewRecordingSession(2, "Bob")
}

func (s *HandlersSuite) dispatch(sess session.Session, tag string, payload string) {
	s.Require().NoError(s.router.Handle(sess, &wire.Envelope{
		Tag:     tag,
		Payload: json.RawMessage(payload),
	}))
}

func (s *HandlersSuite) lastResponse(sess *session.RecordingSession, out any) string {
	sent := sess.Sent()
	s.Require().NotEmpty(sent)
	last := sent[len(sent)-1]
	s.Require().NoError(json.Unmarshal(last.Payload, out))
	return last.Tag
}

// 完整走一遍建局、加入、动作、离开的调用链。
func (s *HandlersSuite) TestFullExchange() {
	// Alice 建局。
	s.dispatch(s.alice, wire.TagCreateGame, `{"gameType":"chess","sessionID":"ABC123"}`)

	var created wire.CreateGameResponse
	s.Equal(wire.TagCreateGameResponse, s.lastResponse(s.alice, &created))
	s.Equal(wire.StatusSuccess, created.Status)
	s.Equal("ABC123", created.SessionID)

	// Bob 加入。
	s.dispatch(s.bob, wire.TagJoinGame, `{"sessionID":"ABC123","greeting":"hi"}`)

	var joined wire.JoinGameResponse
	s.Equal(wire.TagJoinGameResponse, s.lastResponse(s.bob, &joined))
	s.Equal(wire.StatusSuccess, joined.Status)
	s.Equal([]string{"Alice"}, joined.Opponents)

	// Alice 收到 playerJoined。
	s.Contains(s.alice.SentTags(), wire.TagPlayerJoined)

	// Bob 发出动作：Alice 收到转发，Bob 只收到应答。
	s.dispatch(s.bob, wire.TagGameAction, `{"payload":{"move":"e4"},"sender":"spoofed"}`)

	var actionResp wire.Response
	s.Equal(wire.TagGameActionResponse, s.lastResponse(s.bob, &actionResp))
	s.Equal(wire.StatusSuccess, actionResp.Status)

	var forwarded wire.GameAction
	s.Equal(wire.TagGameAction, s.lastResponse(s.alice, &forwarded))
	s.JSONEq(`{"move":"e4"}`, string(forwarded.Payload))
	// 发送方由服务端盖章，客户端伪造的值被覆盖。
	s.Equal("Bob", forwarded.Sender)

	// Bob 离开：Alice 收到 playerLeft，对局保留。
	s.dispatch(s.bob, wire.TagLeaveGame, `{"goodbye":"bye"}`)

	var left wire.Response
	s.Equal(wire.TagLeaveGameResponse, s.lastResponse(s.bob, &left))
	s.Equal(wire.StatusSuccess, left.Status)
	s.Contains(s.alice.SentTags(), wire.TagPlayerLeft)
	s.Equal(1, s.dir.Count())

	// Alice 离开：对局拆除。
	s.dispatch(s.alice, wire.TagLeaveGame, `{}`)
	s.Equal(0, s.dir.Count())
}

func (s *HandlersSuite) TestCreateStatuses() {
	s.dispatch(s.alice, wire.TagCreateGame, `{"gameType":"chess","sessionID":"ABC123"}`)

	// 重复编号。
	s.dispatch(s.bob, wire.TagCreateGame, `{"gameType":"chess","sessionID":"ABC123"}`)
	var resp wire.CreateGameResponse
	s.lastResponse(s.bob, &resp)
	s.Equal(wire.StatusSessionWithIDAlreadyExists, resp.Status)

	// 已关联对局。
	s.dispatch(s.alice, wire.TagCreateGame, `{"gameType":"chess","sessionID":"XYZ789"}`)
	s.lastResponse(s.alice, &resp)
	s.Equal(wire.StatusAlreadyAssociatedWithGame, resp.Status)
}

func (s *HandlersSuite) TestJoinStatuses() {
	s.dispatch(s.alice, wire.TagCreateGame, `{"gameType":"chess","sessionID":"ABC123"}`)

	// 对局不存在。
	s.dispatch(s.bob, wire.TagJoinGame, `{"sessionID":"NOPE42"}`)
	var resp wire.JoinGameResponse
	s.lastResponse(s.bob, &resp)
	s.Equal(wire.StatusInvalidSessionID, resp.Status)

	// 玩家名冲突。
	impostor := session.NewRecordingSession(3, "Alice")
	s.dispatch(impostor, wire.TagJoinGame, `{"sessionID":"ABC123"}`)
	s.lastResponse(impostor, &resp)
	s.Equal(wire.StatusPlayerNameAlreadyTaken, resp.Status)
}

func (s *HandlersSuite) TestActionAndLeaveWithoutGame() {
	s.dispatch(s.bob, wire.TagGameAction, `{"payload":{}}`)
	var resp wire.Response
	s.lastResponse(s.bob, &resp)
	s.Equal(wire.StatusNoAssociatedGame, resp.Status)

	s.dispatch(s.bob, wire.TagLeaveGame, `{}`)
	s.lastResponse(s.bob, &resp)
	s.Equal(wire.StatusNoAssociatedGame, resp.Status)
}

// 服务端不受理响应与通知类 tag，按未知类型丢弃。
func (s *HandlersSuite) TestServerRejectsResponseTags() {
	err := s.router.Handle(s.alice, &wire.Envelope{
		Tag:     wire.TagPlayerJoined,
		Payload: json.RawMessage(`{"name":"Mallory"}`),
	})
	s.ErrorIs(err, merr.ErrProtocolUnknownType)
	s.Empty(s.alice.Sent())
}

func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}
