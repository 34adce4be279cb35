package acceptor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/tabletop-garden-go/internal/game"
	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/router"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/kv"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

const testSecret = "geheim"

type AcceptorSuite struct {
	suite.Suite

	cancel  context.CancelFunc
	server  *httptest.Server
	manager *session.BaseSessionManager
	dir     *game.Directory
	codec   wire.DelimitedCodec

	conns []*websocket.Conn
}

func (s *AcceptorSuite) SetupTest() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	store := kv.NewMemoryKV()
	s.Require().NoError(store.Save(ctx, SecretKey, testSecret))

	auth := NewAuthenticator(store)
	s.Require().NoError(auth.LoadSecret(ctx))

	s.manager = session.NewBaseSessionManager()
	s.dir = game.NewDirectory()

	r := router.New()
	s.Require().NoError(game.RegisterRoutes(r, s.dir))

	a := New(ctx, auth, s.manager, r, s.codec, s.dir, Config{})
	s.server = httptest.NewServer(a)
}

func (s *AcceptorSuite) TearDownTest() {
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.server.Close()
	s.cancel()
}

func (s *AcceptorSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// dial 以给定玩家名完成握手并返回连接。
func (s *AcceptorSuite) dial(name string) *websocket.Conn {
	header := http.Header{}
	header.Set(HeaderNetworkSecret, testSecret)
	header.Set(HeaderPlayerName, name)

	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), header)
	s.Require().NoError(err)
	if resp != nil {
		_ = resp.Body.Close()
	}

	s.conns = append(s.conns, conn)
	return conn
}

func (s *AcceptorSuite) send(conn *websocket.Conn, tag, payload string) {
	frame, err := s.codec.Encode(&wire.Envelope{
		Tag:     tag,
		Payload: json.RawMessage(payload),
	})
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, frame))
}

func (s *AcceptorSuite) recv(conn *websocket.Conn) *wire.Envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, frame, err := conn.ReadMessage()
	s.Require().NoError(err)

	env, err := s.codec.Decode(frame)
	s.Require().NoError(err)
	return env
}

func (s *AcceptorSuite) TestRejectMissingCredentials() {
	resp, err := http.Get(s.server.URL)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *AcceptorSuite) TestRejectInvalidSecret() {
	header := http.Header{}
	header.Set(HeaderNetworkSecret, "wrong")
	header.Set(HeaderPlayerName, "Alice")

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), header)
	s.Error(err)
	s.Require().NotNil(resp)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

// 完整的建局 -> 加入 -> 动作 -> 离开链路，走真实 WebSocket 连接。
func (s *AcceptorSuite) TestFullScenario() {
	alice := s.dial("Alice")
	bob := s.dial("Bob")

	// Alice 建局。
	s.send(alice, wire.TagCreateGame, `{"gameType":"chess","sessionID":"ABC123"}`)

	env := s.recv(alice)
	s.Equal(wire.TagCreateGameResponse, env.Tag)

	var created wire.CreateGameResponse
	s.Require().NoError(json.Unmarshal(env.Payload, &created))
	s.Equal(wire.StatusSuccess, created.Status)
	s.Equal("ABC123", created.SessionID)

	// Bob 加入：Bob 收到应答，Alice 收到 playerJoined。
	s.send(bob, wire.TagJoinGame, `{"sessionID":"ABC123","greeting":"hi"}`)

	env = s.recv(bob)
	s.Equal(wire.TagJoinGameResponse, env.Tag)

	var joined wire.JoinGameResponse
	s.Require().NoError(json.Unmarshal(env.Payload, &joined))
	s.Equal(wire.StatusSuccess, joined.Status)
	s.Equal([]string{"Alice"}, joined.Opponents)

	env = s.recv(alice)
	s.Equal(wire.TagPlayerJoined, env.Tag)

	var notified wire.PlayerJoinedNotification
	s.Require().NoError(json.Unmarshal(env.Payload, &notified))
	s.Equal("Bob", notified.Name)
	s.Equal("hi", notified.Greeting)

	// Bob 发动作：Alice 收到转发且发送方被盖章。
	s.send(bob, wire.TagGameAction, `{"payload":{"move":"e4"}}`)

	env = s.recv(bob)
	s.Equal(wire.TagGameActionResponse, env.Tag)

	env = s.recv(alice)
	s.Equal(wire.TagGameAction, env.Tag)

	var action wire.GameAction
	s.Require().NoError(json.Unmarshal(env.Payload, &action))
	s.Equal("Bob", action.Sender)
	s.JSONEq(`{"move":"e4"}`, string(action.Payload))

	// Bob 离开：Alice 收到 playerLeft。
	s.send(bob, wire.TagLeaveGame, `{"goodbye":"bye"}`)

	env = s.recv(bob)
	s.Equal(wire.TagLeaveGameResponse, env.Tag)

	env = s.recv(alice)
	s.Equal(wire.TagPlayerLeft, env.Tag)
}

// 连接断开触发隐式离开，剩余成员收到 playerLeft。
func (s *AcceptorSuite) TestImplicitLeaveOnDisconnect() {
	alice := s.dial("Alice")
	bob := s.dial("Bob")

	s.send(alice, wire.TagCreateGame, `{"gameType":"chess","sessionID":"ABC123"}`)
	s.Equal(wire.TagCreateGameResponse, s.recv(alice).Tag)

	s.send(bob, wire.TagJoinGame, `{"sessionID":"ABC123"}`)
	s.Equal(wire.TagJoinGameResponse, s.recv(bob).Tag)
	s.Equal(wire.TagPlayerJoined, s.recv(alice).Tag)

	s.Require().NoError(bob.Close())

	env := s.recv(alice)
	s.Equal(wire.TagPlayerLeft, env.Tag)

	// 游戏仍在，Alice 仍是成员。
	g, ok := s.dir.Get("ABC123")
	s.Require().True(ok)
	s.Eventually(func() bool { return g.MemberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// 协议级错误不关闭连接。
func (s *AcceptorSuite) TestMalformedFrameKeepsConnection() {
	alice := s.dial("Alice")

	s.Require().NoError(alice.WriteMessage(websocket.TextMessage, []byte("no delimiter here")))
	s.Require().NoError(alice.WriteMessage(websocket.TextMessage, []byte("bogusTag|{}")))

	// 连接仍然可用。
	s.send(alice, wire.TagCreateGame, `{"gameType":"chess"}`)
	env := s.recv(alice)
	s.Equal(wire.TagCreateGameResponse, env.Tag)

	var created wire.CreateGameResponse
	s.Require().NoError(json.Unmarshal(env.Payload, &created))
	s.Equal(wire.StatusSuccess, created.Status)
	s.Len(created.SessionID, 6)
}

func TestAcceptor(t *testing.T) {
	suite.Run(t, new(AcceptorSuite))
}

type AuthenticatorSuite struct {
	suite.Suite

	store *kv.MemoryKV
	auth  *Authenticator
}

func (s *AuthenticatorSuite) SetupTest() {
	s.store = kv.NewMemoryKV()
	s.auth = NewAuthenticator(s.store)
}

func (s *AuthenticatorSuite) TestLoadSecretMissingKey() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := s.auth.LoadSecret(ctx)
	s.Error(err)
	s.ErrorIs(err, merr.ErrAuthSecretNotConfigured)
}

func (s *AuthenticatorSuite) TestAuthenticate() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, SecretKey, testSecret))
	s.Require().NoError(s.auth.LoadSecret(ctx))

	makeRequest := func(secret, name string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if secret != "" {
			r.Header.Set(HeaderNetworkSecret, secret)
		}
		if name != "" {
			r.Header.Set(HeaderPlayerName, name)
		}
		return r
	}

	name, err := s.auth.Authenticate(makeRequest(testSecret, "Alice"))
	s.NoError(err)
	s.Equal("Alice", name)

	_, err = s.auth.Authenticate(makeRequest("", "Alice"))
	s.ErrorIs(err, merr.ErrAuthMissingCredentials)

	_, err = s.auth.Authenticate(makeRequest(testSecret, ""))
	s.ErrorIs(err, merr.ErrAuthMissingCredentials)

	_, err = s.auth.Authenticate(makeRequest("wrong", "Alice"))
	s.ErrorIs(err, merr.ErrAuthInvalidSecret)
}

func TestAuthenticator(t *testing.T) {
	suite.Run(t, new(AuthenticatorSuite))
}
