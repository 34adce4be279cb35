package room

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/acceptor"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/kv"
)

const testSecret = "geheim"

type ChannelSuite struct {
	suite.Suite

	cancel   context.CancelFunc
	server   *httptest.Server
	sessions *session.BaseSessionManager
	manager  *Manager
	codec    wire.TypedCodec

	conns []*websocket.Conn
}

func (s *ChannelSuite) SetupTest() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	store := kv.NewMemoryKV()
	s.Require().NoError(store.Save(ctx, acceptor.SecretKey, testSecret))

	auth := acceptor.NewAuthenticator(store)
	s.Require().NoError(auth.LoadSecret(ctx))

	s.sessions = session.NewBaseSessionManager()
	s.manager = NewManager()
	_, err := s.manager.CreateRoom("lobby", &counterApp{total: 5})
	s.Require().NoError(err)

	s.server = httptest.NewServer(NewChannel(ctx, auth, s.sessions, s.manager))
}

func (s *ChannelSuite) TearDownTest() {
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.server.Close()
	s.cancel()
}

func (s *ChannelSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *ChannelSuite) dial(name string) *websocket.Conn {
	header := http.Header{}
	header.Set(acceptor.HeaderNetworkSecret, testSecret)
	header.Set(acceptor.HeaderPlayerName, name)

	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), header)
	s.Require().NoError(err)
	if resp != nil {
		_ = resp.Body.Close()
	}

	s.conns = append(s.conns, conn)
	return conn
}

// join 完成握手并发送房间选择控制帧。
func (s *ChannelSuite) join(name, roomID string) *websocket.Conn {
	conn := s.dial(name)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(joinPrefix+roomID)))
	return conn
}

func (s *ChannelSuite) send(conn *websocket.Conn, tag, payload string) {
	frame, err := s.codec.Encode(&wire.Envelope{
		Tag:     tag,
		Payload: json.RawMessage(payload),
	})
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, frame))
}

func (s *ChannelSuite) recv(conn *websocket.Conn) *wire.Envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, frame, err := conn.ReadMessage()
	s.Require().NoError(err)

	env, err := s.codec.Decode(frame)
	s.Require().NoError(err)
	return env
}

func (s *ChannelSuite) TestRejectWrongCredentials() {
	header := http.Header{}
	header.Set(acceptor.HeaderNetworkSecret, "wrong")
	header.Set(acceptor.HeaderPlayerName, "Alice")

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), header)
	s.Error(err)
	s.Require().NotNil(resp)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *ChannelSuite) TestJoinDeliversInitialState() {
	conn := s.join("Alice", "lobby")

	env := s.recv(conn)
	s.Equal(wire.TagInitialState, env.Tag)

	var note wire.InitialStateNotification
	s.Require().NoError(json.Unmarshal(env.Payload, &note))
	s.JSONEq(`{"total":5}`, string(note.State))
}

func (s *ChannelSuite) TestUnknownRoomRejected() {
	conn := s.join("Alice", "missing")

	env := s.recv(conn)
	s.Equal(wire.TagError, env.Tag)

	var note wire.ErrorNotification
	s.Require().NoError(json.Unmarshal(env.Payload, &note))
	s.Contains(note.Message, "missing")

	// 服务端随错误帧一起关闭连接。
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, _, err := conn.ReadMessage()
	s.Error(err)
}

func (s *ChannelSuite) TestBadJoinFrameRejected() {
	conn := s.dial("Alice")
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	env := s.recv(conn)
	s.Equal(wire.TagError, env.Tag)
}

func (s *ChannelSuite) TestDispatchAndBroadcast() {
	alice := s.join("Alice", "lobby")
	s.Equal(wire.TagInitialState, s.recv(alice).Tag)

	bob := s.join("Bob", "lobby")
	s.Equal(wire.TagInitialState, s.recv(bob).Tag)

	s.send(alice, "increment", `{"amount":2}`)

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := s.recv(conn)
		s.Equal("counterChanged", env.Tag)
		s.JSONEq(`{"type":"counterChanged","total":7}`, string(env.Payload))
	}
}

func (s *ChannelSuite) TestDispatchErrorKeepsConnection() {
	alice := s.join("Alice", "lobby")
	s.Equal(wire.TagInitialState, s.recv(alice).Tag)

	// 未知消息类型只丢弃该帧，连接保持可用。
	s.send(alice, "explode", `{}`)

	s.send(alice, "increment", `{"amount":1}`)
	env := s.recv(alice)
	s.Equal("counterChanged", env.Tag)
	s.JSONEq(`{"type":"counterChanged","total":6}`, string(env.Payload))
}

func (s *ChannelSuite) TestImplicitLeaveOnDisconnect() {
	alice := s.join("Alice", "lobby")
	s.Equal(wire.TagInitialState, s.recv(alice).Tag)

	r, ok := s.manager.Get("lobby")
	s.Require().True(ok)
	s.Eventually(func() bool { return r.MemberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Require().NoError(alice.Close())

	s.Eventually(func() bool { return r.MemberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	s.Eventually(func() bool { return s.sessions.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestChannelSuite(t *testing.T) {
	suite.Run(t, new(ChannelSuite))
}
