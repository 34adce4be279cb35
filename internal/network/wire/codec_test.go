package wire

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

type DelimitedCodecSuite struct {
	suite.Suite

	codec DelimitedCodec
}

func (s *DelimitedCodecSuite) TestEncode() {
	frame, err := s.codec.Encode(&Envelope{
		Tag:     TagJoinGame,
		Payload: json.RawMessage(`{"sessionID":"ABC123","greeting":"hi"}`),
	})
	s.NoError(err)
	s.Equal(`joinGame|{"sessionID":"ABC123","greeting":"hi"}`, string(frame))
}

func (s *DelimitedCodecSuite) TestEncodeEmptyPayload() {
	frame, err := s.codec.Encode(&Envelope{Tag: TagLeaveGame})
	s.NoError(err)
	s.Equal(`leaveGame|{}`, string(frame))
}

func (s *DelimitedCodecSuite) TestEncodeEmptyTag() {
	_, err := s.codec.Encode(&Envelope{Payload: json.RawMessage(`{}`)})
	s.Error(err)
}

func (s *DelimitedCodecSuite) TestDecode() {
	env, err := s.codec.Decode([]byte(`gameAction|{"payload":{"move":"e4"}}`))
	s.NoError(err)
	s.Equal(TagGameAction, env.Tag)

	var action GameAction
	s.NoError(json.Unmarshal(env.Payload, &action))
	s.JSONEq(`{"move":"e4"}`, string(action.Payload))
}

// 载荷内出现 '|' 不影响分帧，只有第一个分隔符生效。
func (s *DelimitedCodecSuite) TestDecodePipeInPayload() {
	env, err := s.codec.Decode([]byte(`gameAction|{"payload":"a|b"}`))
	s.NoError(err)
	s.Equal(TagGameAction, env.Tag)
	s.JSONEq(`{"payload":"a|b"}`, string(env.Payload))
}

func (s *DelimitedCodecSuite) TestDecodeMalformed() {
	cases := [][]byte{
		[]byte(``),
		[]byte(`joinGame`),           // 没有分隔符
		[]byte(`|{}`),                // 空 tag
		[]byte(`joinGame|not-json`),  // 载荷不是合法 JSON
		[]byte(`joinGame|{"a":`),     // 截断的 JSON
	}
	for _, frame := range cases {
		_, err := s.codec.Decode(frame)
		s.ErrorIs(err, merr.ErrProtocolMalformed, "frame=%q", frame)
	}
}

func TestDelimitedCodec(t *testing.T) {
	suite.Run(t, new(DelimitedCodecSuite))
}

type TypedCodecSuite struct {
	suite.Suite

	codec TypedCodec
}

func (s *TypedCodecSuite) TestEncode() {
	frame, err := s.codec.Encode(&Envelope{
		Tag:     TagPlayerJoined,
		Payload: json.RawMessage(`{"name":"Alice"}`),
	})
	s.NoError(err)
	s.JSONEq(`{"type":"playerJoined","name":"Alice"}`, string(frame))
}

func (s *TypedCodecSuite) TestEncodeEmptyPayload() {
	frame, err := s.codec.Encode(&Envelope{Tag: TagLeaveGame})
	s.NoError(err)
	s.JSONEq(`{"type":"leaveGame"}`, string(frame))
}

func (s *TypedCodecSuite) TestDecode() {
	env, err := s.codec.Decode([]byte(`{"type":"createGame","gameType":"chess","sessionID":"ABC123"}`))
	s.NoError(err)
	s.Equal(TagCreateGame, env.Tag)

	var req CreateGameRequest
	s.NoError(json.Unmarshal(env.Payload, &req))
	s.Equal("chess", req.GameType)
	s.Equal("ABC123", req.SessionID)
}

func (s *TypedCodecSuite) TestDecodeMalformed() {
	_, err := s.codec.Decode([]byte(`not-json`))
	s.ErrorIs(err, merr.ErrProtocolMalformed)

	// 缺少判别字段。
	_, err = s.codec.Decode([]byte(`{"name":"Alice"}`))
	s.ErrorIs(err, merr.ErrProtocolMalformed)
}

// Encode 后 Decode 得到等价的逻辑消息。
func (s *TypedCodecSuite) TestRoundTrip() {
	frame, err := s.codec.Encode(&Envelope{
		Tag:     TagGameAction,
		Payload: json.RawMessage(`{"payload":{"move":"e4"},"sender":"Bob"}`),
	})
	s.NoError(err)

	env, err := s.codec.Decode(frame)
	s.NoError(err)
	s.Equal(TagGameAction, env.Tag)

	var action GameAction
	s.NoError(json.Unmarshal(env.Payload, &action))
	s.Equal("Bob", action.Sender)
}

func TestTypedCodec(t *testing.T) {
	suite.Run(t, new(TypedCodecSuite))
}

func TestStatusOf(t *testing.T) {
	suite.Run(t, new(StatusSuite))
}

type StatusSuite struct {
	suite.Suite
}

func (s *StatusSuite) TestMapping() {
	s.Equal(StatusSuccess, StatusOf(nil))
	s.Equal(StatusSessionWithIDAlreadyExists, StatusOf(merr.WrapErrSessionDuplicateID("ABC123")))
	s.Equal(StatusAlreadyAssociatedWithGame, StatusOf(merr.WrapErrSessionAlreadyJoined("ABC123")))
	s.Equal(StatusInvalidSessionID, StatusOf(merr.WrapErrSessionNotFound("ABC123")))
	s.Equal(StatusPlayerNameAlreadyTaken, StatusOf(merr.WrapErrSessionNameTaken("ABC123", "Alice")))
	s.Equal(StatusNoAssociatedGame, StatusOf(merr.ErrSessionNotJoined))
	s.Equal(StatusServerError, StatusOf(merr.WrapErrIoFailed("k", merr.ErrIoFailed)))
}
