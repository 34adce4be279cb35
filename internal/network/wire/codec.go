package wire

import (
	"strings"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// Envelope 是一条逻辑消息：tag 标识消息类型，Payload 为未解析的 JSON 载荷。
type Envelope struct {
	Tag     string
	Payload json.RawMessage
}

// Codec 抽象了“逻辑消息 <-> WebSocket 文本帧”的编解码流程。
//
// Pipeline（写出 Encode）：
//   Envelope{Tag+Payload} --> 文本帧字节
//
// Pipeline（读入 Decode）：
//   文本帧字节 --> Envelope{Tag+Payload}
//
// 两种实现对应两种物理帧格式：DelimitedCodec 使用 "tag|json"
// 前缀格式，TypedCodec 使用带 "type" 判别字段的单个 JSON 对象。
type Codec interface {
	// Encode 将逻辑消息编码为文本帧字节。
	Encode(env *Envelope) ([]byte, error)

	// Decode 将文本帧字节解码为逻辑消息。
	// 帧格式不合法时返回 merr.ErrProtocolMalformed。
	Decode(frame []byte) (*Envelope, error)
}

// DelimitedCodec 实现 "tag|json" 前缀帧格式。
// 第一个 '|' 之前为 tag，之后的全部字节为 JSON 载荷。
type DelimitedCodec struct{}

// 编译期断言：确保两种实现都满足 Codec 接口。
var (
	_ Codec = (*DelimitedCodec)(nil)
	_ Codec = (*TypedCodec)(nil)
)

func (DelimitedCodec) Encode(env *Envelope) ([]byte, error) {
	if env == nil || env.Tag == "" {
		return nil, merr.WrapErrParameterInvalidMsg("envelope tag is empty")
	}

	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, merr.WrapErrProtocolMalformed("payload is not valid JSON")
	}

	frame := make([]byte, 0, len(env.Tag)+1+len(payload))
	frame = append(frame, env.Tag...)
	frame = append(frame, '|')
	frame = append(frame, payload...)
	return frame, nil
}

func (DelimitedCodec) Decode(frame []byte) (*Envelope, error) {
	tag, payload, found := strings.Cut(string(frame), "|")
	if !found {
		return nil, merr.WrapErrProtocolMalformed("missing '|' delimiter")
	}
	if tag == "" {
		return nil, merr.WrapErrProtocolMalformed("empty tag")
	}
	if !json.Valid([]byte(payload)) {
		return nil, merr.WrapErrProtocolMalformed("payload is not valid JSON")
	}

	return &Envelope{
		Tag:     tag,
		Payload: json.RawMessage(payload),
	}, nil
}

// TypedCodec 实现带判别字段的 JSON 对象帧格式。
// 帧本身就是载荷，消息类型由对象内的 "type" 字段标识。
type TypedCodec struct{}

// typeProbe 仅用于提取判别字段。
type typeProbe struct {
	Type string `json:"type"`
}

func (TypedCodec) Encode(env *Envelope) ([]byte, error) {
	if env == nil || env.Tag == "" {
		return nil, merr.WrapErrParameterInvalidMsg("envelope tag is empty")
	}

	fields := make(map[string]json.RawMessage)
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &fields); err != nil {
			return nil, merr.WrapErrProtocolMalformed("payload is not a JSON object: %v", err)
		}
	}

	tag, err := json.Marshal(env.Tag)
	if err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(tag)

	return json.Marshal(fields)
}

func (TypedCodec) Decode(frame []byte) (*Envelope, error) {
	var probe typeProbe
	if err := json.Unmarshal(frame, &probe); err != nil {
		return nil, merr.WrapErrProtocolMalformed("frame is not a JSON object: %v", err)
	}
	if probe.Type == "" {
		return nil, merr.WrapErrProtocolMalformed("missing type field")
	}

	payload := make(json.RawMessage, len(frame))
	copy(payload, frame)

	return &Envelope{
		Tag:     probe.Type,
		Payload: payload,
	}, nil
}
