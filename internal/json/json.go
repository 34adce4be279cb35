package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// 本包封装 bytedance/sonic，对外提供与 encoding/json 兼容的最小 API。
//
// 约定：
//   - 网络层与业务层统一通过本包进行 JSON 编解码，避免直接依赖具体实现；
//   - 使用 ConfigStd 以保持与标准库一致的行为（HTML 转义、key 排序等）。
var api = sonic.ConfigStd

// RawMessage 与 encoding/json.RawMessage 语义一致，表示延迟解码的原始 JSON 字节。
type RawMessage []byte

// MarshalJSON 返回 m 本身。
func (m RawMessage) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON 将 data 保存到 m 中。
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	*m = append((*m)[0:0], data...)
	return nil
}

// Marshal 将对象编码为 JSON 字节序列。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal 将 JSON 字节序列解码到目标对象。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// NewDecoder 创建一个从 r 读取的流式解码器。
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}

// NewEncoder 创建一个写入 w 的流式编码器。
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// Valid 报告 data 是否为合法 JSON。
func Valid(data []byte) bool {
	return api.Valid(data)
}
