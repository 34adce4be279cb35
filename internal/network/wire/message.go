package wire

import (
	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// 对局消息的 tag 常量。
//
// 注意：这些字符串是线上协议的一部分，客户端与服务端必须保持一致，
// 修改任何一个都属于破坏性协议变更。
const (
	TagCreateGame = "createGame"
	TagJoinGame   = "joinGame"
	TagLeaveGame  = "leaveGame"
	TagGameAction = "gameAction"

	TagCreateGameResponse = "createGameResponse"
	TagJoinGameResponse   = "joinGameResponse"
	TagLeaveGameResponse  = "leaveGameResponse"
	TagGameActionResponse = "gameActionResponse"

	TagPlayerJoined = "playerJoined"
	TagPlayerLeft   = "playerLeft"

	// TagError 仅在带判别字段的通道上使用，
	// 用于在关闭连接前告知对端出错原因。
	TagError = "error"

	// TagInitialState 仅在带判别字段的通道上使用，
	// 携带发给新成员的完整状态快照。
	TagInitialState = "initialState"
)

// ResponseStatus 是响应消息中的状态枚举，随协议传输。
type ResponseStatus string

const (
	StatusSuccess                    ResponseStatus = "SUCCESS"
	StatusSessionWithIDAlreadyExists ResponseStatus = "SESSION_WITH_ID_ALREADY_EXISTS"
	StatusAlreadyAssociatedWithGame  ResponseStatus = "ALREADY_ASSOCIATED_WITH_GAME"
	StatusInvalidSessionID           ResponseStatus = "INVALID_SESSION_ID"
	StatusPlayerNameAlreadyTaken     ResponseStatus = "PLAYER_NAME_ALREADY_TAKEN"
	StatusNoAssociatedGame           ResponseStatus = "NO_ASSOCIATED_GAME"
	StatusServerError                ResponseStatus = "SERVER_ERROR"
)

// StatusOf 将内部错误映射为线上协议的响应状态。
// nil 映射为 SUCCESS，未识别的错误一律归入 SERVER_ERROR。
func StatusOf(err error) ResponseStatus {
	if err == nil {
		return StatusSuccess
	}

	switch merr.Code(err) {
	case merr.Code(merr.ErrSessionDuplicateID):
		return StatusSessionWithIDAlreadyExists
	case merr.Code(merr.ErrSessionAlreadyJoined), merr.Code(merr.ErrRoomAlreadyJoined):
		return StatusAlreadyAssociatedWithGame
	case merr.Code(merr.ErrSessionNotFound), merr.Code(merr.ErrRoomNotFound):
		return StatusInvalidSessionID
	case merr.Code(merr.ErrSessionNameTaken):
		return StatusPlayerNameAlreadyTaken
	case merr.Code(merr.ErrSessionNotJoined):
		return StatusNoAssociatedGame
	default:
		return StatusServerError
	}
}

// CreateGameRequest 请求创建一局新对局。
// SessionID 为空时由服务端生成对局编号。
type CreateGameRequest struct {
	GameType  string `json:"gameType"`
	SessionID string `json:"sessionID"`
	Greeting  string `json:"greeting"`
}

// JoinGameRequest 请求加入已存在的对局。
type JoinGameRequest struct {
	SessionID string `json:"sessionID"`
	Greeting  string `json:"greeting"`
}

// LeaveGameRequest 请求离开当前关联的对局。
type LeaveGameRequest struct {
	Goodbye string `json:"goodbye"`
}

// GameAction 是对局内透传的业务动作。
// Payload 对网络层完全不透明，原样转发给同一对局的其他成员。
// Sender 由服务端在转发前盖章，忽略客户端传入的值。
type GameAction struct {
	Payload     json.RawMessage `json:"payload"`
	PrettyPrint bool            `json:"prettyPrint,omitempty"`
	Sender      string          `json:"sender,omitempty"`
}

// CreateGameResponse 回应 CreateGameRequest。
// 创建成功时 SessionID 携带最终生效的对局编号。
type CreateGameResponse struct {
	Status    ResponseStatus `json:"status"`
	SessionID string         `json:"sessionID,omitempty"`
}

// Response 是 join/leave/gameAction 共用的应答消息。
type Response struct {
	Status ResponseStatus `json:"status"`
	Errors []string       `json:"errors,omitempty"`
}

// JoinGameResponse 回应 JoinGameRequest。
// 加入成功时 Opponents 携带对局内已有的其他玩家名。
type JoinGameResponse struct {
	Status    ResponseStatus `json:"status"`
	Opponents []string       `json:"opponents,omitempty"`
}

// PlayerJoinedNotification 通知对局内其他成员有新玩家加入。
type PlayerJoinedNotification struct {
	Name     string `json:"name"`
	Greeting string `json:"greeting,omitempty"`
}

// PlayerLeftNotification 通知对局内其他成员有玩家离开。
type PlayerLeftNotification struct {
	Name    string `json:"name"`
	Goodbye string `json:"goodbye,omitempty"`
}

// ErrorNotification 在关闭连接前告知对端出错原因。
type ErrorNotification struct {
	Message string `json:"message"`
}

// InitialStateNotification 携带发给新成员的完整状态快照。
type InitialStateNotification struct {
	State json.RawMessage `json:"state"`
}
