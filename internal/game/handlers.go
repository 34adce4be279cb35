package game

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/network/router"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// RegisterRoutes 将对局相关的四类请求挂到路由表上。
//
// 业务失败不会作为 error 上抛：每个请求都有对应的响应消息，
// 失败以响应内的 status 字段回给请求方，连接保持可用。
func RegisterRoutes(r router.Router, dir *Directory) error {
	return merr.Combine(
		r.Register(wire.TagCreateGame, router.Route{
			NewRequest: func() any { return &wire.CreateGameRequest{} },
			Handler:    createGameHandler(dir),
			RespTag:    wire.TagCreateGameResponse,
		}),
		r.Register(wire.TagJoinGame, router.Route{
			NewRequest: func() any { return &wire.JoinGameRequest{} },
			Handler:    joinGameHandler(dir),
			RespTag:    wire.TagJoinGameResponse,
		}),
		r.Register(wire.TagLeaveGame, router.Route{
			NewRequest: func() any { return &wire.LeaveGameRequest{} },
			Handler:    leaveGameHandler(dir),
			RespTag:    wire.TagLeaveGameResponse,
		}),
		r.Register(wire.TagGameAction, router.Route{
			NewRequest: func() any { return &wire.GameAction{} },
			Handler:    gameActionHandler(dir),
			RespTag:    wire.TagGameActionResponse,
		}),
	)
}

func createGameHandler(dir *Directory) router.Handler {
	return func(sess session.Session, req any) (any, error) {
		request := req.(*wire.CreateGameRequest)

		id, err := dir.Create(sess, request.GameType, request.SessionID)
		if err != nil {
			logRejected(sess, wire.TagCreateGame, err)
			return &wire.CreateGameResponse{Status: wire.StatusOf(err)}, nil
		}
		return &wire.CreateGameResponse{
			Status:    wire.StatusSuccess,
			SessionID: id,
		}, nil
	}
}

func joinGameHandler(dir *Directory) router.Handler {
	return func(sess session.Session, req any) (any, error) {
		request := req.(*wire.JoinGameRequest)

		opponents, err := dir.Join(sess, request.SessionID, request.Greeting)
		if err != nil {
			logRejected(sess, wire.TagJoinGame, err)
			return &wire.JoinGameResponse{Status: wire.StatusOf(err)}, nil
		}
		return &wire.JoinGameResponse{
			Status:    wire.StatusSuccess,
			Opponents: opponents,
		}, nil
	}
}

func leaveGameHandler(dir *Directory) router.Handler {
	return func(sess session.Session, req any) (any, error) {
		request := req.(*wire.LeaveGameRequest)

		if err := dir.Leave(sess, request.Goodbye); err != nil {
			logRejected(sess, wire.TagLeaveGame, err)
			return &wire.Response{Status: wire.StatusOf(err)}, nil
		}
		return &wire.Response{Status: wire.StatusSuccess}, nil
	}
}

func gameActionHandler(dir *Directory) router.Handler {
	return func(sess session.Session, req any) (any, error) {
		action := req.(*wire.GameAction)

		g, err := dir.GameOf(sess)
		if err != nil {
			logRejected(sess, wire.TagGameAction, err)
			return &wire.Response{Status: wire.StatusOf(err)}, nil
		}

		// 发送方由服务端盖章，客户端传入的值一律覆盖。
		action.Sender = sess.Name()
		g.BroadcastFrom(sess.ID(), wire.TagGameAction, action)

		return &wire.Response{Status: wire.StatusSuccess}, nil
	}
}

func logRejected(sess session.Session, tag string, err error) {
	log.RatedInfo(10, "request rejected",
		zap.String("tag", tag),
		zap.String("player", sess.Name()),
		zap.Error(err))
}
