package application

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/tabletop-garden-go/internal/game"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/acceptor"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/router"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/session"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/internal/room"
	"github.com/lk2023060901/tabletop-garden-go/pkg/kv"
	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/metrics"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/etcd"
)

// ServerConfig 为游戏服务的配置结构，从配置文件的顶层反序列化。
type ServerConfig struct {
	Server struct {
		// Listen 为监听地址，如 ":8080"。
		Listen string `mapstructure:"listen"`
		// SweepIntervalSeconds 为空对局清扫周期，0 表示关闭。
		SweepIntervalSeconds int `mapstructure:"sweep-interval-seconds"`
	} `mapstructure:"server"`

	KV struct {
		// Type 可选 memory、embed、etcd。
		Type      string   `mapstructure:"type"`
		Endpoints []string `mapstructure:"endpoints"`
		RootPath  string   `mapstructure:"root-path"`
		DataDir   string   `mapstructure:"data-dir"`
	} `mapstructure:"kv"`

	Network struct {
		// Secret 非空时在启动阶段写入存储，
		// 供 memory/embed 模式自举；生产环境由运维预先写入 etcd。
		Secret string `mapstructure:"secret"`
	} `mapstructure:"network"`
}

func (c *ServerConfig) withDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.KV.Type == "" {
		c.KV.Type = "memory"
	}
	if c.KV.RootPath == "" {
		c.KV.RootPath = "tabletop"
	}
	if c.KV.DataDir == "" {
		c.KV.DataDir = "./etcd-data"
	}
}

// Server 组装游戏服务的全部组件：握手认证、对局入口、房间入口与指标端点。
type Server struct {
	cfg ServerConfig

	store    kv.KV
	sessions *session.BaseSessionManager
	dir      *game.Directory
	rooms    *room.Manager

	httpServer *http.Server
}

// NewServer 从已完成 Bootstrap 的 Application 构建服务实例。
func NewServer(app *Application) (*Server, error) {
	var cfg ServerConfig
	if app.Config() != nil {
		if err := app.Config().Unmarshal(&cfg); err != nil {
			return nil, errors.Wrap(err, "unmarshal server config")
		}
	}
	cfg.withDefaults()

	return &Server{
		cfg:      cfg,
		sessions: session.NewBaseSessionManager(),
		dir:      game.NewDirectory(),
		rooms:    room.NewManager(),
	}, nil
}

// Rooms 返回房间管理器，供宿主程序注册业务实例。
func (s *Server) Rooms() *room.Manager {
	return s.rooms
}

// Run 启动服务并阻塞运行，ctx 取消时优雅退出。
//
// 网络密钥加载失败视为致命错误：握手凭据缺失时服务不可对外提供服务。
func (s *Server) Run(ctx context.Context) error {
	store, err := s.openKV()
	if err != nil {
		return err
	}
	s.store = store
	defer func() { _ = store.Close() }()

	if s.cfg.Network.Secret != "" {
		if err := store.Save(ctx, acceptor.SecretKey, s.cfg.Network.Secret); err != nil {
			return errors.Wrap(err, "bootstrap network secret")
		}
	}

	auth := acceptor.NewAuthenticator(store)
	if err := auth.LoadSecret(ctx); err != nil {
		return errors.Wrap(err, "load network secret")
	}

	r := router.New()
	if err := game.RegisterRoutes(r, s.dir); err != nil {
		return err
	}

	if s.cfg.Server.SweepIntervalSeconds > 0 {
		s.dir.StartSweeper(ctx, time.Duration(s.cfg.Server.SweepIntervalSeconds)*time.Second)
	}

	a := acceptor.New(ctx, auth, s.sessions, r, wire.DelimitedCodec{}, s.dir, acceptor.Config{})
	channel := room.NewChannel(ctx, auth, s.sessions, s.rooms)

	metrics.Register(metrics.GetRegisterer())

	mux := http.NewServeMux()
	mux.Handle("/chat", a)
	mux.Handle("/ws", channel)
	mux.Handle("/internal", channel)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Listen,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("game server listening", zap.String("address", s.cfg.Server.Listen))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("game server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// openKV 按配置打开密钥存储。
func (s *Server) openKV() (kv.KV, error) {
	switch s.cfg.KV.Type {
	case "memory":
		return kv.NewMemoryKV(), nil
	case "embed":
		if err := etcd.InitEtcdServer(true, "", s.cfg.KV.DataDir, "default", "info"); err != nil {
			return nil, errors.Wrap(err, "start embedded etcd")
		}
		client, err := etcd.GetEmbedEtcdClient()
		if err != nil {
			return nil, err
		}
		return kv.NewEtcdKV(client, s.cfg.KV.RootPath), nil
	case "etcd":
		if len(s.cfg.KV.Endpoints) == 0 {
			return nil, errors.New("kv.endpoints is required when kv.type is etcd")
		}
		client, err := etcd.GetRemoteEtcdClient(s.cfg.KV.Endpoints)
		if err != nil {
			return nil, errors.Wrap(err, "connect etcd")
		}
		return kv.NewEtcdKV(client, s.cfg.KV.RootPath), nil
	default:
		return nil, errors.Newf("unknown kv type %q", s.cfg.KV.Type)
	}
}
