package application

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/tabletop-garden-go/pkg/log"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/viper"
)

// Application 是游戏服务进程的运行时容器，持有配置并初始化公共依赖。
type Application struct {
	cfg *viper.Config
}

func New() *Application {
	return &Application{}
}

// Bootstrap 解析命令行参数并按以下优先级加载配置文件，随后初始化日志：
//  1. 默认：./config.yaml
//  2. 环境变量：TABLETOP_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
func (a *Application) Bootstrap() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	return a.initLogging()
}

// Config 返回已加载的配置。
func (a *Application) Config() *viper.Config {
	return a.cfg
}

func (a *Application) loadConfig() (*viper.Config, error) {
	configPath := "./config.yaml"

	if envPath := os.Getenv("TABLETOP_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, errors.New("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
			}
		}
	}

	cfg := viper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %q", configPath)
	}
	return cfg, nil
}

// initLogging 初始化全局日志。
//
// 基础参数来自 TABLETOP_LOG_* 环境变量：
//   - TABLETOP_LOG_LEVEL：日志级别（默认 info）。
//   - TABLETOP_LOG_FORMAT：日志格式，text 或 json（默认 text）。
//   - TABLETOP_LOG_STDOUT：是否输出到标准输出（默认 true）。
//   - TABLETOP_LOG_FILE_DIR / TABLETOP_LOG_FILE：文件日志目录与文件名。
//
// 配置文件中的 logging 段（log.Config 结构）存在时整体覆盖环境变量。
func (a *Application) initLogging() error {
	cfg := &log.Config{
		Level:               getenvDefault("TABLETOP_LOG_LEVEL", "info"),
		Format:              getenvDefault("TABLETOP_LOG_FORMAT", "text"),
		Stdout:              getenvBool("TABLETOP_LOG_STDOUT", true),
		DisableErrorVerbose: true,
		File: log.FileLogConfig{
			RootPath: getenvDefault("TABLETOP_LOG_FILE_DIR", ""),
			Filename: getenvDefault("TABLETOP_LOG_FILE", ""),
		},
	}

	if a.cfg != nil {
		fileCfg := log.Config{}
		if err := a.cfg.UnmarshalKey("logging", &fileCfg); err != nil {
			return err
		}
		if fileCfg.Level != "" {
			cfg = &fileCfg
		}
	}

	logger, props, err := log.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
