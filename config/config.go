package config

import (
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type LogLevel string

const (
	Debug LogLevel = "debug"
	Info  LogLevel = "info"
	Warn  LogLevel = "warn"
	Error LogLevel = "error"
)

const (
	name    = "sing-l2tp"
	version = "1.2.0"
)

type Settings struct {
	DBPath         string        `envconfig:"DB_PATH" default:"/etc/sing-l2tp/sing-l2tp.db"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	Debug          bool          `envconfig:"DEBUG" default:"false"`
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"30s"`
	Listen         string        `envconfig:"LISTEN" default:"127.0.0.1:2090"`
	Reconcile      string        `envconfig:"RECONCILE" default:"@every 5m"`
	TelegramConfig string        `envconfig:"TELEGRAM_CONFIG" default:"/etc/sing-l2tp/telegram_config.json"`
	SystemdDir     string        `envconfig:"SYSTEMD_DIR" default:"/etc/systemd/system"`
	ModulesLoadDir string        `envconfig:"MODULES_LOAD_DIR" default:"/etc/modules-load.d"`
}

var (
	cfg      Settings
	loadOnce sync.Once
)

// Load reads SING_L2TP_* variables. It is safe to call more than once.
func Load() *Settings {
	loadOnce.Do(func() {
		if err := envconfig.Process("SING_L2TP", &cfg); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	})
	return &cfg
}

func Get() *Settings {
	return Load()
}

func GetName() string {
	return name
}

func GetVersion() string {
	return version
}

func GetDBPath() string {
	return Load().DBPath
}

func GetLogLevel() LogLevel {
	if IsDebug() {
		return Debug
	}
	return LogLevel(Load().LogLevel)
}

func IsDebug() bool {
	return Load().Debug
}
