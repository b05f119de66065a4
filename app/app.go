package app

import (
	"context"
	"log"
	"time"

	"github.com/igor04091968/sing-l2tp/api"
	"github.com/igor04091968/sing-l2tp/config"
	"github.com/igor04091968/sing-l2tp/cronjob"
	"github.com/igor04091968/sing-l2tp/database"
	"github.com/igor04091968/sing-l2tp/executor"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/netif"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/igor04091968/sing-l2tp/telegram"

	"github.com/op/go-logging"
	"github.com/spf13/afero"
)

type APP struct {
	settings       *config.Settings
	bundle         *service.ServicesBundle
	apiServer      *api.Server
	cronJob        *cronjob.CronJob
	telegramConfig *telegram.Config
	botCancel      context.CancelFunc
}

func NewApp() *APP {
	return &APP{}
}

// Init loads settings, opens the store and wires the services. It is
// shared by the one-shot CLI commands and the daemon.
func (a *APP) Init() error {
	a.settings = config.Load()
	InitLog()

	err := database.InitDB(a.settings.DBPath)
	if err != nil {
		return err
	}

	a.bundle = service.NewServicesBundle(service.NewStoreService(database.GetDB()), service.HostDeps{
		Exec:       executor.NewShell(a.settings.CommandTimeout),
		Links:      netif.NewNetlink(),
		Fs:         afero.NewOsFs(),
		SystemdDir: a.settings.SystemdDir,
		ModulesDir: a.settings.ModulesLoadDir,
	})
	return nil
}

// Start runs the daemon parts: an initial apply, the cron jobs, the HTTP
// API and, when configured, the Telegram bot.
func (a *APP) Start() error {
	log.Printf("%v %v", config.GetName(), config.GetVersion())

	report := a.bundle.Lifecycle.Apply(context.Background())
	for _, line := range report.Lines {
		logger.Info(line)
	}

	a.cronJob = cronjob.NewCronJob()
	err := a.cronJob.Start(time.Local, a.settings.Reconcile, a.bundle.Lifecycle)
	if err != nil {
		return err
	}

	a.apiServer = api.NewServer(a.bundle)
	err = a.apiServer.Start(a.settings.Listen)
	if err != nil {
		return err
	}

	a.initTelegramConfig()
	if a.telegramConfig != nil && a.telegramConfig.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		a.botCancel = cancel
		go telegram.Start(ctx, a.telegramConfig, a)
	}
	return nil
}

func (a *APP) Stop() {
	if a.botCancel != nil {
		a.botCancel()
		telegram.Stop()
	}
	if a.cronJob != nil {
		a.cronJob.Stop()
	}
	if a.apiServer != nil {
		err := a.apiServer.Stop()
		if err != nil {
			logger.Warning("stop API server err:", err)
		}
	}
	err := database.Close()
	if err != nil {
		logger.Warning("close database err:", err)
	}
}

// InitLog sets the log level from settings.
func InitLog() {
	switch config.GetLogLevel() {
	case config.Debug:
		logger.InitLogger(logging.DEBUG)
	case config.Info:
		logger.InitLogger(logging.INFO)
	case config.Warn:
		logger.InitLogger(logging.WARNING)
	case config.Error:
		logger.InitLogger(logging.ERROR)
	default:
		log.Fatal("unknown log level:", config.GetLogLevel())
	}
}

func (a *APP) initTelegramConfig() {
	cfg, err := telegram.LoadConfig(a.settings.TelegramConfig)
	if err != nil {
		logger.Warning("Error reading telegram config:", err)
		return
	}
	if cfg == nil {
		logger.Info(a.settings.TelegramConfig, " not found, Telegram bot is disabled.")
		return
	}
	a.telegramConfig = cfg
}

func (a *APP) GetServices() *service.ServicesBundle {
	return a.bundle
}

func (a *APP) GetLifecycle() *service.LifecycleService {
	return a.bundle.Lifecycle
}

func (a *APP) GetLogs(limit int, level string) []string {
	return logger.GetLogs(limit, level)
}
