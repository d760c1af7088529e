package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/pflag"
	"github.com/tunerdesk/calsync/internal/calendar"
	"github.com/tunerdesk/calsync/internal/config"
	"github.com/tunerdesk/calsync/internal/database"
	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/events"
	"github.com/tunerdesk/calsync/internal/http"
	"github.com/tunerdesk/calsync/internal/logger"
	"github.com/tunerdesk/calsync/internal/oauth"
	"github.com/tunerdesk/calsync/internal/provider"
	"github.com/tunerdesk/calsync/internal/scheduler"
	"github.com/tunerdesk/calsync/internal/server"
	"github.com/tunerdesk/calsync/internal/sync"
	"github.com/tunerdesk/calsync/internal/update"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to configuration file")
	pflag.Parse()

	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	// setup server-sent-events
	serverEvents := sse.New()
	serverEvents.CreateStreamWithOpts("logs", sse.StreamOpts{MaxEntries: 1000, AutoReplay: true})

	// register SSE writer
	log.RegisterSSEWriter(serverEvents)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting calsync")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	// setup repos
	var (
		connectionRepo  = database.NewConnectionRepo(log, db)
		appointmentRepo = database.NewAppointmentRepo(log, db)
		syncLogRepo     = database.NewSyncLogRepo(log, db)
	)

	// setup oauth providers
	var (
		googleOAuth    = oauth.NewGoogleProvider(log, cfg.Config.OAuth.Google)
		microsoftOAuth = oauth.NewMicrosoftProvider(log, cfg.Config.OAuth.Microsoft)
	)

	oauthProviders := map[domain.CalendarProvider]oauth.Provider{
		domain.CalendarProviderGoogle:    googleOAuth,
		domain.CalendarProviderMicrosoft: microsoftOAuth,
	}

	// setup provider adapters
	adapters := provider.NewRegistry(
		provider.NewGoogleAdapter(log, googleOAuth, connectionRepo, cfg.Config),
		provider.NewMicrosoftAdapter(log, microsoftOAuth, connectionRepo, cfg.Config),
	)

	// setup services
	var (
		updateService     = update.NewUpdate(log, cfg.Config)
		syncService       = sync.NewService(log, bus, adapters, connectionRepo, appointmentRepo, syncLogRepo)
		dispatcher        = sync.NewDispatcher(log, syncService, connectionRepo, cfg.Config.Sync.MaxConcurrentSyncs)
		schedulingService = scheduler.NewService(log, cfg.Config, updateService, connectionRepo, adapters)
		calendarService   = calendar.NewService(log, oauthProviders, adapters, connectionRepo, syncLogRepo, syncService, dispatcher)
	)

	// register event subscribers
	events.NewSubscribers(log, bus)

	errorChannel := make(chan error)

	go func() {
		httpServer := http.NewServer(
			log,
			cfg,
			serverEvents,
			db,
			version,
			commit,
			date,
			calendarService,
			updateService,
			connectionRepo,
			dispatcher,
		)
		errorChannel <- httpServer.Open()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	srv := server.NewServer(log, cfg.Config, schedulingService, updateService)
	if err := srv.Start(); err != nil {
		log.Fatal().Stack().Err(err).Msg("could not start server")
		return
	}

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			log.Log().Msg("shutting down server sighup")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(1)
		case syscall.SIGINT, syscall.SIGQUIT:
			log.Info().Msg("Shutting down server due to SIGINT/SIGQUIT...")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(0)
		case syscall.SIGKILL, syscall.SIGTERM:
			log.Info().Msg("Shutting down server due to SIGKILL/SIGTERM...")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(0)
		}
	}
}
