package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alfred/config"
	"alfred/internal/commands"
	"alfred/internal/services/audio"
	"alfred/internal/services/voice"
	"alfred/internal/services/youtube"
	"alfred/pkg/dependency"
	"alfred/pkg/logger"
	"alfred/pkg/metrics"

	"github.com/bwmarrin/discordgo"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

const (
	shutdownTimeout = 15 * time.Second
	collectInterval = 30 * time.Second
	memoryLogPeriod = 5 * time.Minute
	rateLimitBucket = "complicated"
	statusActivity  = "music 🎵 | %shelp"
	apologyTrigger  = "!przepros"
	apologyReply    = "My apologies, my lord."
	discordIntents  = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildVoiceStates | discordgo.IntentsMessageContent | discordgo.IntentsDirectMessages
)

// Application represents the main application
type Application struct {
	config    *config.Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	discord   *discordgo.Session
	manager   *audio.Manager
	router    *commands.Router
	collector *metrics.MonitoringCollector
	ctx       context.Context
	cancel    context.CancelFunc
}

// Version information (should be set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(logger.LoggerConfig{
		Level:            cfg.Logging.Level,
		OutputFile:       cfg.Logging.OutputFile,
		MaxFileSize:      cfg.Logging.MaxFileSize,
		MaxBackups:       cfg.Logging.MaxBackups,
		MaxAge:           cfg.Logging.MaxAge,
		EnableConsole:    cfg.Logging.EnableConsole,
		EnableFile:       cfg.Logging.EnableFile,
		EnableJSON:       cfg.Logging.EnableJSON,
		EnableStackTrace: cfg.Logging.EnableStackTrace,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger.LogStartup(Version, BuildTime, GitCommit)
	appLogger.LogConfiguration(map[string]interface{}{
		"bot_token":     cfg.GetRedactedToken(),
		"youtube_token": cfg.GetRedactedAPIKey(),
		"prefix":        cfg.Discord.CommandPrefix,
		"debug_mode":    cfg.Logging.Level == "DEBUG",
		"session":       cfg.Session,
		"rate_limit":    cfg.RateLimit,
		"features":      cfg.Features,
	})

	if err := checkDependencies(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal("Dependency check failed", err)
	}

	app := &Application{
		config: cfg,
		logger: appLogger,
		// Always on: the commands command reads the usage counters.
		metrics: metrics.NewMetrics(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initialize(); err != nil {
		appLogger.Fatal("Failed to initialize application", err)
	}

	if err := app.start(); err != nil {
		appLogger.Fatal("Failed to start application", err)
	}

	app.waitForShutdown()

	if err := app.shutdown(); err != nil {
		appLogger.Error("Error during shutdown", err)
	}

	appLogger.LogShutdown("Signal received", true)
}

func (app *Application) initialize() error {
	session, err := discordgo.New("Bot " + app.config.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordIntents
	app.discord = session

	resolver, err := app.buildResolver()
	if err != nil {
		return err
	}

	responder := commands.NewDiscordResponder(session)
	announcer := commands.NewAnnouncer(responder, app.logger)

	transport := voice.NewTransport(session, voice.NewEncodeOptions(app.config.Audio), app.logger)
	app.manager = audio.NewManager(
		audio.Config{
			ResolveTimeout: app.config.Session.ResolveTimeout,
			JoinTimeout:    app.config.Session.JoinTimeout,
		},
		audio.Dependencies{
			Transport: transport,
			Resolver:  resolver,
			History:   audio.NewHistory(app.config.Queue.HistorySize),
			Metrics:   app.metrics,
			Logger:    app.logger,
			Listener:  announcer,
		},
	)

	var bucket *commands.Bucket
	if app.config.Features.EnableRateLimiting {
		bucket = commands.NewBucket(rateLimitBucket, app.config.RateLimit.Window, app.config.RateLimit.Burst)
	}

	app.router = commands.NewRouter(app.config.Discord.CommandPrefix, responder, app.metrics, app.logger)
	app.router.SetMessageLimit(app.config.Discord.MaxMessageLength)
	app.router.AddExactReply(apologyTrigger, apologyReply)
	app.router.Register(commands.GeneralCommands(app.router, session, app.metrics, bucket)...)
	app.router.Register(commands.GuildCommands(app.config.Discord.RoleLookupRoles, app.config.Discord.JDImagePath)...)
	app.router.Register(commands.MusicCommands(app.manager, bucket, announcer)...)

	app.setupDiscordHandlers()

	app.logger.Info("Application initialized successfully", logger.Fields{
		"commands": len(app.router.Commands()),
	})
	return nil
}

// buildResolver prefers the Data API when a key is configured and falls back
// to the keyless clients otherwise.
func (app *Application) buildResolver() (*youtube.Resolver, error) {
	cfg := app.config
	log := app.logger.WithComponent("resolver")

	var (
		searcher  youtube.Searcher
		playlists youtube.PlaylistEnumerator
	)

	if cfg.YouTube.APIKey != "" {
		service, err := ytapi.NewService(app.ctx, option.WithAPIKey(cfg.YouTube.APIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create YouTube service: %w", err)
		}
		searcher = youtube.NewDataAPISearcher(service)
		playlists = youtube.NewDataAPIEnumerator(service, cfg.Queue.MaxPlaylistSize)
	} else {
		log.Warn("No YouTube API key configured, using keyless search")
		searcher = youtube.NewKeylessSearcher(&http.Client{Timeout: cfg.YouTube.RequestTimeout})
		playlists = youtube.NewClientEnumerator(cfg.Queue.MaxPlaylistSize)
	}

	if cfg.YouTube.EnableFallback {
		playlists = youtube.NewFallbackEnumerator(playlists, youtube.NewYtdlpEnumerator(cfg.Queue.MaxPlaylistSize), log)
	}

	return youtube.NewResolver(youtube.NewStreamProvider(), searcher, playlists, log), nil
}

func (app *Application) start() error {
	if err := app.discord.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	if app.config.Features.EnableMetrics {
		app.collector = metrics.NewMonitoringCollector(app.metrics, collectInterval)
		app.collector.Track("audio_active_sessions", func() float64 { return float64(app.manager.ActiveSessions()) })
		app.collector.Track("audio_sessions", func() float64 { return float64(app.manager.SessionCount()) })
		go app.collector.Start(app.ctx)
		app.logger.Info("Metrics collection enabled")
	}

	go app.startCleanupRoutines()

	app.logger.Info("Application started successfully")
	return nil
}

func (app *Application) setupDiscordHandlers() {
	app.discord.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		app.router.SetBotID(r.User.ID)
		app.logger.Info("Discord bot ready", logger.Fields{
			"username":    r.User.Username,
			"bot_id":      r.User.ID,
			"guild_count": len(r.Guilds),
		})

		err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
			Activities: []*discordgo.Activity{
				{
					Name: fmt.Sprintf(statusActivity, app.config.Discord.CommandPrefix),
					Type: discordgo.ActivityTypeListening,
				},
			},
			Status: "online",
		})
		if err != nil {
			app.logger.Warn("Failed to set bot status", logger.Fields{"error": err.Error()})
		}

		app.metrics.RecordDiscordEvent("ready")
	})

	app.discord.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		app.logger.LogDiscordEvent("guild_create", logger.Fields{
			"guild_id":   g.ID,
			"guild_name": g.Name,
			"members":    g.MemberCount,
		})
		app.metrics.RecordGuildAction("join", g.ID)
	})

	app.discord.AddHandler(func(s *discordgo.Session, g *discordgo.GuildDelete) {
		app.logger.LogDiscordEvent("guild_delete", logger.Fields{"guild_id": g.ID})
		app.metrics.RecordGuildAction("leave", g.ID)
	})

	app.discord.AddHandler(app.router.MessageHandler(app.ctx))

	app.discord.AddHandler(func(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		app.metrics.RecordDiscordEvent("voice_state_update")
	})

	app.discord.AddHandler(func(s *discordgo.Session, e *discordgo.Disconnect) {
		app.logger.Warn("Discord disconnected", logger.Fields{"event": "disconnect"})
		app.metrics.RecordDiscordEvent("disconnect")
	})
}

func (app *Application) startCleanupRoutines() {
	cleanupTicker := time.NewTicker(app.config.Session.CleanupInterval)
	defer cleanupTicker.Stop()

	memoryTicker := time.NewTicker(memoryLogPeriod)
	defer memoryTicker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-cleanupTicker.C:
			if !app.config.Features.EnableIdleCleanup {
				continue
			}
			if n := app.manager.CleanupInactiveSessions(app.ctx, app.config.Session.IdleTimeout); n > 0 {
				app.logger.Info("Audio session cleanup completed", logger.Fields{"sessions_closed": n})
			}
		case <-memoryTicker.C:
			app.logger.LogMemoryUsage()
			if app.config.Features.EnableMetrics {
				app.logger.LogPerformanceMetrics(app.metrics.GetAllMetrics())
			}
		}
	}
}

func (app *Application) waitForShutdown() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	app.logger.Info("Shutdown signal received")
}

func (app *Application) shutdown() error {
	app.logger.Info("Starting graceful shutdown")

	if app.collector != nil {
		app.collector.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if app.manager != nil {
		if err := app.manager.Shutdown(ctx); err != nil {
			app.logger.Error("Failed to shutdown audio manager", err)
			shutdownErr = err
		}
	}

	// Commands still running see a cancelled context from here on.
	app.cancel()

	if app.discord != nil {
		if err := app.discord.Close(); err != nil {
			app.logger.Error("Failed to close Discord session", err)
			shutdownErr = err
		}
	}

	app.logger.Info("Graceful shutdown completed")
	return shutdownErr
}

func checkDependencies(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	appLogger.Info("Checking system dependencies")

	report := dependency.ValidateEnvironment(ctx, cfg.YouTube.EnableFallback)

	appLogger.Info("Dependency check completed", logger.Fields{
		"severity":           report.Severity,
		"required_missing":   len(report.RequiredMissing),
		"optional_missing":   len(report.OptionalMissing),
		"recommended_action": report.RecommendedAction,
	})

	fmt.Println(report.GenerateReport())

	if !report.IsHealthy() {
		return fmt.Errorf("required dependencies are missing: %v", report.RequiredMissing)
	}

	hasOpus, err := dependency.NewChecker(10*time.Second).HasOpusEncoder(ctx)
	if err != nil {
		appLogger.Warn("Could not inspect FFmpeg encoders", logger.Fields{"error": err.Error()})
	} else if !hasOpus {
		appLogger.Warn("FFmpeg was built without libopus, audio may fail to encode")
	}

	return nil
}
