// Command server is the application entry point: it loads configuration,
// constructs every collaborator (database, AWS clients, cache, schedule,
// auth, transcript, vote, room manager) and starts the HTTP/WS front,
// shutting down gracefully on SIGINT/SIGTERM. Grounded on the teacher's
// cmd/server/main.go wiring order and Start/Shutdown lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"eum-captions/internal/asr"
	"eum-captions/internal/auth"
	"eum-captions/internal/awsclient"
	"eum-captions/internal/cache"
	"eum-captions/internal/config"
	"eum-captions/internal/database"
	"eum-captions/internal/logging"
	"eum-captions/internal/mt"
	"eum-captions/internal/room"
	"eum-captions/internal/roommanager"
	"eum-captions/internal/schedule"
	"eum-captions/internal/server"
	"eum-captions/internal/storage"
	"eum-captions/internal/transcript"
	"eum-captions/internal/translation"
	"eum-captions/internal/vote"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dev := flag.Bool("dev", false, "use development logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sugar, err := logging.New(*dev)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer sugar.Sync() //nolint:errcheck

	db, err := database.Connect(cfg.Database.DSN, sugar)
	if err != nil {
		sugar.Fatalw("connect to database", "error", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		sugar.Fatalw("auto migrate", "error", err)
	}

	ctx := context.Background()
	pool, err := awsclient.New(ctx, awsclient.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SampleRate:      cfg.AWS.SampleRate,
	}, sugar)
	if err != nil {
		sugar.Fatalw("build aws client pool", "error", err)
	}
	defer pool.Close()

	translationCache := cache.New(cfg.MT.PollInterval*10, time.Minute)
	defer translationCache.Close()

	asrCollaborator := asr.New(pool.AWSConfig, pool.TranscribeBreaker, sugar)
	mtCollaborator := mt.New(pool.AWSConfig, pool.TranslateBreaker, translationCache, sugar)

	translationWorkers := awsclient.NewWorkerPool(ctx, "translation", 8, 64, sugar)
	defer translationWorkers.Close()

	archiver, err := storage.NewTranscriptArchiver(pool.AWSConfig, cfg.S3)
	if err != nil {
		sugar.Fatalw("build transcript archiver", "error", err)
	}

	transcriptStore := transcript.NewStore(cfg.Transcript.Root, db, archiver, sugar)
	voteTally, err := vote.NewTally(cfg.Votes.Dir, db, sugar)
	if err != nil {
		sugar.Fatalw("build vote tally", "error", err)
	}

	redisClient, err := cache.NewRedisClient(cfg.Redis.Addr)
	if err != nil {
		sugar.Warnw("redis unavailable, auth store will rely on postgres alone", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	authStore := auth.NewStore(cfg.Auth.HostPassword, cfg.Auth.AdminPassword, cfg.Auth.KeyLifetime, db, redisClient, sugar)

	var fakeNow *time.Time
	if cfg.Schedule.FakeNow != "" {
		t, err := time.Parse(time.RFC3339, cfg.Schedule.FakeNow)
		if err != nil {
			sugar.Fatalw("parse schedule.fake_now", "error", err)
		}
		fakeNow = &t
	}
	scheduleProvider := schedule.NewProvider(cfg.Schedule.URL, cfg.Schedule.CacheTime, splitFilter(cfg.Schedule.Filter), fakeNow, sugar)

	roomDeps := room.Deps{
		ASRCollaborator:   asrCollaborator,
		Translator:        mtCollaborator,
		Pool:              translationWorkers,
		AWSPool:           pool,
		TranscriptStore:   transcriptStore,
		SampleRate:        pool.SampleRate(),
		CompareDepth:      cfg.Room.CompareDepth,
		LastN:             cfg.Room.LastN,
		DeactivationDelay: cfg.Room.IdleCloseDelay,
		TranslationConfig: translation.Config{PollInterval: cfg.MT.PollInterval, BatchPerLang: cfg.MT.BatchPerLang},
		Log:               sugar,
	}

	roomManager := roommanager.New(
		roomDeps,
		scheduleProvider,
		cfg.Room.DevRoomID,
		cfg.ASR.SupportedLangs,
		resolveMTSupportedLangs(ctx, cfg, mtCollaborator, sugar),
		cfg.Room.MaxActiveRooms,
		cfg.Room.IdleCloseDelay,
		sugar,
	)
	if err := roomManager.RefreshFromSchedule(ctx); err != nil {
		sugar.Warnw("initial schedule refresh failed, continuing with dev room only", "error", err)
	}

	srv := server.New(cfg, server.Deps{
		Auth:       authStore,
		Schedule:   scheduleProvider,
		Rooms:      roomManager,
		Transcript: transcriptStore,
		Votes:      voteTally,
		Log:        sugar,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		sugar.Info("shutting down server")
		if err := srv.Shutdown(); err != nil {
			sugar.Errorw("server shutdown error", "error", err)
		}
	}()

	sugar.Infow("starting server", "port", cfg.Server.Port)
	if err := srv.Start(); err != nil {
		sugar.Fatalw("server stopped", "error", err)
	}
}

func splitFilter(filter string) []string {
	if filter == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(filter); i++ {
		if i == len(filter) || filter[i] == ',' {
			if i > start {
				out = append(out, filter[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// resolveMTSupportedLangs caches the MT-supported target-language set at
// startup. It prefers cfg.MT.SupportedLangsPath (an operator-run endpoint
// that fronts Amazon Translate with a capability filter) when configured,
// falls back to Amazon Translate's own ListLanguages, and as a last resort
// mirrors the ASR source languages so the room manager always has a
// non-empty target set to validate against.
func resolveMTSupportedLangs(ctx context.Context, cfg *config.Config, translator *mt.Collaborator, logger *zap.SugaredLogger) []string {
	if cfg.MT.SupportedLangsPath != "" {
		langs, err := mt.FetchSupportedLanguagesFromEndpoint(ctx, cfg.MT.SupportedLangsPath)
		if err == nil && len(langs) > 0 {
			return langs
		}
		logger.Warnw("mt supported-langs endpoint unavailable, falling back to Amazon Translate", "error", err, "path", cfg.MT.SupportedLangsPath)
	}

	langs, err := translator.ListSupportedLanguages(ctx)
	if err == nil && len(langs) > 0 {
		return langs
	}
	logger.Warnw("list translate languages failed, falling back to ASR source languages", "error", err)
	return cfg.ASR.SupportedLangs
}
