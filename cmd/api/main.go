package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/config"
	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/timesync"
	appHTTP "github.com/cmlabs-hris/hris-checkin-go/internal/handler/http"
	"github.com/cmlabs-hris/hris-checkin-go/internal/migrations"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/cache"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/crm"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/cron"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/database"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/geocode"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/storage"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/timeapi"
	"github.com/cmlabs-hris/hris-checkin-go/internal/repository/postgresql"
	"github.com/cmlabs-hris/hris-checkin-go/internal/repository/remote"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/clock"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/file"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/location"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/session"
)

const version = "v1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With(
		slog.String("app", "hris-checkin"),
		slog.String("env", cfg.App.Env),
	))

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Invalid timezone: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *database.DB
	if cfg.UsesPostgres() {
		dsn := cfg.DatabaseURL()
		if err := migrations.Up(ctx, dsn); err != nil {
			log.Fatal("Failed to run migrations: ", err)
		}
		db, err = database.NewPostgreSQLDB(ctx, dsn, database.PoolConfig{MaxConns: cfg.Database.MaxConns})
		if err != nil {
			log.Fatal("Error connecting to database: ", err)
		}
		defer db.Close()
	}

	var crmClient *crm.Client
	if cfg.CRM.BaseURL != "" {
		crmClient = crm.NewClient(crm.Config{
			BaseURL:      cfg.CRM.BaseURL,
			APIKey:       cfg.CRM.APIKey,
			APIKeyScheme: cfg.CRM.APIKeyScheme,
			Timeout:      cfg.CRM.Timeout,
		})
	}

	// Trusted clock: the record store's own server first, public time APIs as fallback
	var sources []clock.Source
	if cfg.RecordStoreDriver == config.DriverPostgres {
		sources = append(sources, clock.NewSource("postgres", postgresql.NewServerTimeRepository(db).ServerTime))
	}
	if crmClient != nil {
		sources = append(sources, clock.NewSource("crm", crmClient.ServerTime))
	}
	timeClient := timeapi.NewClient(&http.Client{Timeout: cfg.Clock.SourceTimeout}, loc)
	sources = append(sources,
		clock.NewSource("worldtimeapi", func(ctx context.Context) (time.Time, error) {
			return timeClient.WorldTimeAPI(ctx, cfg.TimeAPI.WorldTimeAPIURL)
		}),
		clock.NewSource("timeapi.io", func(ctx context.Context) (time.Time, error) {
			return timeClient.TimeAPIIO(ctx, cfg.TimeAPI.TimeAPIIOURL)
		}),
	)

	var offsetCache timesync.OffsetCache
	switch cfg.Clock.CacheDriver {
	case config.DriverRedis:
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			log.Fatal("Error connecting to redis: ", err)
		}
		defer redisClient.Close()
		offsetCache = cache.NewOffsetCache(redisClient, cfg.Redis.Prefix)
	case config.DriverPostgres:
		offsetCache = postgresql.NewClockOffsetRepository(db)
	}

	trustedClock := clock.New(sources, offsetCache, clock.Options{
		Location:        loc,
		SourceTimeout:   cfg.Clock.SourceTimeout,
		MaxRounds:       cfg.Clock.MaxRounds,
		RetryInitial:    cfg.Clock.RetryInitial,
		MaxCachedOffset: cfg.Clock.MaxCachedOffset,
	})

	fileStorage, err := storage.NewLocalStorage(cfg.App.StoragePath)
	if err != nil {
		log.Fatal("Failed to initialize local storage: ", err)
	}
	fileService := file.NewFileService(fileStorage)

	var (
		store     attendance.RecordStore
		uploader  attendance.AttachmentUploader
		directory attendance.Directory
	)
	switch cfg.RecordStoreDriver {
	case config.DriverPostgres:
		store = postgresql.NewRecordRepository(db, loc)
		uploader = file.NewStorageUploader(fileStorage)
		directory = postgresql.NewDirectoryRepository(db)
	default:
		remoteCfg := remote.Config{
			RecordType:   cfg.CRM.RecordType,
			OfficeType:   cfg.CRM.OfficeType,
			EmployeeType: cfg.CRM.EmployeeType,
			Location:     loc,
		}
		store = remote.NewAttendanceRepository(crmClient, remoteCfg)
		uploader = remote.NewAttachmentUploader(crmClient, remoteCfg)
		directory = remote.NewDirectoryRepository(crmClient, remoteCfg)
	}

	geocoder := geocode.NewNominatim(&http.Client{Timeout: cfg.Tracking.GeocodeTimeout}, cfg.Tracking.GeocoderURL, cfg.Tracking.GeocoderUserAgent)
	hub := sse.NewHub(32)

	sessions := session.NewManager(session.Dependencies{
		Clock:     trustedClock,
		Geocoder:  geocoder,
		Store:     store,
		Uploader:  uploader,
		Directory: directory,
		Files:     fileService,
		Hub:       hub,
	}, session.Config{
		IdleTTL:      cfg.App.SessionIdleTTL,
		RecordType:   cfg.CRM.RecordType,
		InlineSelfie: cfg.CRM.InlineSelfie,
		Location: location.Options{
			FreezeTimeout:  cfg.Tracking.FreezeTimeout,
			GeocodeTimeout: cfg.Tracking.GeocodeTimeout,
		},
	})

	scheduler := cron.NewScheduler()
	jobs := cron.NewCheckinJobs(sessions, sessions, cfg.Clock.SyncInterval, trustedClock.SyncBudget(), time.Minute)
	if err := jobs.RegisterJobs(scheduler); err != nil {
		log.Fatal("Failed to register cron jobs: ", err)
	}
	scheduler.Start()

	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			AllowedOrigins: cfg.App.AllowedOrigins,
			Env:            cfg.App.Env,
			Version:        version,
			LogLevel:       level,
		},
		appHTTP.NewSessionHandler(sessions, hub),
		appHTTP.NewClockHandler(trustedClock, sessions),
		appHTTP.NewDirectoryHandler(directory),
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		slog.Info("Server running", "addr", server.Addr, "record_store", cfg.RecordStoreDriver, "clock_cache", cfg.Clock.CacheDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop()
	sessions.CloseAll(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
