package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safetysec/internal/config"
	"safetysec/internal/engine"
	"safetysec/internal/handlers"
	"safetysec/internal/repositories/mongodb"
	"safetysec/internal/services"
	"safetysec/pkg/cache"
	"safetysec/pkg/database"
	"safetysec/pkg/logger"
	"safetysec/pkg/maps"
	"safetysec/pkg/push"
	"safetysec/pkg/sms"
	"safetysec/pkg/storage"
	"safetysec/pkg/websocket"
	"safetysec/routes"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Database
	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
		CodeTTL:        cfg.Database.CodeTTL,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Fatal("Failed to ensure indexes")
	}
	cancel()

	// Redis is optional; everything degrades to direct database reads.
	var redisCache *cache.RedisCache
	redisCache, err = cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, running without cache")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	var repoCache mongodb.CacheService
	var presence services.PresenceStore
	if redisCache != nil {
		repoCache = redisCache
		presence = redisCache
	}

	// Repositories
	userRepo := mongodb.NewUserRepository(db.Database, repoCache)
	ruleRepo := mongodb.NewRuleRepository(db.Database, repoCache)
	alertRepo := mongodb.NewAlertRepository(db.Database, repoCache)
	assocRepo := mongodb.NewAssociationRepository(db.Database, cfg.Database.CodeTTL)

	// Evidence storage
	store := newStorageProvider(cfg, log)

	// Outbound channels, all optional.
	pushProvider := newPushProvider(cfg, log)
	smsProvider := newSMSProvider(cfg, log)
	geocoder := newGeocoder(cfg, log)

	// WebSocket hub: monitors join one watch room per protected user.
	wsHandler := websocket.NewHandler(func(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
		user, err := userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		return user.Protecteds, nil
	})

	// Services
	userService := services.NewUserService(userRepo, cfg.Security.JWTSecret, cfg.Security.JWTAccessTokenTTL, log)
	ruleService := services.NewRuleService(ruleRepo, userRepo, log)
	alertService := services.NewAlertService(alertRepo, userRepo, pushProvider, smsProvider,
		cfg.SMS.DefaultFrom, geocoder, wsHandler, log)
	assocService := services.NewAssociationService(assocRepo, userRepo, wsHandler, log)

	recorder := engine.NewEvidenceRecorder(
		&engine.StreamDevice{Path: cfg.Engine.CaptureDevicePath},
		store, cfg.Engine.EvidenceTmpDir, log)
	monitoringService := services.NewMonitoringService(cfg.Engine, ruleRepo, userRepo,
		alertService, recorder, presence, wsHandler, log)
	defer monitoringService.Shutdown()

	// HTTP surface
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	routes.SetupRoutes(router, &routes.Handlers{
		Users:        handlers.NewUserHandler(userService),
		Telemetry:    handlers.NewTelemetryHandler(monitoringService),
		Rules:        handlers.NewRuleHandler(ruleService),
		Alerts:       handlers.NewAlertHandler(alertService),
		Associations: handlers.NewAssociationHandler(assocService),
		WebSocket:    wsHandler,
	}, cfg.Security.JWTSecret, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on port %d", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}

func newStorageProvider(cfg *config.Config, log *logger.Logger) storage.Provider {
	switch cfg.Storage.Provider {
	case "gcp":
		store, err := storage.NewGCPStorage(cfg.Storage.GCP.Bucket, cfg.Storage.GCP.CredentialsFile, cfg.Storage.GCP.CDNDomain)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize GCS storage")
		}
		return store
	case "aws":
		store, err := storage.NewAWSS3Storage(cfg.Storage.AWS.Region, cfg.Storage.AWS.Bucket, cfg.Storage.AWS.CDNDomain)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize S3 storage")
		}
		return store
	default:
		store, err := storage.NewLocalStorage(cfg.Storage.Local.BasePath, cfg.Storage.Local.BaseURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize local storage")
		}
		return store
	}
}

func newPushProvider(cfg *config.Config, log *logger.Logger) push.Provider {
	switch cfg.Push.Provider {
	case "apns":
		provider, err := push.NewAPNSProvider(cfg.Push.APNS.KeyFile, cfg.Push.APNS.KeyID,
			cfg.Push.APNS.TeamID, cfg.Push.APNS.BundleID, cfg.Push.APNS.Production)
		if err != nil {
			log.WithError(err).Warn("APNS unavailable, push notifications disabled")
			return nil
		}
		return provider
	case "fcm":
		if cfg.Push.FCM.Credentials == "" {
			log.Warn("FCM credentials not configured, push notifications disabled")
			return nil
		}
		provider, err := push.NewFCMProvider(cfg.Push.FCM.Credentials)
		if err != nil {
			log.WithError(err).Warn("FCM unavailable, push notifications disabled")
			return nil
		}
		return provider
	default:
		return nil
	}
}

func newSMSProvider(cfg *config.Config, log *logger.Logger) sms.Provider {
	switch cfg.SMS.Provider {
	case "sns":
		provider, err := sms.NewAWSSNSProvider(cfg.SMS.AWS.Region)
		if err != nil {
			log.WithError(err).Warn("SNS unavailable, SMS disabled")
			return nil
		}
		return provider
	case "twilio":
		if cfg.SMS.Twilio.AccountSID == "" {
			log.Warn("Twilio not configured, SMS disabled")
			return nil
		}
		return sms.NewTwilioProvider(cfg.SMS.Twilio.AccountSID, cfg.SMS.Twilio.AuthToken, cfg.SMS.Twilio.FromNumber)
	default:
		return nil
	}
}

func newGeocoder(cfg *config.Config, log *logger.Logger) maps.Geocoder {
	if cfg.Maps.GoogleMaps.APIKey == "" {
		log.Warn("Google Maps API key not configured, reverse geocoding disabled")
		return nil
	}
	geocoder, err := maps.NewGoogleGeocoder(cfg.Maps.GoogleMaps.APIKey)
	if err != nil {
		log.WithError(err).Warn("Geocoder unavailable, reverse geocoding disabled")
		return nil
	}
	return geocoder
}
