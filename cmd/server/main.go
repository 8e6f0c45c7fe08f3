package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"facestream-go/config"
	"facestream-go/internal/api/handlers"
	"facestream-go/internal/cache"
	"facestream-go/internal/cleanup"
	"facestream-go/internal/core/recognition"
	"facestream-go/internal/core/session"
	"facestream-go/internal/db"
	"facestream-go/internal/db/repository"
	"facestream-go/internal/integrations/detector"
	"facestream-go/internal/integrations/mqtt"
	"facestream-go/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewSQLiteRepository(db.DB)

	// Optional Redis cache; a failed connection degrades to no caching.
	cacheService := cache.NewService(cfg.Redis)
	defer cacheService.Close()

	// Detector service client; the backend runs without it but streaming
	// and enrollment will fail until it comes up.
	detectorClient := detector.NewClient(cfg.Detector)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if ok, err := detectorClient.Ping(pingCtx); err != nil {
		log.Warnf("Detector service not reachable at %s: %v", cfg.Detector.URL, err)
	} else if ok {
		log.Infof("Detector service reachable at %s", cfg.Detector.URL)
	}
	cancel()

	// MQTT event publisher.
	publisher := mqtt.NewPublisher(cfg.MQTT)
	if err := publisher.Start(); err != nil {
		log.Warnf("Failed to start MQTT publisher: %v. Continuing without MQTT.", err)
	}
	defer publisher.Stop()

	// Matching pipeline shared by all sessions and the REST surface.
	comparator := recognition.NewComparator(cfg.Recognition.MatchThreshold)
	matcher := recognition.NewMatcher(comparator)
	sessions := session.NewManager(cfg, matcher, repo, cacheService, publisher)

	// Background retention cleanup.
	cleanupService := cleanup.NewService(repo, cfg.Cleanup.RetentionDays, 24*time.Hour)
	cleanupService.StartBackgroundCleanup()
	defer cleanupService.StopBackgroundCleanup()

	// Router setup.
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORS.Origins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.Origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiHandler := handlers.NewAPIHandler(repo, cfg, detectorClient, matcher, cacheService, sessions)
	apiHandler.RegisterRoutes(router.Group("/api"))

	streamHandler := handlers.NewStreamHandler(cfg, sessions, detectorClient)
	router.GET("/ws/recognize", streamHandler.Recognize)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Starting server on %s", serverAddr)
	if err := router.Run(serverAddr); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
