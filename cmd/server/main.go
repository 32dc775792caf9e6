package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lumen/internal/config"
	"lumen/internal/handler"
	"lumen/internal/middleware"
	"lumen/internal/repository/sqlite"
	"lumen/internal/service"
	"lumen/internal/storage"
	"lumen/internal/vision"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

const maxLogFiles = 5

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logOutput := io.Writer(os.Stdout)
	logFile, err := config.SetupLogFile(filepath.Join(cfg.DataDir, "logs"), maxLogFiles)
	if err != nil {
		log.Printf("file logging disabled: %v", err)
	} else {
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
	)

	// Open the sqlite database, running schema migrations
	ctx := context.Background()
	db, err := sqlite.Open(ctx, cfg.DatabasePath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger.Info("database opened", "path", cfg.DatabasePath())

	// Create repositories
	repoConfig := &sqlite.RepositoryConfig{
		DB:     db,
		Logger: logger,
	}
	captureRepo := sqlite.NewCaptureRepository(repoConfig)
	prefsRepo, err := sqlite.NewPreferenceRepository(ctx, repoConfig)
	if err != nil {
		log.Fatalf("Failed to create preference repository: %v", err)
	}

	// Image storage
	imageStore, err := storage.NewFileImageStore(cfg.ImagesDir(), cfg.GalleryDir, logger)
	if err != nil {
		log.Fatalf("Failed to create image store: %v", err)
	}

	// Vision model registry and client
	modelConfig, err := vision.LoadModelConfig()
	if err != nil {
		log.Fatalf("Failed to load model config: %v", err)
	}
	visionClient := vision.NewGeminiVisionClient(modelConfig, logger)
	logger.Info("vision models configured",
		"primary", modelConfig.Primary,
		"fallback", modelConfig.Fallback,
	)

	// Use cases
	describeUseCase := service.NewDescribeImageUseCase(visionClient)
	continueUseCase := service.NewContinueChatUseCase(visionClient)
	saveUseCase := service.NewSaveCaptureUseCase(captureRepo)

	// Services
	sessionService := service.NewSessionService(
		describeUseCase,
		continueUseCase,
		saveUseCase,
		prefsRepo,
		captureRepo,
		imageStore,
		cfg.DefaultLanguage,
		logger,
	)
	prefsService := service.NewPreferencesService(prefsRepo, logger)
	historyService := service.NewCaptureHistoryService(captureRepo, imageStore, logger)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessionService, logger)
	prefsHandler := handler.NewPreferencesHandler(prefsService, logger)
	captureHandler := handler.NewCaptureHandler(historyService, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", captureHandler.HealthCheck)

	// Session routes
	mux.HandleFunc("GET /api/session", sessionHandler.GetState)
	mux.HandleFunc("GET /api/session/events", sessionHandler.StreamState) // SSE state stream
	mux.HandleFunc("POST /api/session/describe", sessionHandler.Describe)
	mux.HandleFunc("POST /api/session/messages", sessionHandler.SendMessage)
	mux.HandleFunc("POST /api/session/images", sessionHandler.StageImages)
	mux.HandleFunc("DELETE /api/session/images/{index}", sessionHandler.RemoveStagedImage)
	mux.HandleFunc("POST /api/session/restore/{id}", sessionHandler.Restore)
	mux.HandleFunc("POST /api/session/export", sessionHandler.ExportImage)
	mux.HandleFunc("POST /api/session/reset", sessionHandler.Reset)
	mux.HandleFunc("POST /api/session/error/dismiss", sessionHandler.DismissError)

	// Capture history routes
	mux.HandleFunc("GET /api/captures", captureHandler.ListCaptures)
	mux.HandleFunc("GET /api/captures/{id}", captureHandler.GetCapture)
	mux.HandleFunc("DELETE /api/captures/{id}", captureHandler.DeleteCapture)
	mux.HandleFunc("DELETE /api/captures", captureHandler.DeleteAllCaptures)

	// Preferences routes
	mux.HandleFunc("GET /api/preferences", prefsHandler.GetPreferences)
	mux.HandleFunc("PATCH /api/preferences", prefsHandler.UpdatePreferences)
	mux.HandleFunc("GET /api/review-prompt", prefsHandler.GetReviewPrompt)
	mux.HandleFunc("POST /api/review-prompt/shown", prefsHandler.MarkReviewPromptShown)
	mux.HandleFunc("POST /api/review-prompt/rated", prefsHandler.MarkRated)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → RequestLogger → Routes
	root = middleware.RequestLogger(logger)(root)
	root = middleware.Recovery(logger)(root)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Last-Event-ID"},
	})
	root = corsHandler.Handler(root)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
