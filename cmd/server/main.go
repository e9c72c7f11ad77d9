package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"gopkg.in/yaml.v3"

	"github.com/TonyXing/youtube-to-epub/internal/cleanup"
	"github.com/TonyXing/youtube-to-epub/internal/conversion"
	"github.com/TonyXing/youtube-to-epub/internal/epub"
	"github.com/TonyXing/youtube-to-epub/internal/handlers"
	"github.com/TonyXing/youtube-to-epub/internal/progress"
	"github.com/TonyXing/youtube-to-epub/internal/segmenter"
	"github.com/TonyXing/youtube-to-epub/internal/storage"
	"github.com/TonyXing/youtube-to-epub/internal/summarizer"
	"github.com/TonyXing/youtube-to-epub/internal/youtube"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	YouTube struct {
		YtDlpPath      string `yaml:"yt_dlp_path"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"youtube"`

	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`

	Summarizer struct {
		MaxRetries         int  `yaml:"max_retries"`
		MaxRequestChars    int  `yaml:"max_request_chars"`
		ChapterConcurrency int  `yaml:"chapter_concurrency"`
		BestEffort         bool `yaml:"best_effort"`
	} `yaml:"summarizer"`

	Segmenter struct {
		ShortVideoThresholdMinutes int `yaml:"short_video_threshold_minutes"`
		MaxChapters                int `yaml:"max_chapters"`
	} `yaml:"segmenter"`

	Storage struct {
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`
}

func main() {
	// Load configuration
	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The API key never lives in the config file in production
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.OpenAI.APIKey = key
	}
	if config.OpenAI.APIKey == "" {
		log.Fatal("OpenAI API key not configured (set OPENAI_API_KEY or openai.api_key)")
	}

	// Ensure output directory exists
	if err := cleanup.EnsureOutputDirExists(config.Storage.OutputDir); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	log.SetOutput(multiWriter)

	// Initialize components
	log.Println("Initializing components...")

	ytClient := youtube.NewClient(config.YouTube.YtDlpPath, config.YouTube.TimeoutSeconds)

	openaiClient := summarizer.NewOpenAIClient(
		config.OpenAI.APIKey,
		config.OpenAI.BaseURL,
		config.OpenAI.Model,
	)
	summaryService := summarizer.New(openaiClient, config.Summarizer.MaxRetries, config.Summarizer.MaxRequestChars)

	seg := segmenter.New(
		config.Segmenter.ShortVideoThresholdMinutes,
		config.Segmenter.MaxChapters,
	)

	assembler := epub.New(config.Storage.OutputDir)

	// Google Drive client (optional - may fail if credentials not set up)
	var driveClient *storage.DriveClient
	if _, err := os.Stat(config.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err = storage.NewDriveClient(
			config.GoogleDrive.CredentialsFile,
			config.GoogleDrive.TokenFile,
			config.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Books will only be saved locally")
			driveClient = nil
		} else {
			log.Println("Google Drive integration enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - saving locally only")
	}

	// Database
	db, err := storage.NewBookDB(config.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Conversion manager
	hub := progress.NewHub()
	opts := conversion.Options{
		Books:              db,
		ChapterConcurrency: config.Summarizer.ChapterConcurrency,
		BestEffort:         config.Summarizer.BestEffort,
	}
	if driveClient != nil {
		opts.Drive = driveClient
	}
	manager := conversion.NewManager(ytClient, seg, summaryService, assembler, hub, opts)

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		config.Storage.OutputDir,
		config.Cleanup.IntervalMinutes,
		config.Cleanup.MaxAgeHours,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New()

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Initialize handlers
	convertHandler := handlers.NewConvertHandler(manager)
	previewHandler := handlers.NewPreviewHandler(ytClient)
	progressHandler := handlers.NewProgressHandler(manager)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/api/convert", convertHandler.Submit)
	app.Get("/api/convert/:id", convertHandler.Status)
	app.Post("/api/convert/:id/cancel", convertHandler.Cancel)
	app.Get("/api/convert/:id/download", convertHandler.Download)
	app.Get("/api/preview", previewHandler.Handle)

	// WebSocket route
	app.Get("/ws/progress/:id", websocket.New(progressHandler.Handle))

	// List finished books
	app.Get("/api/books", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 50)
		books, err := db.ListBooks(limit)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(books)
	})

	// Get server logs
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /api/convert               - Start a conversion")
	log.Println("   GET  /api/convert/:id           - Job status")
	log.Println("   POST /api/convert/:id/cancel    - Cancel a job")
	log.Println("   GET  /api/convert/:id/download  - Download the EPUB")
	log.Println("   GET  /api/preview               - Preview a video")
	log.Println("   GET  /ws/progress/:id           - Progress stream")
	log.Println("   GET  /api/books                 - List finished books")
	log.Println("   GET  /logs                      - View server logs")
	log.Println("   GET  /health                    - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
