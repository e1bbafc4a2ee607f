package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"gopkg.in/yaml.v3"

	"github.com/tabscribe/tabscribe/internal/browser"
	"github.com/tabscribe/tabscribe/internal/cleanup"
	"github.com/tabscribe/tabscribe/internal/dispatch"
	"github.com/tabscribe/tabscribe/internal/extract"
	"github.com/tabscribe/tabscribe/internal/handlers"
	"github.com/tabscribe/tabscribe/internal/ratelimit"
	"github.com/tabscribe/tabscribe/internal/status"
	"github.com/tabscribe/tabscribe/internal/storage"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Browser struct {
		DevToolsURL string `yaml:"devtools_url"`
	} `yaml:"browser"`

	RateLimit struct {
		Requests int `yaml:"requests"`
		WindowMs int `yaml:"window_ms"`
	} `yaml:"rate_limit"`

	Extraction struct {
		WaitTimeoutSeconds int `yaml:"wait_timeout_seconds"`
	} `yaml:"extraction"`

	Storage struct {
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		RetentionDays   int `yaml:"retention_days"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`
}

// tabSource adapts the browser's typed tabs to the dispatcher's page handles.
type tabSource struct {
	browser *browser.Browser
}

func (s *tabSource) List(ctx context.Context) ([]dispatch.Page, error) {
	tabs, err := s.browser.VideoTabs(ctx)
	if err != nil {
		return nil, err
	}
	pages := make([]dispatch.Page, len(tabs))
	for i, tab := range tabs {
		pages[i] = tab
	}
	return pages, nil
}

func (s *tabSource) Foreground(ctx context.Context) (dispatch.Page, error) {
	tab, err := s.browser.ForegroundTab(ctx)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

func main() {
	// Load configuration
	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure directories exist
	if err := cleanup.EnsureOutputDirExists(config.Storage.OutputDir); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(config.Storage.Database), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	log.SetOutput(multiWriter)

	// Initialize components
	log.Println("Initializing components...")

	// Shared request limiter for all external fetches
	limiter := ratelimit.New(config.RateLimit.Requests,
		time.Duration(config.RateLimit.WindowMs)*time.Millisecond)

	// Local document store
	localStore := storage.NewLocalStore(config.Storage.OutputDir)

	// Google Drive client (optional - may fail if credentials not set up)
	var uploader storage.Uploader
	if _, err := os.Stat(config.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err := storage.NewDriveClient(
			config.GoogleDrive.CredentialsFile,
			config.GoogleDrive.TokenFile,
			config.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Exports will only be saved locally")
		} else {
			log.Println("Google Drive integration enabled")
			uploader = driveClient
		}
	} else {
		log.Println("Google Drive credentials not found - saving locally only")
	}

	// Database
	store, err := storage.NewStore(config.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	recorder := storage.NewRecorder(store, uploader)

	// Browser connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chrome, err := browser.Connect(ctx, config.Browser.DevToolsURL)
	if err != nil {
		log.Fatalf("Failed to connect to browser: %v", err)
	}
	defer chrome.Close()

	// Status hub and dispatcher
	hub := status.NewHub()
	dispatcher := dispatch.NewDispatcher(hub)

	engineCfg := extract.DefaultConfig()
	factory := func(page dispatch.Page) (dispatch.EngineRunner, error) {
		tab, ok := page.(*browser.Tab)
		if !ok {
			return nil, fmt.Errorf("page %s is not a browser tab", page.ID())
		}
		return extract.New(tab, limiter, localStore, engineCfg), nil
	}
	dispatcher.SetInjector(dispatch.NewEngineInjector(factory, dispatcher.HandleResult, recorder))

	// Closed tabs must not leave operations or waiters behind
	chrome.OnTabClosed(dispatcher.PageClosed)

	tabs := &tabSource{browser: chrome}
	batch := dispatch.NewBatch(dispatcher, tabs, hub, dispatch.DefaultBatchConfig())

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		config.Storage.OutputDir,
		config.Cleanup.IntervalMinutes,
		config.Cleanup.RetentionDays,
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
	waitTimeout := time.Duration(config.Extraction.WaitTimeoutSeconds) * time.Second
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	extractHandler := handlers.NewExtractHandler(dispatcher, chrome, waitTimeout)
	batchHandler := handlers.NewBatchHandler(batch, tabs)
	recordsHandler := handlers.NewRecordsHandler(store)
	statusHandler := handlers.NewStatusHandler(hub)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/extract", extractHandler.Handle)
	app.Post("/extract/batch", batchHandler.Handle)

	app.Get("/extractions", recordsHandler.List)
	app.Get("/extractions/:id", recordsHandler.Get)
	app.Get("/extractions/:id/text", recordsHandler.Text)

	// WebSocket route
	app.Get("/ws/status", websocket.New(statusHandler.Handle))

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
	log.Println("   POST /extract              - Extract transcript from one page")
	log.Println("   POST /extract/batch        - Extract from all open video pages")
	log.Println("   GET  /extractions          - List extraction records")
	log.Println("   GET  /extractions/:id/text - Get exported document")
	log.Println("   GET  /ws/status            - WebSocket status stream")
	log.Println("   GET  /logs                 - View server logs")
	log.Println("   GET  /health               - Health check")

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
