package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/drummonds/pagerender/engine/pdfrenderer"
	"github.com/drummonds/pagerender/render"
	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseDbname   string
	DatabaseSslmode  string
	LogFile          string
	MaxUploadMB      int
	JobRetention     time.Duration
	JobPruneInterval int // minutes
	RenderConfig
}

// RenderConfig holds the rasterization and scheduling settings
type RenderConfig struct {
	Backend         string
	DefaultDPI      float64
	Threads         int // 0 means one worker per CPU
	TileSize        int // 0 renders async jobs untiled
	GPU             bool
	CacheEnabled    bool
	CacheSizeMB     int
	CacheMaxEntries int
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

// LoadRenderConfig reads the render settings from the environment
func LoadRenderConfig() RenderConfig {
	return RenderConfig{
		Backend:         getEnv("RENDER_BACKEND", string(pdfrenderer.BackendPDFium)),
		DefaultDPI:      getEnvFloat("RENDER_DPI", 150),
		Threads:         getEnvInt("RENDER_THREADS", 0),
		TileSize:        getEnvInt("RENDER_TILE_SIZE", 0),
		GPU:             getEnvBool("RENDER_GPU", false),
		CacheEnabled:    getEnvBool("CACHE_ENABLED", true),
		CacheSizeMB:     getEnvInt("CACHE_SIZE_MB", 100),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 0),
	}
}

// Renderer converts the settings into the render package configuration
func (c RenderConfig) Renderer() render.Config {
	return render.Config{
		Backend:         pdfrenderer.Backend(c.Backend),
		Threads:         c.Threads,
		TileSize:        c.TileSize,
		GPU:             c.GPU,
		CacheEnabled:    c.CacheEnabled,
		CacheSizeMB:     c.CacheSizeMB,
		CacheMaxEntries: c.CacheMaxEntries,
	}
}

// Options returns the default render options with the configured resolution
func (c RenderConfig) Options() render.Options {
	opts := render.DefaultOptions()
	opts.DPI = c.DefaultDPI
	return opts
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")
	serverConfigLive.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", 64)

	// Job ledger
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "pagerender")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	defaultDbname := "pagerender"
	if serverConfigLive.DatabaseType == "sqlite" {
		defaultDbname = filepath.Join("databases", "pagerender.sqlite")
	}
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", defaultDbname)
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "")
	serverConfigLive.JobRetention = time.Duration(getEnvInt("JOB_RETENTION_HOURS", 24)) * time.Hour
	serverConfigLive.JobPruneInterval = getEnvInt("JOB_PRUNE_INTERVAL", 10)

	logger.Info("Job ledger configuration loaded", "type", serverConfigLive.DatabaseType)

	serverConfigLive.RenderConfig = LoadRenderConfig()
	logger.Info("Render configuration loaded",
		"backend", serverConfigLive.Backend,
		"dpi", serverConfigLive.DefaultDPI,
		"threads", serverConfigLive.Threads,
		"cacheEnabled", serverConfigLive.CacheEnabled,
		"cacheSizeMB", serverConfigLive.CacheSizeMB)

	serverConfigLive.LogFile = getEnv("LOG_FILE", "pagerender.log")

	fmt.Println("\n========================================")
	fmt.Println("   pagerender - Page Rendering Service")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", serverConfigLive.LogFile)

	return serverConfigLive, logger
}

// SetupCLI loads configuration for the command line renderer. Logs go to stderr
// unless LOG_OUTPUT says otherwise.
func SetupCLI() (RenderConfig, *slog.Logger) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	if os.Getenv("LOG_OUTPUT") == "" {
		os.Setenv("LOG_OUTPUT", "stderr")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "warn")
	}
	logger := setupLogging()
	Logger = logger
	return LoadRenderConfig(), logger
}

// parseLevel maps LOG_LEVEL values onto slog levels
func parseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "debug"))}

	var logWriter io.Writer
	switch getEnv("LOG_OUTPUT", "file") {
	case "stdout":
		logWriter = os.Stdout
	case "stderr":
		logWriter = os.Stderr
	default:
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pagerender.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
