package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pagerender/config"
	database "github.com/drummonds/pagerender/database"
	document "github.com/drummonds/pagerender/document"
	engine "github.com/drummonds/pagerender/engine"
	pdfrenderer "github.com/drummonds/pagerender/engine/pdfrenderer"
	render "github.com/drummonds/pagerender/render"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	database.Logger = Logger
	document.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
	render.Logger = Logger
}

func main() {
	// Parse command-line flags
	port := flag.String("port", "", "Port to run the render server on (overrides SERVER_PORT)")
	noLedger := flag.Bool("no-ledger", false, "Do not record jobs in the database")
	flag.Parse()

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("🖨  pagerender Render Server")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("• All endpoints under /api/*")
	fmt.Println("• CORS enabled for viewer access")
	fmt.Println(strings.Repeat("=", 50) + "\n")

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	if *port != "" {
		serverConfig.ListenAddrPort = *port
	}

	renderer, err := render.New(serverConfig.Renderer())
	if err != nil {
		Logger.Error("Unable to start render backend", "backend", serverConfig.Backend, "error", err)
		os.Exit(1)
	}
	defer renderer.Close()

	// Setup job ledger
	var repo database.Repository
	if !*noLedger {
		db, err := database.NewRepository(serverConfig)
		if err != nil {
			Logger.Error("Unable to open job ledger", "type", serverConfig.DatabaseType, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = db
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Custom 404 handler for API endpoints
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		if code == http.StatusNotFound {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": fmt.Sprint(err),
				"path":    c.Request().URL.Path,
			})
			return
		}

		// For other errors, use default handler
		e.DefaultHTTPErrorHandler(err, c)
	}

	serverHandler := engine.NewServerHandler(serverConfig, repo, renderer, e)
	defer serverHandler.Close()

	Logger.Info("Initializing render services...")
	if err := serverHandler.StartupChecks(); err != nil { //Run all the sanity checks
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	scheduler := serverHandler.InitializeSchedules() //initialize all the cron jobs
	defer scheduler.Stop()
	Logger.Info("Render services initialized")

	// CORS configuration - allow viewers from a different origin
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Request logging
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", serverConfig.MaxUploadMB+1)))

	Logger.Info("Setting up API routes...")
	serverHandler.RegisterRoutes()

	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting Render Server", "address", addr)
	fmt.Printf("\n✅  Render Server running on %s\n", addr)
	fmt.Printf("📡  API endpoints available at http://%s/api/\n", addr)
	fmt.Printf("🏥  Health check: http://%s/api/health\n\n", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	Logger.Info("Shutting down render server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		Logger.Error("Server shutdown failed", "error", err)
	}
}
