package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/drummonds/pagerender/config"
	"github.com/drummonds/pagerender/database"
	"github.com/drummonds/pagerender/document"
	"github.com/drummonds/pagerender/render"
	"github.com/labstack/echo/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// Logger is global since we will need it everywhere
var Logger = slog.New(slog.DiscardHandler)

// Document is a registered document that can be addressed by its source ID
type Document interface {
	document.Document
	Source() *document.Source
}

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository // optional job ledger
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Renderer     *render.Renderer
	Async        *render.AsyncRenderer

	ledger    *database.JobLedger
	documents *xsync.MapOf[string, Document]
}

// NewServerHandler wires the renderer, its async queue and the optional job
// ledger together
func NewServerHandler(serverConfig config.ServerConfig, repo database.Repository, renderer *render.Renderer, e *echo.Echo) *ServerHandler {
	serverHandler := &ServerHandler{
		DB:           repo,
		Echo:         e,
		ServerConfig: serverConfig,
		Renderer:     renderer,
		documents:    xsync.NewMapOf[string, Document](),
	}
	asyncOpts := []render.AsyncOption{render.WithWorkers(serverConfig.Threads)}
	if repo != nil {
		serverHandler.ledger = database.NewJobLedger(repo, 256)
		asyncOpts = append(asyncOpts, render.WithObserver(serverHandler.ledger))
	}
	serverHandler.Async = render.NewAsyncRenderer(renderer, asyncOpts...)
	return serverHandler
}

// Close stops the async workers and flushes the job ledger. The renderer and
// repository belong to the caller.
func (serverHandler *ServerHandler) Close() error {
	err := serverHandler.Async.Close()
	if serverHandler.ledger != nil {
		serverHandler.ledger.Close()
	}
	return err
}

// RegisterRoutes adds every API route to the echo instance
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo

	// Documents
	e.POST("/api/documents", serverHandler.UploadDocument)
	e.GET("/api/documents", serverHandler.ListDocuments)
	e.GET("/api/documents/:id", serverHandler.GetDocument)
	e.DELETE("/api/documents/:id", serverHandler.DeleteDocument)

	// Synchronous rendering
	e.GET("/api/documents/:id/pages/:page", serverHandler.RenderPage)
	e.GET("/api/documents/:id/pages/:page/thumbnail", serverHandler.RenderThumbnail)
	e.GET("/api/documents/:id/pages/:page/tiles", serverHandler.GetTiles)
	e.GET("/api/documents/:id/pages/:page/tiles/:tile", serverHandler.RenderTile)

	// Async jobs
	e.POST("/api/documents/:id/jobs", serverHandler.QueueJobs)
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)
	e.GET("/api/jobs/:id/result", serverHandler.GetJobResult)
	e.DELETE("/api/jobs/:id", serverHandler.CancelJob)
	e.DELETE("/api/jobs", serverHandler.CancelAllJobs)

	// Cache
	e.GET("/api/cache", serverHandler.GetCacheStats)
	e.DELETE("/api/cache", serverHandler.ClearCache)
	e.DELETE("/api/documents/:id/cache", serverHandler.InvalidateDocumentCache)

	e.GET("/api/health", serverHandler.Health)
}

// AddDocument registers a document and returns its ID
func (serverHandler *ServerHandler) AddDocument(doc Document) string {
	id := doc.Source().ID
	serverHandler.documents.Store(id, doc)
	Logger.Info("Registered document", "id", id, "name", doc.Source().Name, "pages", doc.PageCount())
	return id
}

func (serverHandler *ServerHandler) lookupDocument(c echo.Context) (Document, error) {
	id := c.Param("id")
	doc, ok := serverHandler.documents.Load(id)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("document %s not found", id))
	}
	return doc, nil
}

func (serverHandler *ServerHandler) lookupPage(c echo.Context) (document.Page, error) {
	doc, err := serverHandler.lookupDocument(c)
	if err != nil {
		return nil, err
	}
	index, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "page must be an integer")
	}
	page := doc.Page(index)
	if page == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("page %d out of range (document has %d pages)", index, doc.PageCount()))
	}
	return page, nil
}

// baseOptions returns the configured defaults
func (serverHandler *ServerHandler) baseOptions() render.Options {
	opts := serverHandler.ServerConfig.RenderConfig.Options()
	if opts.DPI <= 0 {
		opts.DPI = render.DefaultOptions().DPI
	}
	return opts
}

var qualities = map[string]render.Quality{
	"draft":    render.QualityDraft,
	"low":      render.QualityLow,
	"medium":   render.QualityMedium,
	"high":     render.QualityHigh,
	"veryhigh": render.QualityVeryHigh,
}

// renderOptions applies the query parameters to the configured defaults
func (serverHandler *ServerHandler) renderOptions(c echo.Context) (render.Options, error) {
	opts := serverHandler.baseOptions()

	if q := c.QueryParam("quality"); q != "" {
		quality, ok := qualities[strings.ToLower(q)]
		if !ok {
			return opts, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown quality %q", q))
		}
		opts.DPI = quality.DPI()
	}
	if s := c.QueryParam("dpi"); s != "" {
		dpi, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return opts, echo.NewHTTPError(http.StatusBadRequest, "dpi must be a number")
		}
		opts.DPI = dpi
	}
	flags := []struct {
		name string
		set  func()
	}{
		{"gray", func() { opts.ColorMode = render.ColorGrayscale }},
		{"mono", func() { opts.ColorMode = render.ColorMonochrome }},
		{"transparent", func() { opts.RenderTransparent = true }},
		{"noannotations", func() { opts.RenderAnnotations = false }},
	}
	for _, f := range flags {
		if on, _ := strconv.ParseBool(c.QueryParam(f.name)); on {
			f.set()
		}
	}
	if s := c.QueryParam("rotation"); s != "" {
		deg, err := strconv.Atoi(s)
		if err != nil {
			return opts, echo.NewHTTPError(http.StatusBadRequest, "rotation must be an integer")
		}
		opts.Rotation = document.Rotation(deg)
		opts.OverrideRotation = true
	}
	if err := opts.Validate(); err != nil {
		return opts, renderHTTPError(err)
	}
	return opts, nil
}

// renderHTTPError maps a render error kind onto an HTTP status
func renderHTTPError(err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, render.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, render.ErrNotImplemented):
		status = http.StatusNotImplemented
	}
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}

func queryInt(c echo.Context, name string, defaultValue int) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}
