// Package render rasterizes document pages into pixel buffers. A Renderer
// serves synchronous, batched, tiled and progressive renders from any
// goroutine, keeps an LRU cache of recent results and feeds the worker pool
// of an AsyncRenderer.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/drummonds/pagerender/document"
	"github.com/drummonds/pagerender/engine/pdfrenderer"
	"github.com/hashicorp/go-multierror"
)

// Logger is global since we will need it everywhere
var Logger = slog.New(slog.DiscardHandler)

// Config sets up a Renderer
type Config struct {
	Backend         pdfrenderer.Backend
	Threads         int // 0 means one per CPU
	TileSize        int // async jobs render in square tiles of this size when > 0
	GPU             bool
	CacheEnabled    bool
	CacheSizeMB     int
	CacheMaxEntries int // 0 bounds the cache by size only
}

// DefaultConfig caches up to 100 MB and uses one worker per CPU
func DefaultConfig() Config {
	return Config{
		Backend:      pdfrenderer.BackendPDFium,
		CacheEnabled: true,
		CacheSizeMB:  100,
	}
}

// Renderer rasterizes pages. All methods are safe for concurrent use.
type Renderer struct {
	engine      pdfrenderer.Engine
	ownsEngine  bool
	contexts    *contextRegistry
	cache       *renderCache
	threads     atomic.Int32
	tileSize    atomic.Int32
	gpu         atomic.Bool
	closed      atomic.Bool
	progressive progressiveSession
	closeOnce   sync.Once
}

// New creates a Renderer with the engine named in cfg
func New(cfg Config) (*Renderer, error) {
	engine, err := pdfrenderer.New(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("unable to start render engine: %w", err)
	}
	r := NewRenderer(engine, cfg)
	r.ownsEngine = true
	if cfg.GPU {
		if err := r.SetGPUAcceleration(true); err != nil {
			Logger.Warn("GPU acceleration unavailable, rendering on CPU", "error", err)
		}
	}
	return r, nil
}

// NewRenderer creates a Renderer on an existing engine. The caller keeps
// ownership of the engine.
func NewRenderer(engine pdfrenderer.Engine, cfg Config) *Renderer {
	r := &Renderer{
		engine: engine,
		cache:  newRenderCache(cfg.CacheEnabled, cfg.CacheSizeMB, cfg.CacheMaxEntries),
	}
	r.SetThreadCount(cfg.Threads)
	r.tileSize.Store(int32(max(cfg.TileSize, 0)))
	r.contexts = newContextRegistry(engine, r.ThreadCount()+1)
	return r
}

// Backend names the engine in use
func (r *Renderer) Backend() pdfrenderer.Backend { return r.engine.Backend() }

// Close cancels any progressive render, closes every engine context and,
// when the Renderer created it, the engine.
func (r *Renderer) Close() error {
	var result *multierror.Error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.CancelProgressive()
		r.contexts.close()
		r.cache.clear()
		if r.ownsEngine {
			if err := r.engine.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("closing %s engine: %w", r.engine.Backend(), err))
			}
		}
	})
	return result.ErrorOrNil()
}

// RenderPage renders one page. A cached result is returned as a copy when the
// page was last rendered with identical options.
func (r *Renderer) RenderPage(ctx context.Context, page document.Page, opts Options) (*ImageBuffer, error) {
	l := r.newLease()
	defer r.releaseLease(l)
	return r.render(ctx, l, page, opts, nil)
}

func (r *Renderer) newLease() *lease {
	return &lease{reg: r.contexts}
}

func (r *Renderer) releaseLease(l *lease) {
	if err := l.release(); err != nil {
		Logger.Warn("Failed to release render context", "error", err)
	}
}

// render is the single rasterization path behind every public render call
func (r *Renderer) render(ctx context.Context, l *lease, page document.Page, opts Options, progress func(float64)) (*ImageBuffer, error) {
	if r.closed.Load() {
		return nil, renderErrorf(nil, "renderer is closed")
	}
	lay, err := computeLayout(page, opts)
	if err != nil {
		return nil, err
	}
	if buf, ok := r.cache.get(page.Handle(), opts); ok {
		return buf, nil
	}

	full, err := r.rasterize(ctx, l, page, opts, lay)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(0.8)
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	buf := pack(lay.finish(full), opts)
	r.cache.put(page.Handle(), opts, buf)
	if progress != nil {
		progress(1)
	}
	return buf, nil
}

// checkpoint reports cancellation as a render error
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return renderErrorf(err, "render cancelled: %v", err)
	}
	return nil
}

// rasterize runs the engine and returns the composed full page
func (r *Renderer) rasterize(ctx context.Context, l *lease, page document.Page, opts Options, lay layout) (*image.NRGBA, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	rc, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	img, err := callEngine(ctx, l, rc, pdfrenderer.Request{
		Page:        page.Handle(),
		DPI:         opts.DPI,
		Width:       lay.fullW,
		Height:      lay.fullH,
		Background:  opts.Background,
		Transparent: opts.RenderTransparent,
		AntiAlias:   opts.AntiAliasing != AntiAliasNone,
		Annotations: opts.RenderAnnotations,
		Forms:       opts.RenderForms,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, checkpoint(ctx)
		}
		var re *Error
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, renderFailure(err)
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	return compose(img, lay.fullW, lay.fullH, opts), nil
}

// callEngine turns an engine panic into a render error and retires the context
func callEngine(ctx context.Context, l *lease, rc pdfrenderer.Context, req pdfrenderer.Request) (img image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			Logger.Error("Render engine panicked", "page", req.Page.String(), "panic", p)
			l.discard()
			img, err = nil, renderErrorf(nil, "render engine panic: %v", p)
		}
	}()
	return rc.RenderPage(ctx, req)
}

// RequiredBufferSize returns the bytes RenderPageToBuffer needs for page
func (r *Renderer) RequiredBufferSize(page document.Page, opts Options) (int, error) {
	lay, err := computeLayout(page, opts)
	if err != nil {
		return 0, err
	}
	return opts.OutputFormat().MinStride(lay.outW) * lay.outH, nil
}

// RenderPageToBuffer renders into caller memory using the minimum stride.
// It returns false, leaving dst untouched, when dst is too small or the
// render fails.
func (r *Renderer) RenderPageToBuffer(ctx context.Context, page document.Page, dst []byte, opts Options) bool {
	need, err := r.RequiredBufferSize(page, opts)
	if err != nil {
		Logger.Debug("Render to buffer rejected", "error", err)
		return false
	}
	if len(dst) < need {
		Logger.Debug("Render to buffer rejected", "have", len(dst), "need", need)
		return false
	}
	buf, err := r.RenderPage(ctx, page, opts)
	if err != nil {
		Logger.Debug("Render to buffer failed", "error", err)
		return false
	}
	return buf.CopyTo(dst)
}

// RenderPageScaled renders at scale times the page's point size
func (r *Renderer) RenderPageScaled(ctx context.Context, page document.Page, scale float64, opts Options) (*ImageBuffer, error) {
	if scale <= 0 {
		return nil, invalidArgf("scale must be positive, got %v", scale)
	}
	return r.RenderPage(ctx, page, opts.WithDPI(pointsPerInch*scale))
}

// RenderPageScaledXY renders at the mean of the two axis scales; the page
// keeps its aspect ratio
func (r *Renderer) RenderPageScaledXY(ctx context.Context, page document.Page, scaleX, scaleY float64, opts Options) (*ImageBuffer, error) {
	if scaleX <= 0 || scaleY <= 0 {
		return nil, invalidArgf("scales must be positive, got %v x %v", scaleX, scaleY)
	}
	return r.RenderPageScaled(ctx, page, (scaleX+scaleY)/2, opts)
}

// RenderPageToSize renders as large as fits in width x height, keeping the
// aspect ratio
func (r *Renderer) RenderPageToSize(ctx context.Context, page document.Page, width, height int, opts Options) (*ImageBuffer, error) {
	if page == nil {
		return nil, invalidArgf("page is nil")
	}
	if width <= 0 || height <= 0 {
		return nil, invalidArgf("target size must be positive, got %dx%d", width, height)
	}
	if page.Width() <= 0 || page.Height() <= 0 {
		return nil, invalidArgf("page %v has no area", page.Handle())
	}
	return r.RenderPageScaled(ctx, page, CalculateScaleToFit(page, width, height), opts)
}

// RenderThumbnail renders a preview within maxWidth x maxHeight. Without
// keepAspect the width alone sets the scale and maxHeight only has to be
// positive.
func (r *Renderer) RenderThumbnail(ctx context.Context, page document.Page, maxWidth, maxHeight int, keepAspect bool) (*ImageBuffer, error) {
	opts := DefaultOptions()
	if keepAspect {
		return r.RenderPageToSize(ctx, page, maxWidth, maxHeight, opts)
	}
	if page == nil {
		return nil, invalidArgf("page is nil")
	}
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, invalidArgf("thumbnail size must be positive, got %dx%d", maxWidth, maxHeight)
	}
	if page.Width() <= 0 || page.Height() <= 0 {
		return nil, invalidArgf("page %v has no area", page.Handle())
	}
	return r.RenderPageScaled(ctx, page, float64(maxWidth)/page.Width(), opts)
}

// InvalidatePage drops the cached render of page
func (r *Renderer) InvalidatePage(page document.Page) {
	if page != nil {
		r.cache.invalidate(page.Handle())
	}
}

// ClearCache drops every cached render
func (r *Renderer) ClearCache() { r.cache.clear() }

// SetCacheEnabled turns caching on or off; turning it off clears the cache
func (r *Renderer) SetCacheEnabled(enabled bool) { r.cache.setEnabled(enabled) }

// CacheEnabled reports whether renders are cached
func (r *Renderer) CacheEnabled() bool { return r.cache.stats().Enabled }

// SetCacheSize bounds the cache in megabytes, evicting as needed
func (r *Renderer) SetCacheSize(mb int) error {
	if mb < 0 {
		return invalidArgf("cache size must not be negative, got %d", mb)
	}
	r.cache.setSizeMB(mb)
	return nil
}

// SetCacheMaxEntries bounds the number of cached pages; 0 removes the bound
func (r *Renderer) SetCacheMaxEntries(n int) error {
	if n < 0 {
		return invalidArgf("cache entry limit must not be negative, got %d", n)
	}
	r.cache.setMaxEntries(n)
	return nil
}

// CacheStats reports cache occupancy and counters
func (r *Renderer) CacheStats() CacheStats { return r.cache.stats() }

// SetThreadCount sets the worker count for async renderers created
// afterwards and for parallel batches; 0 means one per CPU
func (r *Renderer) SetThreadCount(n int) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	r.threads.Store(int32(n))
}

// ThreadCount is the effective worker count
func (r *Renderer) ThreadCount() int { return int(r.threads.Load()) }

// SetTileSize makes async jobs render in tiles of size pixels; 0 disables tiling
func (r *Renderer) SetTileSize(size int) {
	r.tileSize.Store(int32(max(size, 0)))
}

// SetGPUAcceleration requests GPU rasterization. Enabling fails with
// ErrNotImplemented when no accelerator is available.
func (r *Renderer) SetGPUAcceleration(enabled bool) error {
	if enabled && !pdfrenderer.GPUAvailable() {
		return notImplementedf("GPU acceleration is not available")
	}
	r.gpu.Store(enabled)
	return nil
}

// GPUAcceleration reports whether GPU rasterization was enabled
func (r *Renderer) GPUAcceleration() bool { return r.gpu.Load() }

// ActiveContexts is the number of engine contexts currently lent out
func (r *Renderer) ActiveContexts() int { return r.contexts.active() }
