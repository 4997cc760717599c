package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drummonds/pagerender/document"
	"github.com/drummonds/pagerender/render"
	"github.com/dustin/go-humanize"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := rendererChecks(serverHandler.Renderer); err != nil {
		return err
	}
	gpuChecks(serverHandler.Renderer, serverHandler.ServerConfig.GPU)
	cacheChecks(serverHandler.Renderer)
	return nil
}

// rendererChecks renders a blank letter page at low resolution so a broken
// backend fails at startup rather than on the first request
func rendererChecks(r *render.Renderer) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	probe, err := document.NewBlank("startup-probe.pdf", document.Letter)
	if err != nil {
		return err
	}
	opts := render.DefaultOptions().WithDPI(render.QualityDraft.DPI())
	start := time.Now()
	buf, err := r.RenderPage(ctx, probe.Page(0), opts)
	if err != nil {
		Logger.Error("Render backend failed startup probe", "backend", r.Backend(), "error", err)
		return fmt.Errorf("render backend %s unusable: %w", r.Backend(), err)
	}
	r.InvalidatePage(probe.Page(0))
	Logger.Info("Render backend ready", "backend", r.Backend(),
		"probe", fmt.Sprintf("%dx%d", buf.Width(), buf.Height()), "elapsed", time.Since(start))
	return nil
}

// gpuChecks enables GPU acceleration when configured and available
func gpuChecks(r *render.Renderer, wanted bool) {
	if !wanted {
		Logger.Info("GPU acceleration not requested")
		return
	}
	err := r.SetGPUAcceleration(true)
	if errors.Is(err, render.ErrNotImplemented) {
		Logger.Warn("GPU acceleration requested but unavailable, rendering on CPU", "error", err)
		return
	}
	Logger.Info("GPU acceleration enabled")
}

func cacheChecks(r *render.Renderer) {
	stats := r.CacheStats()
	if !stats.Enabled {
		Logger.Info("Render cache disabled")
		return
	}
	Logger.Info("Render cache enabled", "limit", humanize.Bytes(uint64(stats.MaxBytes)), "max_entries", stats.MaxEntries)
}
