package render

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/drummonds/pagerender/document"
	"seehuhn.de/go/geom/rect"
)

// TileInfo locates one tile of a page
type TileInfo struct {
	X, Y          int // column and row, row 0 at the top of the page
	Width, Height int // pixels at the options' DPI
	PageRect      rect.Rect
}

// CalculateTiles splits the page into tiles of at most tileWidth x tileHeight
// pixels. The page rectangles partition the page exactly; the last row and
// column may be smaller.
func CalculateTiles(page document.Page, tileWidth, tileHeight int, opts Options) []TileInfo {
	if page == nil || tileWidth < 1 || tileHeight < 1 || !(opts.DPI > 0) {
		return nil
	}
	if !(page.Width() > 0) || !(page.Height() > 0) {
		return nil
	}
	// a page smaller than a pixel still gets one tile
	w, h := CalculateDimensions(page, opts.DPI)
	w, h = max(w, 1), max(h, 1)
	cols := (w + tileWidth - 1) / tileWidth
	rows := (h + tileHeight - 1) / tileHeight

	pw, ph := page.Width(), page.Height()
	tw := float64(tileWidth) * pointsPerInch / opts.DPI
	th := float64(tileHeight) * pointsPerInch / opts.DPI

	tiles := make([]TileInfo, 0, cols*rows)
	for row := 0; row < rows; row++ {
		top := ph - float64(row)*th
		bottom := math.Max(0, ph-float64(row+1)*th)
		if row == rows-1 {
			bottom = 0
		}
		for col := 0; col < cols; col++ {
			left := float64(col) * tw
			right := math.Min(pw, float64(col+1)*tw)
			if col == cols-1 {
				right = pw
			}
			pr := rect.Rect{LLx: left, LLy: bottom, URx: right, URy: top}
			px := clipPixels(pr, ph, opts.DPI)
			tiles = append(tiles, TileInfo{
				X:        col,
				Y:        row,
				Width:    max(px.Dx(), 1),
				Height:   max(px.Dy(), 1),
				PageRect: pr,
			})
		}
	}
	return tiles
}

// RenderTile renders the part of the page covered by tile
func (r *Renderer) RenderTile(ctx context.Context, page document.Page, tile TileInfo, opts Options) (*ImageBuffer, error) {
	opts.UseClipRect = true
	opts.ClipRect = tile.PageRect
	return r.RenderPage(ctx, page, opts)
}

// TileProgressFunc is called after each tile; returning false stops the render
type TileProgressFunc func(done, total int) bool

// RenderPageTiled renders the page one clipped tile at a time and stitches
// the result. Cancellation is checked before each tile and progress after it.
func (r *Renderer) RenderPageTiled(ctx context.Context, page document.Page, tileWidth, tileHeight int, opts Options, progress TileProgressFunc) (*ImageBuffer, error) {
	l := r.newLease()
	defer r.releaseLease(l)
	return r.renderTiled(ctx, l, page, tileWidth, tileHeight, opts, progress)
}

func (r *Renderer) renderTiled(ctx context.Context, l *lease, page document.Page, tileWidth, tileHeight int, opts Options, progress TileProgressFunc) (*ImageBuffer, error) {
	if tileWidth < 1 || tileHeight < 1 {
		return nil, invalidArgf("tile size must be positive, got %dx%d", tileWidth, tileHeight)
	}
	if opts.UseClipRect {
		return nil, invalidArgf("tiled renders cover the whole page")
	}
	lay, err := computeLayout(page, opts)
	if err != nil {
		return nil, err
	}
	if buf, ok := r.cache.get(page.Handle(), opts); ok {
		return buf, nil
	}

	// tiles are stitched upright and the whole page is turned once at the end
	tileOpts := opts
	tileOpts.UseClipRect = true
	tileOpts.OverrideRotation = false

	tiles := CalculateTiles(page, tileWidth, tileHeight, opts)
	stitched := image.NewNRGBA(image.Rect(0, 0, lay.fullW, lay.fullH))
	for i, tile := range tiles {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		tileOpts.ClipRect = tile.PageRect
		tlay, err := computeLayout(page, tileOpts)
		if err != nil {
			return nil, err
		}
		full, err := r.rasterize(ctx, l, page, tileOpts, tlay)
		if err != nil {
			return nil, err
		}
		draw.Draw(stitched, tlay.crop, tlay.finish(full), image.Point{}, draw.Src)
		if progress != nil && !progress(i+1, len(tiles)) {
			return nil, renderErrorf(nil, "tiled render stopped after %d of %d tiles", i+1, len(tiles))
		}
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	buf := pack(lay.finish(stitched), opts)
	r.cache.put(page.Handle(), opts, buf)
	return buf, nil
}

func (t TileInfo) String() string {
	return fmt.Sprintf("tile(%d,%d %dx%d)", t.X, t.Y, t.Width, t.Height)
}
