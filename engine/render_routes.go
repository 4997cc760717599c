package engine

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/drummonds/pagerender/render"
	"github.com/labstack/echo/v4"
	"seehuhn.de/go/geom/rect"
)

var encodings = map[string]struct {
	format      imaging.Format
	contentType string
}{
	"png":  {imaging.PNG, "image/png"},
	"jpeg": {imaging.JPEG, "image/jpeg"},
	"jpg":  {imaging.JPEG, "image/jpeg"},
	"bmp":  {imaging.BMP, "image/bmp"},
	"tiff": {imaging.TIFF, "image/tiff"},
	"gif":  {imaging.GIF, "image/gif"},
}

// writeImage encodes buf in the format named by the "format" query parameter
func writeImage(c echo.Context, buf *render.ImageBuffer) error {
	name := strings.ToLower(c.QueryParam("format"))
	if name == "" {
		name = "png"
	}
	enc, ok := encodings[name]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported format %q", name))
	}
	var out bytes.Buffer
	if err := buf.Encode(&out, enc.format); err != nil {
		Logger.Error("Unable to encode image", "format", name, "error", err)
		return err
	}
	c.Response().Header().Set("X-Image-Size", fmt.Sprintf("%dx%d", buf.Width(), buf.Height()))
	return c.Blob(http.StatusOK, enc.contentType, out.Bytes())
}

// RenderPage renders one page. width and height fit the page to a box,
// scale multiplies the 72 DPI size, otherwise dpi or quality apply.
func (serverHandler *ServerHandler) RenderPage(c echo.Context) error {
	page, err := serverHandler.lookupPage(c)
	if err != nil {
		return err
	}
	opts, err := serverHandler.renderOptions(c)
	if err != nil {
		return err
	}
	width, err := queryInt(c, "width", 0)
	if err != nil {
		return err
	}
	height, err := queryInt(c, "height", 0)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var buf *render.ImageBuffer
	switch {
	case width != 0 || height != 0:
		buf, err = serverHandler.Renderer.RenderPageToSize(ctx, page, width, height, opts)
	case c.QueryParam("scale") != "":
		scale, perr := strconv.ParseFloat(c.QueryParam("scale"), 64)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "scale must be a number")
		}
		buf, err = serverHandler.Renderer.RenderPageScaled(ctx, page, scale, opts)
	default:
		if c.QueryParam("clip") != "" {
			if opts.ClipRect, err = parseRect(c.QueryParam("clip")); err != nil {
				return err
			}
			opts.UseClipRect = true
		}
		buf, err = serverHandler.Renderer.RenderPage(ctx, page, opts)
	}
	if err != nil {
		Logger.Warn("Render failed", "page", page.Handle().String(), "error", err)
		return renderHTTPError(err)
	}
	return writeImage(c, buf)
}

// parseRect reads "llx,lly,urx,ury" in page points
func parseRect(s string) (rect.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return rect.Rect{}, echo.NewHTTPError(http.StatusBadRequest, "clip must be llx,lly,urx,ury")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return rect.Rect{}, echo.NewHTTPError(http.StatusBadRequest, "clip must be llx,lly,urx,ury")
		}
		v[i] = f
	}
	return rect.Rect{LLx: v[0], LLy: v[1], URx: v[2], URy: v[3]}, nil
}

// RenderThumbnail renders a preview bounded by width x height (default 200)
func (serverHandler *ServerHandler) RenderThumbnail(c echo.Context) error {
	page, err := serverHandler.lookupPage(c)
	if err != nil {
		return err
	}
	width, err := queryInt(c, "width", 200)
	if err != nil {
		return err
	}
	height, err := queryInt(c, "height", 200)
	if err != nil {
		return err
	}
	keepAspect := true
	if s := c.QueryParam("aspect"); s != "" {
		keepAspect, err = strconv.ParseBool(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid aspect %q", s))
		}
	}
	buf, err := serverHandler.Renderer.RenderThumbnail(c.Request().Context(), page, width, height, keepAspect)
	if err != nil {
		return renderHTTPError(err)
	}
	return writeImage(c, buf)
}

type tileResponse struct {
	Index    int        `json:"index"`
	X        int        `json:"x"`
	Y        int        `json:"y"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	PageRect [4]float64 `json:"pageRect"`
}

// maxTiles bounds the grid a single request may ask for
const maxTiles = 4096

func ceilDiv(a, b int) int {
	return (max(a, 1) + b - 1) / b
}

// tileLayout reads the tile size parameters (default the configured tile size
// or 256) and computes the grid
func (serverHandler *ServerHandler) tileLayout(c echo.Context) ([]render.TileInfo, render.Options, error) {
	page, err := serverHandler.lookupPage(c)
	if err != nil {
		return nil, render.Options{}, err
	}
	opts, err := serverHandler.renderOptions(c)
	if err != nil {
		return nil, opts, err
	}
	size := serverHandler.ServerConfig.TileSize
	if size <= 0 {
		size = 256
	}
	tw, err := queryInt(c, "tileWidth", size)
	if err != nil {
		return nil, opts, err
	}
	th, err := queryInt(c, "tileHeight", size)
	if err != nil {
		return nil, opts, err
	}
	if tw < 1 || th < 1 {
		return nil, opts, echo.NewHTTPError(http.StatusBadRequest, "tile size must be positive")
	}
	w, h := render.CalculateDimensions(page, opts.DPI)
	if n := ceilDiv(w, tw) * ceilDiv(h, th); n > maxTiles {
		return nil, opts, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%dx%d tiles would split the page into %d tiles, the limit is %d", tw, th, n, maxTiles))
	}
	tiles := render.CalculateTiles(page, tw, th, opts)
	if len(tiles) == 0 {
		return nil, opts, echo.NewHTTPError(http.StatusBadRequest, "no tiles for this page and tile size")
	}
	return tiles, opts, nil
}

// GetTiles returns the tile grid for a page
func (serverHandler *ServerHandler) GetTiles(c echo.Context) error {
	tiles, _, err := serverHandler.tileLayout(c)
	if err != nil {
		return err
	}
	resp := make([]tileResponse, len(tiles))
	for i, t := range tiles {
		resp[i] = tileResponse{
			Index:    i,
			X:        t.X,
			Y:        t.Y,
			Width:    t.Width,
			Height:   t.Height,
			PageRect: [4]float64{t.PageRect.LLx, t.PageRect.LLy, t.PageRect.URx, t.PageRect.URy},
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// RenderTile renders one tile of the grid returned by GetTiles
func (serverHandler *ServerHandler) RenderTile(c echo.Context) error {
	tiles, opts, err := serverHandler.tileLayout(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("tile"))
	if err != nil || index < 0 || index >= len(tiles) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("tile %s out of range (%d tiles)", c.Param("tile"), len(tiles)))
	}
	page, _ := serverHandler.lookupPage(c)
	buf, err := serverHandler.Renderer.RenderTile(c.Request().Context(), page, tiles[index], opts)
	if err != nil {
		return renderHTTPError(err)
	}
	return writeImage(c, buf)
}

// GetCacheStats reports the render cache counters
func (serverHandler *ServerHandler) GetCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, serverHandler.Renderer.CacheStats())
}

// ClearCache drops every cached render
func (serverHandler *ServerHandler) ClearCache(c echo.Context) error {
	serverHandler.Renderer.ClearCache()
	Logger.Info("Render cache cleared")
	return c.NoContent(http.StatusNoContent)
}

// Health reports the renderer configuration and queue depth
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "pagerender",
		"backend":        serverHandler.Renderer.Backend(),
		"threads":        serverHandler.Renderer.ThreadCount(),
		"gpu":            serverHandler.Renderer.GPUAcceleration(),
		"activeContexts": serverHandler.Renderer.ActiveContexts(),
		"pendingJobs":    serverHandler.Async.PendingCount(),
		"documents":      serverHandler.documents.Size(),
	})
}
