package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	config "github.com/drummonds/pagerender/config"
	document "github.com/drummonds/pagerender/document"
	pdfrenderer "github.com/drummonds/pagerender/engine/pdfrenderer"
	render "github.com/drummonds/pagerender/render"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	document.Logger = Logger
	pdfrenderer.Logger = Logger
	render.Logger = Logger
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage:
  pagerender render <document.pdf> [flags]   rasterize pages to image files
  pagerender info <document.pdf> [flags]     print page geometry and tile layout

Run "pagerender <command> -h" for the flags of a command.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	renderConfig, logger := config.SetupCLI()
	injectGlobals(logger)

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(renderConfig, os.Args[2:])
	case "info":
		err = runInfo(renderConfig, os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pagerender:", err)
		os.Exit(1)
	}
}

// parseArgs lets flags follow positional arguments
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// parsePages reads 1-based page lists such as "1-3,7" into 0-based indices.
// An empty list selects every page.
func parsePages(list string, count int) ([]int, error) {
	if strings.TrimSpace(list) == "" {
		indices := make([]int, count)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}
	var indices []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil || first < 1 {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil || last < first {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for p := first; p <= last; p++ {
			indices = append(indices, p-1)
		}
	}
	return indices, nil
}

// parseSize reads "WxH"
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	w, werr := strconv.Atoi(ws)
	h, herr := strconv.Atoi(hs)
	if !ok || werr != nil || herr != nil || w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("invalid size %q, want WIDTHxHEIGHT", s)
	}
	return w, h, nil
}

// outputPath names the file for a page. A pattern containing %d receives the
// 1-based page number; otherwise the number is appended when several pages
// are written.
func outputPath(pattern, input, format string, index int, multiple bool) string {
	if pattern == "" {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		return fmt.Sprintf("%s-%d.%s", base, index+1, format)
	}
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, index+1)
	}
	if !multiple {
		return pattern
	}
	ext := filepath.Ext(pattern)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(pattern, ext), index+1, ext)
}

type renderFlags struct {
	dpi         float64
	quality     string
	output      string
	pages       string
	thumbnail   string
	tile        string
	async       bool
	progressive bool
	format      string
	jpegQuality int
	gray        bool
	mono        bool
	transparent bool
	rotate      int
	verbose     bool
}

var qualities = map[string]render.Quality{
	"draft":    render.QualityDraft,
	"low":      render.QualityLow,
	"medium":   render.QualityMedium,
	"high":     render.QualityHigh,
	"veryhigh": render.QualityVeryHigh,
}

func (f renderFlags) options(renderConfig config.RenderConfig) (render.Options, error) {
	opts := renderConfig.Options()
	if q, ok := qualities[strings.ToLower(f.quality)]; ok {
		opts.DPI = q.DPI()
	} else if f.quality != "" {
		return opts, fmt.Errorf("unknown quality %q", f.quality)
	}
	if f.dpi > 0 {
		opts.DPI = f.dpi
	}
	switch {
	case f.mono:
		opts.ColorMode = render.ColorMonochrome
	case f.gray:
		opts.ColorMode = render.ColorGrayscale
	}
	opts.RenderTransparent = f.transparent
	if f.rotate != 0 {
		opts.Rotation = document.Rotation(f.rotate)
		opts.OverrideRotation = true
	}
	return opts, opts.Validate()
}

func runRender(renderConfig config.RenderConfig, args []string) error {
	var f renderFlags
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.Float64Var(&f.dpi, "dpi", 0, "resolution in dots per inch (default RENDER_DPI)")
	fs.StringVar(&f.quality, "quality", "", "resolution preset: draft, low, medium, high, veryhigh")
	fs.StringVar(&f.output, "o", "", "output file; %d is replaced by the page number")
	fs.StringVar(&f.pages, "pages", "", "pages to render, e.g. 1-3,7 (default all)")
	fs.StringVar(&f.thumbnail, "thumbnail", "", "render thumbnails within WIDTHxHEIGHT")
	fs.StringVar(&f.tile, "tile", "", "render tile by tile with WIDTHxHEIGHT tiles")
	fs.BoolVar(&f.async, "async", false, "render through the async job queue")
	fs.BoolVar(&f.progressive, "progressive", false, "refine each page in progressive passes")
	fs.StringVar(&f.format, "format", "png", "image format when -o is not given: png, jpg, bmp, tiff")
	fs.IntVar(&f.jpegQuality, "jpeg-quality", 90, "JPEG quality 1-100")
	fs.BoolVar(&f.gray, "gray", false, "render in grayscale")
	fs.BoolVar(&f.mono, "mono", false, "render in black and white")
	fs.BoolVar(&f.transparent, "transparent", false, "keep a transparent background")
	fs.IntVar(&f.rotate, "rotate", 0, "override page rotation: 0, 90, 180, 270")
	fs.BoolVar(&f.verbose, "v", false, "print progress")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		fs.Usage()
		return errors.New("render needs exactly one document")
	}
	input := positional[0]

	opts, err := f.options(renderConfig)
	if err != nil {
		return err
	}
	doc, err := document.Open(input)
	if err != nil {
		return err
	}
	indices, err := parsePages(f.pages, doc.PageCount())
	if err != nil {
		return err
	}

	renderer, err := render.New(renderConfig.Renderer())
	if err != nil {
		return err
	}
	defer renderer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progress := func(current, total int, message string) bool {
		if f.verbose {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", current, total, message)
		}
		return ctx.Err() == nil
	}

	var results []render.PageResult
	switch {
	case f.thumbnail != "":
		w, h, err := parseSize(f.thumbnail)
		if err != nil {
			return err
		}
		results = renderEach(ctx, doc, indices, progress, func(page document.Page) (*render.ImageBuffer, error) {
			return renderer.RenderThumbnail(ctx, page, w, h, true)
		})
	case f.tile != "":
		tw, th, err := parseSize(f.tile)
		if err != nil {
			return err
		}
		results = renderEach(ctx, doc, indices, progress, func(page document.Page) (*render.ImageBuffer, error) {
			return renderer.RenderPageTiled(ctx, page, tw, th, opts, func(done, total int) bool {
				if f.verbose {
					fmt.Fprintf(os.Stderr, "  tile %d/%d\n", done, total)
				}
				return ctx.Err() == nil
			})
		})
	case f.progressive:
		results = renderEach(ctx, doc, indices, progress, func(page document.Page) (*render.ImageBuffer, error) {
			return renderProgressive(ctx, renderer, page, opts, f.verbose)
		})
	case f.async:
		results, err = renderAsync(renderer, doc, indices, opts, f.verbose)
		if err != nil {
			return err
		}
	default:
		results = renderer.RenderPages(ctx, doc, indices, opts, progress)
	}

	var errs *multierror.Error
	for _, res := range results {
		if res.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("page %d: %w", res.Index+1, res.Err))
			continue
		}
		path := outputPath(f.output, input, f.format, res.Index, len(indices) > 1)
		if err := save(res.Buffer, path, f.jpegQuality); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		fmt.Printf("%s  %dx%d %s  %s\n", path, res.Buffer.Width(), res.Buffer.Height(),
			res.Buffer.Format(), humanize.Bytes(uint64(res.Buffer.Len())))
	}
	if len(results) < len(indices) {
		errs = multierror.Append(errs, fmt.Errorf("stopped after %d of %d pages", len(results), len(indices)))
	}
	return errs.ErrorOrNil()
}

// renderEach applies fn page by page with the same progress reporting as
// RenderPages
func renderEach(ctx context.Context, doc document.Document, indices []int, progress render.ProgressFunc,
	fn func(document.Page) (*render.ImageBuffer, error)) []render.PageResult {
	results := make([]render.PageResult, 0, len(indices))
	for i, index := range indices {
		if !progress(i, len(indices), fmt.Sprintf("Rendering page %d", index+1)) {
			break
		}
		res := render.PageResult{Index: index}
		if page := doc.Page(index); page == nil {
			res.Err = fmt.Errorf("page %d out of range (document has %d pages): %w", index+1, doc.PageCount(), render.ErrInvalidArgument)
		} else {
			res.Buffer, res.Err = fn(page)
		}
		results = append(results, res)
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

func renderProgressive(ctx context.Context, renderer *render.Renderer, page document.Page, opts render.Options, verbose bool) (*render.ImageBuffer, error) {
	if err := renderer.StartProgressive(page, opts); err != nil {
		return nil, err
	}
	defer renderer.CancelProgressive()
	for pass := 1; ; pass++ {
		more, err := renderer.ContinueProgressive(ctx)
		if err != nil {
			return nil, err
		}
		if verbose {
			if buf, err := renderer.ProgressiveBuffer(); err == nil {
				fmt.Fprintf(os.Stderr, "  pass %d %s %dx%d\n", pass, renderer.ProgressiveState(), buf.Width(), buf.Height())
			}
		}
		if !more {
			return renderer.ProgressiveBuffer()
		}
	}
}

func renderAsync(renderer *render.Renderer, doc document.Document, indices []int, opts render.Options, verbose bool) ([]render.PageResult, error) {
	async := render.NewAsyncRenderer(renderer)
	defer async.Close()

	jobs, err := async.QueueBatch(doc, indices, opts)
	if err != nil {
		return nil, err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "queued %d jobs on %d workers\n", len(jobs), async.Workers())
	}
	results := make([]render.PageResult, 0, len(jobs))
	for _, job := range jobs {
		buf, err := job.Result()
		results = append(results, render.PageResult{Index: job.PageIndex(), Buffer: buf, Err: err})
	}
	if err := render.Errors(jobs); err != nil {
		Logger.Warn("Some render jobs failed", "error", err)
	}
	return results, nil
}

func save(buf *render.ImageBuffer, path string, jpegQuality int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return buf.SaveJPEG(path, jpegQuality)
	default:
		return buf.Save(path)
	}
}

func runInfo(renderConfig config.RenderConfig, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	dpi := fs.Float64("dpi", renderConfig.DefaultDPI, "resolution used for pixel sizes")
	tile := fs.String("tile", "256x256", "tile size for the tile count")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		fs.Usage()
		return errors.New("info needs exactly one document")
	}
	tw, th, err := parseSize(*tile)
	if err != nil {
		return err
	}
	doc, err := document.Open(positional[0])
	if err != nil {
		return err
	}
	opts := render.DefaultOptions().WithDPI(*dpi)
	if err := opts.Validate(); err != nil {
		return err
	}

	fmt.Printf("%s: %d pages, %s\n", positional[0], doc.PageCount(), humanize.Bytes(uint64(len(doc.Source().Data))))
	for _, page := range document.Pages(doc) {
		w, h := render.CalculateDimensions(page, *dpi)
		tiles := render.CalculateTiles(page, tw, th, opts)
		fmt.Printf("  page %d: %gx%g pt, rotate %d, %dx%d px at %g dpi, %d tiles\n",
			page.Handle().Index+1, page.Width(), page.Height(), page.Rotation(), w, h, *dpi, len(tiles))
	}
	return nil
}
