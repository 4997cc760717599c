package render

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/drummonds/pagerender/document"
)

// ProgressiveState is the position of a progressive render
type ProgressiveState int

const (
	ProgressiveIdle ProgressiveState = iota
	ProgressiveStarted
	ProgressiveInProgress
	ProgressiveDone
	ProgressiveCancelled
)

func (s ProgressiveState) String() string {
	switch s {
	case ProgressiveIdle:
		return "idle"
	case ProgressiveStarted:
		return "started"
	case ProgressiveInProgress:
		return "in progress"
	case ProgressiveDone:
		return "done"
	case ProgressiveCancelled:
		return "cancelled"
	}
	return "unknown"
}

// progressivePasses are the resolutions, as fractions of the target, of the
// successive refinements. The last pass is the full render.
var progressivePasses = []float64{0.25, 0.5, 1}

// progressiveSession is the single progressive render a Renderer runs
type progressiveSession struct {
	mu         sync.Mutex
	state      ProgressiveState
	generation int
	page       document.Page
	opts       Options
	lay        layout
	pass       int
	current    *ImageBuffer
	cancelPass context.CancelFunc
}

// StartProgressive begins refining page and cancels any previous session
func (r *Renderer) StartProgressive(page document.Page, opts Options) error {
	lay, err := computeLayout(page, opts)
	if err != nil {
		return err
	}
	s := &r.progressive
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.generation++
	s.state = ProgressiveStarted
	s.page = page
	s.opts = opts
	s.lay = lay
	s.pass = 0
	s.current = nil
	return nil
}

// ContinueProgressive runs the next refinement pass. It returns true while
// further passes remain.
func (r *Renderer) ContinueProgressive(ctx context.Context) (bool, error) {
	s := &r.progressive
	s.mu.Lock()
	if s.state != ProgressiveStarted && s.state != ProgressiveInProgress {
		state := s.state
		s.mu.Unlock()
		return false, invalidArgf("no progressive render to continue (state %s)", state)
	}
	gen, page, opts, lay, pass := s.generation, s.page, s.opts, s.lay, s.pass
	passCtx, cancel := context.WithCancel(ctx)
	s.cancelPass = cancel
	s.mu.Unlock()
	defer cancel()

	var buf *ImageBuffer
	var err error
	if pass == len(progressivePasses)-1 {
		l := r.newLease()
		buf, err = r.render(passCtx, l, page, opts, nil)
		r.releaseLease(l)
	} else {
		buf, err = r.renderPass(passCtx, page, opts, lay, progressivePasses[pass])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state == ProgressiveCancelled {
		return false, renderErrorf(nil, "progressive render cancelled")
	}
	s.cancelPass = nil
	if err != nil {
		return false, err
	}
	s.current = buf
	s.pass++
	if s.pass == len(progressivePasses) {
		s.state = ProgressiveDone
		return false, nil
	}
	s.state = ProgressiveInProgress
	return true, nil
}

// renderPass renders at a fraction of the target resolution and scales the
// result up to the final size. Passes bypass the cache.
func (r *Renderer) renderPass(ctx context.Context, page document.Page, opts Options, target layout, fraction float64) (*ImageBuffer, error) {
	low := opts.WithDPI(opts.DPI * fraction)
	lay, err := computeLayout(page, low)
	if err != nil {
		// too small to render at this fraction; blank until the next pass
		return blankBuffer(target, opts), nil
	}
	l := r.newLease()
	defer r.releaseLease(l)
	full, err := r.rasterize(ctx, l, page, low, lay)
	if err != nil {
		return nil, err
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	return pack(resample(lay.finish(full), target.outW, target.outH), opts), nil
}

func blankBuffer(lay layout, opts Options) *ImageBuffer {
	var fill image.Image = imaging.New(lay.outW, lay.outH, opts.Background)
	if opts.RenderTransparent {
		fill = image.NewNRGBA(image.Rect(0, 0, lay.outW, lay.outH))
	}
	return pack(imaging.Clone(fill), opts)
}

// ProgressiveBuffer returns a copy of the best image so far. Before the first
// pass that is the background at full size.
func (r *Renderer) ProgressiveBuffer() (*ImageBuffer, error) {
	s := &r.progressive
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case ProgressiveStarted:
		return blankBuffer(s.lay, s.opts), nil
	case ProgressiveInProgress, ProgressiveDone:
		return s.current.Clone(), nil
	}
	return nil, invalidArgf("no progressive render available (state %s)", s.state)
}

// CancelProgressive abandons the running session
func (r *Renderer) CancelProgressive() {
	s := &r.progressive
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *progressiveSession) stopLocked() {
	if s.cancelPass != nil {
		s.cancelPass()
		s.cancelPass = nil
	}
	if s.state == ProgressiveStarted || s.state == ProgressiveInProgress {
		s.state = ProgressiveCancelled
		s.current = nil
	}
}

// ProgressiveState reports the session state
func (r *Renderer) ProgressiveState() ProgressiveState {
	s := &r.progressive
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
