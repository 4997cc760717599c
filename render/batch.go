package render

import (
	"context"
	"fmt"

	"github.com/drummonds/pagerender/document"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is told about each page before it renders. Returning false
// stops the batch; pages not yet started are left out of the results.
type ProgressFunc func(current, total int, message string) bool

// PageResult is the outcome for one page of a batch
type PageResult struct {
	Index  int
	Buffer *ImageBuffer
	Err    error
}

// RenderPages renders the pages at indices in order. Failures are reported
// per page and do not stop the batch.
func (r *Renderer) RenderPages(ctx context.Context, doc document.Document, indices []int, opts Options, progress ProgressFunc) []PageResult {
	return r.batch(ctx, doc, indices, progress, func(l *lease, page document.Page) (*ImageBuffer, error) {
		return r.render(ctx, l, page, opts, nil)
	})
}

// RenderAllPages renders every page of doc in order
func (r *Renderer) RenderAllPages(ctx context.Context, doc document.Document, opts Options, progress ProgressFunc) []PageResult {
	return r.RenderPages(ctx, doc, allIndices(doc), opts, progress)
}

// RenderAllThumbnails renders an aspect preserving preview of every page
func (r *Renderer) RenderAllThumbnails(ctx context.Context, doc document.Document, maxWidth, maxHeight int, progress ProgressFunc) []PageResult {
	return r.batch(ctx, doc, allIndices(doc), progress, func(_ *lease, page document.Page) (*ImageBuffer, error) {
		return r.RenderThumbnail(ctx, page, maxWidth, maxHeight, true)
	})
}

func allIndices(doc document.Document) []int {
	if doc == nil {
		return nil
	}
	indices := make([]int, doc.PageCount())
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func (r *Renderer) batch(ctx context.Context, doc document.Document, indices []int, progress ProgressFunc,
	one func(*lease, document.Page) (*ImageBuffer, error)) []PageResult {
	l := r.newLease()
	defer r.releaseLease(l)

	results := make([]PageResult, 0, len(indices))
	for i, index := range indices {
		if progress != nil && !progress(i, len(indices), fmt.Sprintf("Rendering page %d", index+1)) {
			Logger.Debug("Batch stopped by progress callback", "rendered", i, "total", len(indices))
			break
		}
		if ctx.Err() != nil {
			break
		}
		res := PageResult{Index: index}
		if page := pageAt(doc, index); page == nil {
			res.Err = invalidArgf("page %d does not exist", index)
		} else {
			res.Buffer, res.Err = one(l, page)
		}
		results = append(results, res)
	}
	return results
}

func pageAt(doc document.Document, index int) document.Page {
	if doc == nil || index < 0 || index >= doc.PageCount() {
		return nil
	}
	return doc.Page(index)
}

// RenderPagesParallel renders the pages at indices on up to ThreadCount
// goroutines. Results keep the order of indices.
func (r *Renderer) RenderPagesParallel(ctx context.Context, doc document.Document, indices []int, opts Options) []PageResult {
	results := make([]PageResult, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.ThreadCount())
	for i, index := range indices {
		results[i].Index = index
		page := pageAt(doc, index)
		if page == nil {
			results[i].Err = invalidArgf("page %d does not exist", index)
			continue
		}
		g.Go(func() error {
			results[i].Buffer, results[i].Err = r.RenderPage(gctx, page, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
