package pdfrenderer

import (
	"fmt"

	"github.com/drummonds/pagerender/document"
	"github.com/hashicorp/go-multierror"
)

// maxOpenDocuments bounds how many documents one context keeps open
const maxOpenDocuments = 8

// openDocuments keeps the most recently opened engine documents of a context,
// closing the oldest once more than limit are open
type openDocuments[D any] struct {
	limit int
	docs  map[*document.Source]D
	order []*document.Source
	close func(D) error
}

func newOpenDocuments[D any](limit int, closeDoc func(D) error) *openDocuments[D] {
	return &openDocuments[D]{
		limit: limit,
		docs:  make(map[*document.Source]D),
		close: closeDoc,
	}
}

func (o *openDocuments[D]) get(src *document.Source) (D, bool) {
	doc, ok := o.docs[src]
	return doc, ok
}

func (o *openDocuments[D]) add(src *document.Source, doc D) {
	for len(o.order) >= o.limit {
		oldest := o.order[0]
		o.order = o.order[1:]
		if err := o.close(o.docs[oldest]); err != nil {
			Logger.Warn("Failed to close evicted document", "document", oldest.Name, "error", err)
		}
		delete(o.docs, oldest)
	}
	o.docs[src] = doc
	o.order = append(o.order, src)
}

func (o *openDocuments[D]) len() int {
	return len(o.order)
}

// closeAll closes every document and reports each failure
func (o *openDocuments[D]) closeAll() error {
	var result *multierror.Error
	for _, src := range o.order {
		if err := o.close(o.docs[src]); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing %s: %w", src.Name, err))
		}
	}
	o.docs = make(map[*document.Source]D)
	o.order = nil
	return result.ErrorOrNil()
}
