package pdfrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/drummonds/pagerender/document"
	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
)

func TestOpenDocuments_EvictsOldest(t *testing.T) {
	var logs bytes.Buffer
	saved := Logger
	Logger = slog.New(slog.NewTextHandler(&logs, nil))
	defer func() { Logger = saved }()

	var closed []string
	docs := newOpenDocuments(2, func(name string) error {
		closed = append(closed, name)
		if name == "a" {
			return errors.New("stuck")
		}
		return nil
	})
	sources := map[string]*document.Source{}
	for _, name := range []string{"a", "b", "c"} {
		sources[name] = document.NewSource(name+".pdf", []byte(name))
		docs.add(sources[name], name)
	}

	if diff := cmp.Diff([]string{"a"}, closed); diff != "" {
		t.Errorf("Unexpected evictions (-want +got):\n%s", diff)
	}
	if _, ok := docs.get(sources["a"]); ok {
		t.Error("Oldest document should have been evicted")
	}
	if doc, ok := docs.get(sources["c"]); !ok || doc != "c" {
		t.Errorf("Expected newest document to be open, got %q %v", doc, ok)
	}
	if docs.len() != 2 {
		t.Errorf("Expected 2 open documents, got %d", docs.len())
	}
	if !strings.Contains(logs.String(), "Failed to close evicted document") || !strings.Contains(logs.String(), "stuck") {
		t.Errorf("Eviction failure was not logged: %s", logs.String())
	}
}

func TestOpenDocuments_CloseAllCollectsErrors(t *testing.T) {
	docs := newOpenDocuments(8, func(n int) error {
		if n%2 == 1 {
			return fmt.Errorf("close %d failed", n)
		}
		return nil
	})
	for i := 0; i < 4; i++ {
		docs.add(document.NewSource(fmt.Sprintf("doc%d.pdf", i), nil), i)
	}

	err := docs.closeAll()
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("Expected a multierror, got %v", err)
	}
	if len(merr.Errors) != 2 {
		t.Errorf("Expected 2 close failures, got %d: %v", len(merr.Errors), err)
	}
	if docs.len() != 0 {
		t.Errorf("Expected no open documents after closeAll, got %d", docs.len())
	}
	if err := docs.closeAll(); err != nil {
		t.Errorf("Second closeAll should be clean, got %v", err)
	}
}
