package render

import (
	"context"
	"testing"
)

func TestCache_LRUEviction(t *testing.T) {
	engine := &fakeEngine{}
	cfg := DefaultConfig()
	cfg.CacheMaxEntries = 3
	r := newTestRenderer(t, engine, cfg)
	doc := letterDoc(4)
	opts := DefaultOptions().WithDPI(36)
	ctx := context.Background()

	render := func(i int) {
		t.Helper()
		if _, err := r.RenderPage(ctx, doc.Page(i), opts); err != nil {
			t.Fatalf("RenderPage(%d) failed: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		render(i)
	}
	if engine.calls.Load() != 3 {
		t.Fatalf("Expected 3 engine calls, got %d", engine.calls.Load())
	}

	// page 0 becomes most recent, leaving page 1 least recently used
	render(0)
	if engine.calls.Load() != 3 {
		t.Fatalf("Expected cache hit for page 0, engine calls %d", engine.calls.Load())
	}

	render(3)
	stats := r.CacheStats()
	if stats.Entries != 3 || stats.Evictions != 1 {
		t.Fatalf("Expected 3 entries and 1 eviction, got %+v", stats)
	}

	render(2)
	render(0)
	if engine.calls.Load() != 4 {
		t.Fatalf("Pages 0 and 2 should still be cached, engine calls %d", engine.calls.Load())
	}

	render(1)
	if engine.calls.Load() != 5 {
		t.Fatalf("Evicted page 1 should render again, engine calls %d", engine.calls.Load())
	}
}

func TestCache_OptionsMustMatch(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRenderer(t, engine, DefaultConfig())
	page := letterDoc(1).Page(0)
	ctx := context.Background()

	r.RenderPage(ctx, page, DefaultOptions().WithDPI(36))
	r.RenderPage(ctx, page, DefaultOptions().WithDPI(48))
	r.RenderPage(ctx, page, DefaultOptions().WithDPI(48))
	if engine.calls.Load() != 2 {
		t.Errorf("Expected a miss on changed options and a hit after, got %d calls", engine.calls.Load())
	}
	if stats := r.CacheStats(); stats.Entries != 1 {
		t.Errorf("One page should hold one entry, got %d", stats.Entries)
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, DefaultConfig())
	page := letterDoc(1).Page(0)
	opts := DefaultOptions().WithDPI(36)
	ctx := context.Background()

	first, _ := r.RenderPage(ctx, page, opts)
	original := first.Data()[0]
	first.Data()[0] = original + 1

	second, err := r.RenderPage(ctx, page, opts)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if second.Data()[0] != original {
		t.Error("Mutating a returned buffer changed the cached copy")
	}
}

func TestCache_Controls(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRenderer(t, engine, DefaultConfig())
	doc := letterDoc(2)
	opts := DefaultOptions().WithDPI(36)
	ctx := context.Background()

	r.RenderPage(ctx, doc.Page(0), opts)
	r.RenderPage(ctx, doc.Page(1), opts)

	r.InvalidatePage(doc.Page(0))
	r.RenderPage(ctx, doc.Page(0), opts)
	r.RenderPage(ctx, doc.Page(1), opts)
	if engine.calls.Load() != 3 {
		t.Errorf("Only the invalidated page should re-render, got %d calls", engine.calls.Load())
	}

	r.ClearCache()
	if stats := r.CacheStats(); stats.Entries != 0 || stats.Bytes != 0 {
		t.Errorf("Expected empty cache, got %+v", stats)
	}

	r.SetCacheEnabled(false)
	if r.CacheEnabled() {
		t.Error("Cache should report disabled")
	}
	r.RenderPage(ctx, doc.Page(0), opts)
	r.RenderPage(ctx, doc.Page(0), opts)
	if engine.calls.Load() != 5 {
		t.Errorf("Disabled cache should not serve hits, got %d calls", engine.calls.Load())
	}
}

func TestCache_SizeBound(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRenderer(t, engine, DefaultConfig())
	doc := letterDoc(3)
	ctx := context.Background()
	// 1275x1650 RGB24 is about 6 MB
	opts := DefaultOptions()

	for i := 0; i < 3; i++ {
		r.RenderPage(ctx, doc.Page(i), opts)
	}
	if err := r.SetCacheSize(13); err != nil {
		t.Fatalf("SetCacheSize failed: %v", err)
	}
	stats := r.CacheStats()
	if stats.Entries != 2 || stats.Bytes > stats.MaxBytes {
		t.Errorf("Expected shrink to two entries within bound, got %+v", stats)
	}

	if err := r.SetCacheSize(0); err != nil {
		t.Fatalf("SetCacheSize failed: %v", err)
	}
	r.RenderPage(ctx, doc.Page(0), opts)
	if stats := r.CacheStats(); stats.Entries != 0 {
		t.Errorf("Zero sized cache should hold nothing, got %d", stats.Entries)
	}

	assertKind(t, r.SetCacheSize(-1), ErrInvalidArgument)
	assertKind(t, r.SetCacheMaxEntries(-1), ErrInvalidArgument)
}
