package render

import (
	"context"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestProgressive_StateMachine(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, DefaultConfig())
	page := letterDoc(1).Page(0)
	opts := DefaultOptions().WithDPI(72)
	ctx := context.Background()

	if r.ProgressiveState() != ProgressiveIdle {
		t.Fatalf("Expected idle, got %s", r.ProgressiveState())
	}
	if _, err := r.ProgressiveBuffer(); err == nil {
		t.Error("Idle session should have no buffer")
	}
	if _, err := r.ContinueProgressive(ctx); err == nil {
		t.Error("Continue without a session should fail")
	}

	if err := r.StartProgressive(page, opts); err != nil {
		t.Fatalf("StartProgressive failed: %v", err)
	}
	if r.ProgressiveState() != ProgressiveStarted {
		t.Fatalf("Expected started, got %s", r.ProgressiveState())
	}
	blank, err := r.ProgressiveBuffer()
	if err != nil {
		t.Fatalf("ProgressiveBuffer failed: %v", err)
	}
	if blank.Width() != 612 || blank.Height() != 792 {
		t.Errorf("Expected full size placeholder, got %dx%d", blank.Width(), blank.Height())
	}
	if got := blank.At(300, 300); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("Placeholder should be background, got %v", got)
	}

	var passes int
	for {
		more, err := r.ContinueProgressive(ctx)
		if err != nil {
			t.Fatalf("ContinueProgressive failed: %v", err)
		}
		passes++
		buf, err := r.ProgressiveBuffer()
		if err != nil {
			t.Fatalf("ProgressiveBuffer failed: %v", err)
		}
		if buf.Width() != 612 || buf.Height() != 792 {
			t.Fatalf("Pass %d produced %dx%d", passes, buf.Width(), buf.Height())
		}
		if !more {
			break
		}
		if r.ProgressiveState() != ProgressiveInProgress {
			t.Fatalf("Expected in progress, got %s", r.ProgressiveState())
		}
	}
	if passes != len(progressivePasses) {
		t.Errorf("Expected %d passes, got %d", len(progressivePasses), passes)
	}
	if r.ProgressiveState() != ProgressiveDone {
		t.Fatalf("Expected done, got %s", r.ProgressiveState())
	}

	final, _ := r.ProgressiveBuffer()
	direct, err := r.RenderPage(ctx, page, opts)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if !cmp.Equal(final.Data(), direct.Data()) {
		t.Error("Final pass should equal a direct render")
	}
	if _, err := r.ContinueProgressive(ctx); err == nil {
		t.Error("Continue after done should fail")
	}
}

func TestProgressive_Cancel(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, DefaultConfig())
	doc := letterDoc(2)
	ctx := context.Background()

	if err := r.StartProgressive(doc.Page(0), DefaultOptions()); err != nil {
		t.Fatalf("StartProgressive failed: %v", err)
	}
	if _, err := r.ContinueProgressive(ctx); err != nil {
		t.Fatalf("ContinueProgressive failed: %v", err)
	}
	r.CancelProgressive()
	if r.ProgressiveState() != ProgressiveCancelled {
		t.Fatalf("Expected cancelled, got %s", r.ProgressiveState())
	}
	if _, err := r.ProgressiveBuffer(); err == nil {
		t.Error("Cancelled session should have no buffer")
	}

	// a new session replaces the old one
	if err := r.StartProgressive(doc.Page(1), DefaultOptions()); err != nil {
		t.Fatalf("StartProgressive failed: %v", err)
	}
	if r.ProgressiveState() != ProgressiveStarted {
		t.Errorf("Expected started, got %s", r.ProgressiveState())
	}
	if err := r.StartProgressive(nil, DefaultOptions()); err == nil {
		t.Error("Expected error starting without a page")
	}
}
