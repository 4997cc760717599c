package render

import (
	"context"
	"fmt"

	"github.com/drummonds/pagerender/engine/pdfrenderer"
	pool "github.com/jolestar/go-commons-pool/v2"
)

// contextRegistry hands out engine contexts, each to one caller at a time.
// Contexts are created on first demand, reused when returned and closed
// when the registry is.
type contextRegistry struct {
	engine pdfrenderer.Engine
	pool   *pool.ObjectPool
}

func newContextRegistry(engine pdfrenderer.Engine, maxIdle int) *contextRegistry {
	factory := pool.NewPooledObjectFactory(
		func(context.Context) (interface{}, error) {
			rc, err := engine.NewContext()
			if err != nil {
				return nil, err
			}
			Logger.Info("Created render context", "backend", engine.Backend())
			return rc, nil
		},
		func(ctx context.Context, object *pool.PooledObject) error {
			Logger.Info("Closing render context", "backend", engine.Backend())
			return object.Object.(pdfrenderer.Context).Close()
		},
		func(context.Context, *pool.PooledObject) bool { return true },
		func(context.Context, *pool.PooledObject) error { return nil },
		func(context.Context, *pool.PooledObject) error { return nil },
	)

	cfg := pool.NewDefaultPoolConfig()
	cfg.MaxTotal = -1
	cfg.MaxIdle = maxIdle
	cfg.MinIdle = 0
	cfg.BlockWhenExhausted = false

	return &contextRegistry{
		engine: engine,
		pool:   pool.NewObjectPool(context.Background(), factory, cfg),
	}
}

func (r *contextRegistry) acquire(ctx context.Context) (pdfrenderer.Context, error) {
	obj, err := r.pool.BorrowObject(ctx)
	if err != nil {
		return nil, renderErrorf(err, "unable to acquire %s render context: %v", r.engine.Backend(), err)
	}
	return obj.(pdfrenderer.Context), nil
}

func (r *contextRegistry) release(rc pdfrenderer.Context) error {
	return r.pool.ReturnObject(context.Background(), rc)
}

// discard closes a context that may be in a bad state
func (r *contextRegistry) discard(rc pdfrenderer.Context) error {
	return r.pool.InvalidateObject(context.Background(), rc)
}

func (r *contextRegistry) active() int {
	return r.pool.GetNumActive()
}

func (r *contextRegistry) close() {
	r.pool.Close(context.Background())
}

// lease binds at most one context to its holder until released. Direct calls
// hold a lease for one render; async workers hold one for their lifetime.
type lease struct {
	reg *contextRegistry
	rc  pdfrenderer.Context
}

func (l *lease) get(ctx context.Context) (pdfrenderer.Context, error) {
	if l.rc != nil {
		return l.rc, nil
	}
	rc, err := l.reg.acquire(ctx)
	if err != nil {
		return nil, err
	}
	l.rc = rc
	return rc, nil
}

// discard drops the held context after an engine panic
func (l *lease) discard() {
	if l.rc == nil {
		return
	}
	if err := l.reg.discard(l.rc); err != nil {
		Logger.Warn("Failed to discard render context", "error", err)
	}
	l.rc = nil
}

func (l *lease) release() error {
	if l.rc == nil {
		return nil
	}
	err := l.reg.release(l.rc)
	l.rc = nil
	if err != nil {
		return fmt.Errorf("unable to return render context: %w", err)
	}
	return nil
}
