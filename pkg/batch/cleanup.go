package batch

import (
	"context"
	"sync"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

// HandleTracker remembers the resources a run uploaded so they can be deleted once.
type HandleTracker struct {
	mu       sync.Mutex
	provider string
	handles  []model.Resource
	metrics  *metrics.Metrics
}

func NewHandleTracker(provider string, m *metrics.Metrics) *HandleTracker {
	return &HandleTracker{provider: provider, metrics: m}
}

func (t *HandleTracker) Track(res model.Resource) {
	if res.Name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles = append(t.handles, res)
}

func (t *HandleTracker) Pending() []model.Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Resource(nil), t.handles...)
}

// Cleanup deletes every tracked resource and forgets it, so a second call is a no-op.
// Failures are logged and returned as CleanupError values; they are never fatal.
func (t *HandleTracker) Cleanup(ctx context.Context, deleter model.ResourceDeleter) []error {
	t.mu.Lock()
	handles := t.handles
	t.handles = nil
	t.mu.Unlock()

	return Cleanup(ctx, deleter, handles, t.provider, t.metrics)
}

// Cleanup issues one delete per handle.
func Cleanup(
	ctx context.Context,
	deleter model.ResourceDeleter,
	handles []model.Resource,
	provider string,
	m *metrics.Metrics,
) []error {
	const fn = "batch.Cleanup"
	log := logging.NewLogger(ctx)

	// The run context may already be cancelled; deletes still need to go out.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, handle := range handles {
		err := deleter.DeleteFile(ctx, handle.Name)
		m.ObserveDelete(provider, err)
		if err != nil {
			cleanupErr := &model.CleanupError{Resource: handle.Name, Err: err}
			log.Warnf("%s %v", fn, cleanupErr)
			errs = append(errs, cleanupErr)
			continue
		}
		log.Infof("%s deleted %s", fn, handle.Name)
	}
	return errs
}
