package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

type CleanupSuite struct {
	suite.Suite
	ctx   context.Context
	store *stubStore
}

func TestCleanupSuite(t *testing.T) {
	suite.Run(t, new(CleanupSuite))
}

func (s *CleanupSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newStubStore()
}

func (s *CleanupSuite) TestOneDeletePerHandle() {
	tracker := NewHandleTracker("gemini", nil)
	tracker.Track(model.Resource{Name: "files/a"})
	tracker.Track(model.Resource{Name: "files/b"})
	tracker.Track(model.Resource{})

	errs := tracker.Cleanup(s.ctx, s.store)
	s.Empty(errs)
	s.Equal([]string{"files/a", "files/b"}, s.store.deletes)
}

func (s *CleanupSuite) TestFailureIsReportedAndOthersStillDeleted() {
	s.store.failDelete["files/a"] = errors.New("permission denied")
	m := metrics.New()
	tracker := NewHandleTracker("gemini", m)
	tracker.Track(model.Resource{Name: "files/a"})
	tracker.Track(model.Resource{Name: "files/b"})

	errs := tracker.Cleanup(s.ctx, s.store)
	s.Require().Len(errs, 1)

	var cleanupErr *model.CleanupError
	s.Require().True(errors.As(errs[0], &cleanupErr))
	s.Equal("files/a", cleanupErr.Resource)
	s.Equal([]string{"files/a", "files/b"}, s.store.deletes)
	s.Equal(1.0, testutil.ToFloat64(m.CleanupFailures.WithLabelValues("gemini")))
}

func (s *CleanupSuite) TestSecondCleanupIsNoOp() {
	tracker := NewHandleTracker("gemini", nil)
	tracker.Track(model.Resource{Name: "files/a"})

	tracker.Cleanup(s.ctx, s.store)
	s.Empty(tracker.Pending())
	tracker.Cleanup(s.ctx, s.store)

	s.Equal([]string{"files/a"}, s.store.deletes)
}

func (s *CleanupSuite) TestCancelledContextStillDeletes() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	errs := Cleanup(ctx, s.store, []model.Resource{{Name: "files/a"}}, "gemini", nil)
	s.Empty(errs)
	s.Equal([]string{"files/a"}, s.store.deletes)
}
