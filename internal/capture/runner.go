package capture

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

// Request is one page capture job.
type Request struct {
	TenantID string
	URL      string
	Content  string
}

// Runner drives concurrent captures. Pages for different URLs proceed in
// parallel; extraction within a page stays sequential inside the pipeline.
type Runner struct {
	pipeline    *Pipeline
	concurrency int
	limiter     *rate.Limiter
}

// NewRunner creates a runner. concurrency bounds in-flight pages; rps
// bounds capture starts per second (0 disables the limiter).
func NewRunner(pipeline *Pipeline, concurrency int, rps float64) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Runner{
		pipeline:    pipeline,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// CaptureAll processes every request and returns the merged run result.
// A failed page is counted and logged; it never aborts the other pages.
func (r *Runner) CaptureAll(ctx context.Context, requests []Request) model.CaptureResult {
	var total model.CaptureResult

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	for _, req := range requests {
		g.Go(func() error {
			if r.limiter != nil {
				if err := r.limiter.Wait(gCtx); err != nil {
					return err
				}
			}

			_, res, err := r.pipeline.CapturePage(gCtx, req.TenantID, req.URL, req.Content)
			if err != nil {
				zap.L().Error("capture: page failed",
					zap.String("tenant_id", req.TenantID),
					zap.String("url", req.URL),
					zap.Error(err),
				)
			}

			mu.Lock()
			total.Add(res)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return total
}
