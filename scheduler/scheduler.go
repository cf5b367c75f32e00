// Package scheduler drives a crawl run: it owns the work queue, paces
// fetches, filters duplicate URLs, and routes page markup between the
// fetch layer and the crawler's page logic. Page failures are contained
// per instruction; only a dead session that cannot be rebuilt, an export
// failure, or cancellation stops the run.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/use-agent/gleaner/crawler"
	"github.com/use-agent/gleaner/export"
	"github.com/use-agent/gleaner/fetch"
	"github.com/use-agent/gleaner/models"
)

// listingScrollNudge is how far listing pages are scrolled after
// readiness so lazily loaded cards enter the markup.
const listingScrollNudge = 1000

// Fetcher is the slice of the fetch layer the scheduler needs.
type Fetcher interface {
	Fetch(ctx context.Context, req *fetch.Request) (*fetch.Result, error)
}

// Options configures a run.
type Options struct {
	// RequestsPerSecond and Burst pace fetches.
	RequestsPerSecond float64
	Burst             int

	// MaxPages caps listing pages visited per run; 0 means unbounded.
	MaxPages int
}

// Scheduler executes one crawl run to completion.
type Scheduler struct {
	runID   string
	crawl   *crawler.Crawler
	fetcher Fetcher
	sink    export.Sink
	limiter *rate.Limiter
	filter  *DedupeFilter
	maxPage int

	pagesFetched int
	recordsOut   int
}

// New creates a Scheduler for one run.
func New(c *crawler.Crawler, fetcher Fetcher, sink export.Sink, opts Options) *Scheduler {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Scheduler{
		runID:   uuid.NewString(),
		crawl:   c,
		fetcher: fetcher,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		filter:  NewDedupeFilter(),
		maxPage: opts.MaxPages,
	}
}

// RunID identifies this run in logs and webhook deliveries.
func (s *Scheduler) RunID() string { return s.runID }

// SetSink replaces the record destination. Callers that need the run ID
// to build the sink (webhook deliveries carry it) attach it here before
// Run.
func (s *Scheduler) SetSink(sink export.Sink) { s.sink = sink }

// Run drains the work queue. It returns nil when the queue empties,
// which is the normal end of a crawl.
func (s *Scheduler) Run(ctx context.Context) error {
	log := slog.With("run_id", s.runID)
	started := time.Now()

	queue := s.crawl.Start()
	log.Info("crawl started", "start_urls", len(queue))

	for len(queue) > 0 {
		inst := queue[0]
		queue = queue[1:]

		if inst.Stage == crawler.StageListing && s.maxPage > 0 && inst.PageNum > s.maxPage {
			log.Info("listing page cap reached", "cap", s.maxPage)
			continue
		}
		// Requeued retries already passed the filter once.
		if inst.Attempts == 0 && !inst.DontFilter && s.filter.Visit(inst.URL) {
			log.Debug("duplicate url skipped", "url", inst.URL)
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		inst.Attempts++
		followups, err := s.process(ctx, inst, log)
		if err != nil {
			if s.fatal(err) {
				log.Error("crawl aborted", "url", inst.URL, "error", err)
				return err
			}
			if s.retryable(err) && inst.Attempts == 1 {
				log.Warn("fetch failed, requeueing once", "url", inst.URL, "error", err)
				queue = append(queue, inst)
				continue
			}
			log.Warn("page skipped", "url", inst.URL, "stage", inst.Stage.String(), "error", err)
			continue
		}
		queue = append(queue, followups...)
	}

	log.Info("crawl finished",
		"pages", s.pagesFetched,
		"records", s.recordsOut,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// process fetches one instruction and hands the markup to the crawler.
func (s *Scheduler) process(ctx context.Context, inst *crawler.Instruction, log *slog.Logger) ([]*crawler.Instruction, error) {
	req := &fetch.Request{
		URL:    inst.URL,
		Wait:   inst.Wait,
		Render: inst.Render,
		Click:  inst.Click,
	}
	if inst.Stage == crawler.StageListing && inst.Render {
		req.ScrollY = listingScrollNudge
	}

	res, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if inst.Click != nil && !res.Advanced {
		log.Info("pagination ended", "url", inst.URL, "page", inst.PageNum)
		return nil, nil
	}
	s.pagesFetched++

	switch inst.Stage {
	case crawler.StageDetail:
		rec, err := s.crawl.HandleDetail(res.Markup, res.FinalURL, inst)
		if err != nil {
			return nil, err
		}
		if err := s.sink.Write(rec); err != nil {
			return nil, err
		}
		s.recordsOut++
		return nil, nil
	default:
		return s.crawl.HandleListing(res.Markup, res.FinalURL, inst.PageNum)
	}
}

// retryable picks out transient transport failures worth one more
// attempt. Readiness timeouts are not retried: the page loaded, its
// content never appeared, and a second render rarely changes that.
func (s *Scheduler) retryable(err error) bool {
	switch models.ErrCode(err) {
	case models.ErrCodeFetchFailed, models.ErrCodeNavigation:
		return true
	}
	return false
}

// fatal decides whether an instruction's failure ends the run. Readiness
// timeouts and fetch failures cost one page; a session that stayed
// invalid after recreation, export failures, and cancellation stop
// everything.
func (s *Scheduler) fatal(err error) bool {
	// Classified errors decide first: a readiness timeout wraps
	// context.DeadlineExceeded but only costs the page.
	switch models.ErrCode(err) {
	case models.ErrCodeRenderTimeout, models.ErrCodeNavigation, models.ErrCodeFetchFailed, models.ErrCodeInternal:
		return false
	case models.ErrCodeSessionInvalid, models.ErrCodeBrowserCrash, models.ErrCodeExportFailed:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
