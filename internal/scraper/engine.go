// internal/scraper/engine.go
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/fetchlab/cataloger/internal/config"
	"github.com/fetchlab/cataloger/internal/monitoring"
	"github.com/fetchlab/cataloger/internal/pipeline"
	"github.com/fetchlab/cataloger/internal/utils"
	"github.com/fetchlab/cataloger/pkg/types"
)

// RecordSink is the append-only record store the engine persists into.
// Satisfied by every writer in internal/output.
type RecordSink interface {
	Append(records []*types.ProductRecord) error
}

// Options wires an Engine.
type Options struct {
	Config  *config.Config
	Sink    RecordSink
	Log     utils.Logger
	Metrics *monitoring.Metrics
}

// RunSummary reports what a crawl run accomplished.
type RunSummary struct {
	ItemsSaved       int
	ItemsEnqueued    int
	ProxyCircuitOpen bool
	DegradedRerun    bool
}

// Engine is the orchestrator: it drives page tasks from the queue through
// fetch, channel extraction, normalization, filtering, persistence, and
// pagination, on a bounded worker pool.
type Engine struct {
	cfg     *config.Config
	sink    RecordSink
	log     utils.Logger
	metrics *monitoring.Metrics

	state      *RunState
	normalizer *pipeline.Normalizer
	filter     *pipeline.FilterEngine
	controller *Controller
}

// New builds an engine from validated configuration.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("record sink is required")
	}
	if opts.Log == nil {
		opts.Log = utils.NewLogger()
	}

	cfg := opts.Config
	state := NewRunState(cfg.Limits.MaxItems)

	normalizer, err := pipeline.NewNormalizer(cfg.Site.Origin, cfg.Site.Currency)
	if err != nil {
		return nil, fmt.Errorf("invalid site origin: %w", err)
	}

	filters := pipeline.Filters{
		Brands:   cfg.Filters.Brands,
		Colors:   cfg.Filters.Colors,
		Sizes:    cfg.Filters.Sizes,
		MinPrice: cfg.Filters.MinPrice,
		MaxPrice: cfg.Filters.MaxPrice,
	}

	return &Engine{
		cfg:        cfg,
		sink:       opts.Sink,
		log:        opts.Log,
		metrics:    opts.Metrics,
		state:      state,
		normalizer: normalizer,
		filter:     pipeline.NewFilterEngine(filters, state, opts.Log, opts.Metrics),
		controller: NewController(cfg.Limits.MaxPages, cfg.Limits.PageSize, cfg.Target.Locale, opts.Log),
	}, nil
}

// Run executes the crawl. When the run ends with the proxy circuit open and
// a proxy was configured, one full re-run from the seed URLs is performed
// with the proxy disabled and a fresh task queue; accepted identity keys
// and the item ceiling carry over, so the degraded pass never duplicates
// output.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	if err := e.runOnce(ctx, e.cfg.Proxy.URL); err != nil {
		return nil, err
	}

	degraded := false
	if e.state.ProxyCircuitOpen() && e.cfg.Proxy.Enabled() && !e.state.Stopped() {
		degraded = true
		e.metrics.DegradedRerun()
		e.log.Warn("run ended with proxy circuit open, re-running once without proxy")
		if err := e.runOnce(ctx, ""); err != nil {
			return nil, err
		}
	}

	return &RunSummary{
		ItemsSaved:       e.state.ItemsSaved(),
		ItemsEnqueued:    e.state.ItemsEnqueued(),
		ProxyCircuitOpen: e.state.ProxyCircuitOpen(),
		DegradedRerun:    degraded,
	}, nil
}

// runOnce drives one pass over the seed URLs to queue exhaustion.
func (e *Engine) runOnce(ctx context.Context, proxyURL string) error {
	client, err := NewClient(ClientConfig{
		Timeout:           e.cfg.Limits.RequestTimeout,
		RetryAttempts:     e.cfg.Limits.RetryAttempts,
		RequestsPerSecond: e.cfg.Limits.RequestsPerSecond,
		ProxyURL:          proxyURL,
		Headers:           e.cfg.Target.Headers,
	}, e.state, e.log, e.metrics)
	if err != nil {
		return err
	}

	channels := e.buildChannels(client)
	queue := newTaskQueue()

	seeded := 0
	for _, seed := range e.cfg.Target.SeedURLs {
		if queue.Push(&PageTask{URL: seed, Kind: TaskListing, Page: 1}) {
			seeded++
		}
	}
	if seeded == 0 {
		// The only hard failure: no seed task could be constructed.
		return fmt.Errorf("no seed tasks could be enqueued")
	}

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Limits.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			log := e.log.WithField("worker", worker)
			for {
				task, ok := queue.Pop()
				if !ok {
					return
				}
				// The stop flag gates new listing and pagination work only;
				// detail tasks already reserved under the ceiling are the
				// run's output and must still complete.
				if ctx.Err() != nil || (e.state.Stopped() && task.Kind != TaskDetail) {
					queue.Done()
					continue
				}
				e.process(ctx, client, channels, queue, task, log)
				queue.Done()
			}
		}(i)
	}

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			queue.Close()
		case <-watchDone:
		}
	}()

	wg.Wait()
	close(watchDone)
	return ctx.Err()
}

// buildChannels assembles the extractors in descending trust order.
func (e *Engine) buildChannels(client *Client) []Channel {
	return []Channel{
		&APIChannel{
			Fetcher:   client,
			Endpoints: e.cfg.Site.APIEndpoints,
			Category:  e.cfg.Target.Category,
			PageSize:  e.cfg.Limits.PageSize,
			Log:       e.log,
		},
		&StateChannel{Markers: e.cfg.Site.StateMarkers},
		&MarkupChannel{},
		&TileChannel{},
	}
}

// process drives one page task to completion.
func (e *Engine) process(ctx context.Context, client *Client, channels []Channel, queue *taskQueue, task *PageTask, log utils.Logger) {
	e.metrics.PageProcessed(task.Kind.String())
	log = log.WithFields(map[string]interface{}{"url": task.URL, "kind": task.Kind.String(), "page": task.Page})

	// Fixed inter-page delay between API result pages keeps the backend
	// from rate limiting the run.
	if task.Strategy == StrategyAPI && task.Page > 1 {
		select {
		case <-time.After(e.cfg.Limits.PageDelay):
		case <-ctx.Done():
			return
		}
	}

	if task.Kind == TaskDetail {
		e.processDetail(ctx, client, task, log)
		return
	}

	page, err := e.loadPage(ctx, client, task)
	if err != nil {
		e.metrics.TaskAbandoned()
		log.Warnf("task abandoned: %v", err)
		return
	}

	candidates, driver, driverCount := e.extract(ctx, channels, task, page, log)

	records := make([]*types.ProductRecord, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, e.normalizer.Normalize(c))
	}

	if e.cfg.FollowDetails {
		e.enqueueDetails(queue, page, records)
	} else {
		accepted := e.filter.Apply(records)
		if len(accepted) > 0 {
			if err := e.sink.Append(accepted); err != nil {
				log.Errorf("failed to persist %d records: %v", len(accepted), err)
			}
		}
	}

	if e.state.Stopped() {
		return
	}
	next := e.controller.Next(&PageOutcome{
		Task:        task,
		Page:        page,
		Driver:      driver,
		DriverCount: driverCount,
	})
	if next != nil && queue.Push(next) {
		e.metrics.TaskEnqueued(next.Strategy.String())
	}
}

// loadPage fetches the task URL and prepares page context. API pagination
// continuations skip the HTML fetch entirely: the API channel carries the
// branch on its own.
func (e *Engine) loadPage(ctx context.Context, client *Client, task *PageTask) (*Page, error) {
	parsed, err := url.Parse(task.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid task URL: %w", err)
	}

	state := task.State
	if state == nil {
		state = &PageState{}
	}

	page := &Page{URL: parsed, State: state}

	if task.Strategy == StrategyAPI {
		state.Offset = task.Offset
		return page, nil
	}

	res, err := client.Fetch(ctx, task.URL)
	if err != nil {
		return nil, err
	}
	page.Body = res.Body

	// Seed pages harvest bootstrap configuration once per listing branch;
	// successor tasks inherit it through the carried state.
	if state.Bootstrap == nil {
		state.Bootstrap = ExtractBootstrapConfig(res.Body)
	}
	if state.BaseQuery == nil {
		state.BaseQuery = parsed.Query()
	}
	if state.CategoryID == "" {
		if cgid := parsed.Query().Get("cgid"); cgid != "" {
			state.CategoryID = cgid
		} else {
			state.CategoryID = state.Bootstrap.SearchState["cgid"]
		}
	}

	return page, nil
}

// extract runs the channels in priority order. The first productive channel
// becomes the driver for pagination, but lower-priority channels still
// contribute records not yet seen on this page.
func (e *Engine) extract(ctx context.Context, channels []Channel, task *PageTask, page *Page, log utils.Logger) ([]types.Candidate, string, int) {
	var (
		merged      []types.Candidate
		seen        = make(map[string]struct{})
		driver      string
		driverCount int
	)

	for _, ch := range channels {
		if !e.channelApplies(ch, task) {
			continue
		}

		candidates, err := ch.Extract(ctx, page)
		if err != nil {
			log.Debugf("channel %s failed: %v", ch.Name(), err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}
		e.metrics.CandidatesExtracted(ch.Name(), len(candidates))

		if driver == "" {
			driver = ch.Name()
			driverCount = len(candidates)
		}

		for _, c := range candidates {
			key := c.IdentityKey()
			if key == "" {
				key = "title:" + c.Title
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, c)
		}

		// API continuations have exactly one productive channel.
		if task.Strategy == StrategyAPI {
			break
		}
	}

	return merged, driver, driverCount
}

// channelApplies scopes channels per task shape: API continuations use only
// the API channel, and grid fragments have no credentials worth re-querying.
func (e *Engine) channelApplies(ch Channel, task *PageTask) bool {
	switch task.Strategy {
	case StrategyAPI:
		return ch.Name() == ChannelAPI
	case StrategyGrid:
		return ch.Name() != ChannelAPI
	default:
		return true
	}
}

// enqueueDetails reserves one detail task per unique record, up to the
// item ceiling.
func (e *Engine) enqueueDetails(queue *taskQueue, page *Page, records []*types.ProductRecord) {
	for _, rec := range records {
		if rec.URL == "" {
			continue
		}
		if e.state.Seen(rec.IdentityKey()) {
			continue
		}
		if !e.state.ReserveDetail(rec.URL) {
			continue
		}
		task := &PageTask{
			URL:   rec.URL,
			Kind:  TaskDetail,
			Page:  1,
			State: page.State.Clone(),
			Base:  rec,
		}
		if queue.Push(task) {
			e.metrics.DetailTaskQueued()
		}
	}
}

// processDetail fetches a single product page, runs the detail-capable
// channels, merges onto the carried base record, and persists.
func (e *Engine) processDetail(ctx context.Context, client *Client, task *PageTask, log utils.Logger) {
	res, err := client.Fetch(ctx, task.URL)
	if err != nil {
		e.metrics.TaskAbandoned()
		log.Warnf("detail task abandoned: %v", err)
		return
	}

	parsed, _ := url.Parse(task.URL)
	page := &Page{URL: parsed, Body: res.Body, State: task.State}

	record := task.Base
	for _, ch := range []Channel{&MarkupChannel{}, &TileChannel{}} {
		candidates, err := ch.Extract(ctx, page)
		if err != nil || len(candidates) == 0 {
			continue
		}
		e.metrics.CandidatesExtracted(ch.Name(), len(candidates))
		detail := e.normalizer.Normalize(pickDetailCandidate(candidates, task.URL))
		record = e.normalizer.Merge(record, detail)
	}

	accepted := e.filter.Apply([]*types.ProductRecord{record})
	if len(accepted) > 0 {
		if err := e.sink.Append(accepted); err != nil {
			log.Errorf("failed to persist detail record: %v", err)
		}
	}
}

// pickDetailCandidate prefers the candidate describing the fetched page
// itself over recommendation tiles that share its markup.
func pickDetailCandidate(candidates []types.Candidate, pageURL string) types.Candidate {
	want := types.CanonicalURL(pageURL)
	for _, c := range candidates {
		if c.URL != "" && types.CanonicalURL(c.URL) == want {
			return c
		}
	}
	return candidates[0]
}
