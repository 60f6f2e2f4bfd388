package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/searchgate/ai"
	"github.com/poiesic/searchgate/community"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/metrics"
	"github.com/poiesic/searchgate/quota"
	"github.com/poiesic/searchgate/websearch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit           = 5
	DefaultMaxResults      = 5
	DefaultProviderTimeout = 10 * time.Second

	noticeQuotaExceeded = "You have used all of your web searches for this period. Showing community results only."
	noticeWebFailed     = "Web search is temporarily unavailable. Showing community results only."
)

// ChargePolicy decides when an escalation spends quota.
type ChargePolicy int

const (
	// ChargeBeforeCall spends quota when the provider call starts and does
	// not refund it if the call fails.
	ChargeBeforeCall ChargePolicy = iota
	// ChargeAfterSuccess spends quota only once the provider has answered.
	ChargeAfterSuccess
)

func (p ChargePolicy) String() string {
	if p == ChargeAfterSuccess {
		return "after_success"
	}
	return "before_call"
}

// ParseChargePolicy parses "before_call" or "after_success".
func ParseChargePolicy(s string) (ChargePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "before_call":
		return ChargeBeforeCall, nil
	case "after_success":
		return ChargeAfterSuccess, nil
	default:
		return 0, fmt.Errorf("unknown charge policy %q", s)
	}
}

// QuotaGate is the part of the quota manager the orchestrator uses.
type QuotaGate interface {
	Check(ctx context.Context, subjectID, resource string) (quota.Decision, error)
	Consume(ctx context.Context, subjectID, resource string) (quota.Decision, error)
}

// ResultCache is the part of the result cache the orchestrator uses.
type ResultCache interface {
	Get(ctx context.Context, query string) (*core.WebResults, bool)
	Set(ctx context.Context, query string, results *core.WebResults)
}

// Notifier receives the post-consume quota state. It must not block.
type Notifier interface {
	Evaluate(subjectID, resource string, remaining, limit int, windowStart time.Time)
}

var (
	_ QuotaGate = (*quota.Manager)(nil)
)

// Orchestrator runs the search state machine.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	community  community.Searcher
	quota      QuotaGate
	provider   websearch.Provider
	cache      ResultCache
	notifier   Notifier
	summarizer ai.Summarizer

	resource              string
	chargePolicy          ChargePolicy
	cacheHitConsumesQuota bool
	providerTimeout       time.Duration
	maxKeywords           int
	defaultLimit          int
	defaultMaxResults     int

	tracer trace.Tracer
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger.With("component", "orchestrator")
		return nil
	}
}

// WithProvider sets the web search provider. Without one every escalation
// falls back to community results.
func WithProvider(p websearch.Provider) Option {
	return func(o *Orchestrator) error {
		o.provider = p
		return nil
	}
}

// WithCache sets the web result cache.
func WithCache(c ResultCache) Option {
	return func(o *Orchestrator) error {
		o.cache = c
		return nil
	}
}

// WithNotifier sets where post-consume quota states are sent.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) error {
		o.notifier = n
		return nil
	}
}

// WithSummarizer sets the language model used to compose primary content.
func WithSummarizer(s ai.Summarizer) Option {
	return func(o *Orchestrator) error {
		o.summarizer = s
		return nil
	}
}

// WithChargePolicy sets when escalations spend quota.
func WithChargePolicy(p ChargePolicy) Option {
	return func(o *Orchestrator) error {
		if p != ChargeBeforeCall && p != ChargeAfterSuccess {
			return fmt.Errorf("unknown charge policy %d", p)
		}
		o.chargePolicy = p
		return nil
	}
}

// WithCacheHitConsumesQuota sets whether answering from the cache spends quota.
// Default is true so that a cached answer costs the same as a fresh one.
func WithCacheHitConsumesQuota(consume bool) Option {
	return func(o *Orchestrator) error {
		o.cacheHitConsumesQuota = consume
		return nil
	}
}

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return errors.New("provider timeout must be positive")
		}
		o.providerTimeout = d
		return nil
	}
}

// WithMaxKeywords caps the keywords extracted from a query.
func WithMaxKeywords(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return errors.New("max keywords must be positive")
		}
		o.maxKeywords = n
		return nil
	}
}

// WithDefaultLimit sets the community limit used when a request has none.
func WithDefaultLimit(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return errors.New("default limit must be positive")
		}
		o.defaultLimit = n
		return nil
	}
}

// WithMaxResults sets the web result count used when a request has none.
func WithMaxResults(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return errors.New("max results must be positive")
		}
		o.defaultMaxResults = n
		return nil
	}
}

// New creates an Orchestrator.
func New(searcher community.Searcher, gate QuotaGate, opts ...Option) (*Orchestrator, error) {
	if searcher == nil {
		return nil, ErrCommunitySearcherRequired
	}
	if gate == nil {
		return nil, ErrQuotaManagerRequired
	}

	o := &Orchestrator{
		community:             searcher,
		quota:                 gate,
		resource:              core.ResourceWebSearch,
		chargePolicy:          ChargeBeforeCall,
		cacheHitConsumesQuota: true,
		providerTimeout:       DefaultProviderTimeout,
		maxKeywords:           DefaultMaxKeywords,
		defaultLimit:          DefaultLimit,
		defaultMaxResults:     DefaultMaxResults,
		tracer:                otel.Tracer("github.com/poiesic/searchgate/orchestrator"),
		logger:                slog.Default().With("component", "orchestrator"),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Search runs a request through the state machine.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Result, error) {
	return o.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor runs a request through the state machine, reporting each
// stage to monitor.
func (o *Orchestrator) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) (*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.Escalate && strings.TrimSpace(req.SubjectID) == "" {
		return nil, ErrSubjectRequired
	}
	if req.Limit <= 0 {
		req.Limit = o.defaultLimit
	}
	if req.MaxResults <= 0 {
		req.MaxResults = o.defaultMaxResults
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.Search", trace.WithAttributes(
		attribute.Bool("search.escalate", req.Escalate),
		attribute.Int("search.limit", req.Limit),
	))
	defer span.End()

	monitor.Start(req)

	result := &Result{
		Query:               req.Query,
		EscalationRequested: req.Escalate,
		Status:              StatusOK,
	}

	check, err := o.communityStage(ctx, req, result, monitor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	monitor.EnterStage(StageDecide)
	if !req.Escalate {
		monitor.EnterStage(StageRespondCommunityOnly)
		if check != nil {
			result.QuotaRemaining = check.Remaining
			result.QuotaLimit = check.Limit
		}
	} else {
		monitor.EnterStage(StageWebEscalate)
		o.escalate(ctx, req, check, result, monitor)
	}

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	monitor.EnterStage(StageRespondFinal)
	o.respond(ctx, req, result)

	span.SetAttributes(
		attribute.String("search.content_source", string(result.ContentSource)),
		attribute.String("search.status", string(result.Status)),
		attribute.Bool("search.cache_hit", result.CacheHit),
	)
	metrics.RecordOrchestration(string(result.ContentSource), string(result.Status))
	monitor.Finish(result)

	o.logger.Debug("search complete",
		"escalate", req.Escalate,
		"contentSource", result.ContentSource,
		"status", result.Status,
		"cacheHit", result.CacheHit,
		"quotaRemaining", result.QuotaRemaining)

	return result, nil
}

// communityStage runs community search and, when a subject is known, the quota
// check concurrently. Neither failure aborts the request.
func (o *Orchestrator) communityStage(ctx context.Context, req Request, result *Result, monitor SearchMonitor) (*quota.Decision, error) {
	monitor.EnterStage(StageCommunitySearch)

	result.Keywords = ExtractKeywords(req.Query, o.maxKeywords)

	var (
		communityResults *core.CommunityResults
		communityErr     error
		check            *quota.Decision
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, span := o.tracer.Start(gctx, "orchestrator.CommunitySearch")
		defer span.End()

		communityResults, communityErr = o.community.Search(cctx, req.Query, result.Keywords, req.Limit)
		if communityErr != nil {
			span.RecordError(communityErr)
		}
		return nil
	})
	if req.SubjectID != "" {
		g.Go(func() error {
			qctx, span := o.tracer.Start(gctx, "orchestrator.QuotaCheck")
			defer span.End()

			d, err := o.quota.Check(qctx, req.SubjectID, o.resource)
			if err != nil {
				// only invalid keys reach here; Check itself fails open
				span.RecordError(err)
				o.logger.Warn("quota check rejected", "subject", req.SubjectID, "err", err)
				return nil
			}
			check = &d
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if communityErr != nil {
		o.logger.Warn("community search failed, continuing without community results", "err", communityErr)
		result.degrade()
	}
	if communityResults == nil {
		communityResults = &core.CommunityResults{}
	}
	result.Community = communityResults
	monitor.AfterCommunitySearch(result.Keywords, communityResults)

	if check != nil {
		if check.Degraded {
			result.degrade()
		}
		monitor.AfterQuotaCheck(*check)
	}

	return check, nil
}

func (o *Orchestrator) escalate(ctx context.Context, req Request, check *quota.Decision, result *Result, monitor SearchMonitor) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.WebEscalate")
	defer span.End()

	if check == nil {
		// the subject was rejected by the quota manager
		o.webFailed(result)
		return
	}
	result.QuotaRemaining = check.Remaining
	result.QuotaLimit = check.Limit

	if !check.Allowed {
		o.quotaExceeded(result, check)
		span.SetAttributes(attribute.Bool("search.quota_exceeded", true))
		return
	}

	if o.cache != nil {
		cached, hit := o.cache.Get(ctx, req.Query)
		monitor.AfterCacheLookup(hit)
		if hit {
			span.AddEvent("cache hit")
			if o.cacheHitConsumesQuota {
				if !o.consume(ctx, req, result, monitor) {
					return
				}
			}
			result.Web = cached
			result.CacheHit = true
			result.EscalationUsed = true
			return
		}
	}

	if o.provider == nil {
		o.logger.Warn("web escalation requested but no provider is configured")
		o.webFailed(result)
		return
	}

	if o.chargePolicy == ChargeBeforeCall {
		if !o.consume(ctx, req, result, monitor) {
			return
		}
	}

	web, err := o.callProvider(ctx, req, monitor)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		o.webFailed(result)
		return
	}

	if o.cache != nil {
		o.cache.Set(ctx, req.Query, web)
	}

	if o.chargePolicy == ChargeAfterSuccess {
		if !o.consume(ctx, req, result, monitor) {
			return
		}
	}

	result.Web = web
	result.EscalationUsed = true
}

// consume spends one unit and reports whether the escalation may proceed.
func (o *Orchestrator) consume(ctx context.Context, req Request, result *Result, monitor SearchMonitor) bool {
	d, err := o.quota.Consume(ctx, req.SubjectID, o.resource)
	monitor.AfterQuotaConsume(d, err)

	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		o.quotaExceeded(result, &d)
		return false
	case err != nil:
		o.logger.Error("quota consume failed, denying escalation", "subject", req.SubjectID, "err", err)
		o.webFailed(result)
		return false
	}

	result.QuotaRemaining = d.Remaining
	result.QuotaLimit = d.Limit
	if o.notifier != nil {
		o.notifier.Evaluate(req.SubjectID, o.resource, d.Remaining, d.Limit, d.WindowStart)
	}
	return true
}

func (o *Orchestrator) callProvider(ctx context.Context, req Request, monitor SearchMonitor) (*core.WebResults, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ProviderCall")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	type outcome struct {
		web *core.WebResults
		err error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: provider panicked: %v", websearch.ErrUpstream, r)}
			}
		}()
		web, err := o.provider.Search(ctx, req.Query, req.MaxResults, req.IncludeImages)
		done <- outcome{web: web, err: err}
	}()

	var web *core.WebResults
	var err error
	select {
	case out := <-done:
		web, err = out.web, out.err
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
	case <-ctx.Done():
		// the provider goroutine finishes on its own; its outcome is discarded
		err = ctx.Err()
	}
	if err == nil && web == nil {
		web = &core.WebResults{Query: req.Query, Results: []core.WebResult{}}
	}
	monitor.AfterProviderCall(time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		o.logger.Warn("web search failed, falling back to community results", "err", err, "elapsed", time.Since(start))
		return nil, err
	}
	return web, nil
}

func (o *Orchestrator) quotaExceeded(result *Result, d *quota.Decision) {
	result.QuotaExceeded = true
	result.WebSearchFailed = true
	result.QuotaRemaining = 0
	result.QuotaLimit = d.Limit
	result.Notice = noticeQuotaExceeded
	if !d.ResetsAt.IsZero() {
		result.Notice += " Your quota resets at " + d.ResetsAt.UTC().Format("15:04 MST") + "."
	}
}

func (o *Orchestrator) webFailed(result *Result) {
	result.WebSearchFailed = true
	result.Notice = noticeWebFailed
	result.degrade()
}

// respond composes primary content and classifies the result.
func (o *Orchestrator) respond(ctx context.Context, req Request, result *Result) {
	result.ContentSource = core.ClassifySource(result.Community, result.Web)
	if result.ContentSource == core.ContentSourceNone {
		return
	}

	if o.summarizer != nil {
		sctx, span := o.tracer.Start(ctx, "orchestrator.Summarize")
		content, err := o.summarizer.Summarize(sctx, req.Query, result.Web, result.Community)
		span.End()
		if err == nil && strings.TrimSpace(content) != "" {
			result.PrimaryContent = content
			return
		}
		o.logger.Warn("summarizer failed, using fallback content", "err", err)
	}

	result.PrimaryContent = fallbackContent(result.Web, result.Community)
}
