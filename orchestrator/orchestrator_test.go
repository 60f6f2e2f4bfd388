package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/searchgate/ai/mock"
	"github.com/poiesic/searchgate/cache"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/notify"
	"github.com/poiesic/searchgate/quota"
	"github.com/poiesic/searchgate/storage"
	"github.com/poiesic/searchgate/storage/badger"
	"github.com/poiesic/searchgate/websearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ResultCache = (*cache.Cache)(nil)
	_ Notifier    = (*notify.Emitter)(nil)
)

// fakeCommunity returns canned results for every query.
type fakeCommunity struct {
	results *core.CommunityResults
	err     error
	calls   atomic.Int32
}

func (f *fakeCommunity) Search(_ context.Context, _ string, _ []string, _ int) (*core.CommunityResults, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// fakeProvider counts calls and returns canned web results.
type fakeProvider struct {
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeProvider) Search(ctx context.Context, query string, _ int, _ bool) (*core.WebResults, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, &websearch.UpstreamError{Provider: "fake", Err: ctx.Err()}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &core.WebResults{
		Query:  query,
		Answer: "Hooks let function components use state.",
		Results: []core.WebResult{
			{Title: "Hooks at a Glance", URL: "https://react.dev/learn", Content: "Intro"},
			{Title: "Rules of Hooks", URL: "https://react.dev/rules", Content: "Top level only"},
		},
	}, nil
}

func reactCommunity() *core.CommunityResults {
	return &core.CommunityResults{
		Posts: []core.Post{
			{ID: "p1", Title: "Understanding React hooks", Body: "useState and useEffect explained"},
			{ID: "p2", Title: "Custom hooks", Body: "Build a useFetch hook"},
		},
		Links: []core.Link{{ID: "l1", Title: "Hooks reference", URL: "https://react.dev/reference/react/hooks"}},
	}
}

type fixture struct {
	store     *badger.Store
	quota     *quota.Manager
	cache     *cache.Cache
	emitter   *notify.Emitter
	community *fakeCommunity
	provider  *fakeProvider
	orch      *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	qm, err := quota.NewManager(store.Quotas(), quota.WithAllowances(map[string]int{"free": 10}))
	require.NoError(t, err)

	c, err := cache.New(store.Cache())
	require.NoError(t, err)

	emitter, err := notify.NewEmitter(store.Notifications())
	require.NoError(t, err)
	t.Cleanup(emitter.Release)

	f := &fixture{
		store:     store,
		quota:     qm,
		cache:     c,
		emitter:   emitter,
		community: &fakeCommunity{results: reactCommunity()},
		provider:  &fakeProvider{},
	}

	base := []Option{WithProvider(f.provider), WithCache(c), WithNotifier(emitter)}
	f.orch, err = New(f.community, qm, append(base, opts...)...)
	require.NoError(t, err)
	return f
}

// spend consumes n units for subject ahead of the test.
func (f *fixture) spend(t *testing.T, subject string, n int) {
	t.Helper()
	for range n {
		_, err := f.quota.Consume(context.Background(), subject, core.ResourceWebSearch)
		require.NoError(t, err)
	}
}

func (f *fixture) remaining(t *testing.T, subject string) int {
	t.Helper()
	d, err := f.quota.Check(context.Background(), subject, core.ResourceWebSearch)
	require.NoError(t, err)
	return d.Remaining
}

func (f *fixture) notifications(t *testing.T, subject string) []*core.Notification {
	t.Helper()
	f.emitter.Flush()
	list, err := f.store.Notifications().ListNotifications(context.Background(), subject, 50)
	require.NoError(t, err)
	return list
}

func TestSearch_CommunityOnly(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, core.ContentSourceCommunity, res.ContentSource)
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Community.Posts, 2)
	assert.Len(t, res.Community.Links, 1)
	assert.Nil(t, res.Web)
	assert.False(t, res.EscalationRequested)
	assert.Equal(t, 10, res.QuotaRemaining)
	assert.Equal(t, 10, res.QuotaLimit)
	assert.Equal(t, []string{"react hooks", "react", "hooks"}, res.Keywords)
	assert.Equal(t, "useState and useEffect explained", res.PrimaryContent)

	assert.Equal(t, int32(0), f.provider.calls.Load())
	assert.Equal(t, 10, f.remaining(t, "u1"))
}

func TestSearch_EscalationCacheMiss(t *testing.T) {
	f := newFixture(t)
	f.spend(t, "u1", 7)

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.QuotaRemaining)
	assert.True(t, res.EscalationUsed)
	assert.False(t, res.CacheHit)
	assert.False(t, res.WebSearchFailed)
	require.NotNil(t, res.Web)
	assert.Len(t, res.Web.Results, 2)
	assert.Equal(t, core.ContentSourceBoth, res.ContentSource)
	assert.Equal(t, "Hooks let function components use state.", res.PrimaryContent)
	assert.Equal(t, int32(1), f.provider.calls.Load())

	cached, ok := f.cache.Get(context.Background(), "react hooks")
	require.True(t, ok)
	assert.Len(t, cached.Results, 2)
	assert.Equal(t, 2, f.remaining(t, "u1"))
}

func TestSearch_QuotaExhausted(t *testing.T) {
	f := newFixture(t)
	f.spend(t, "u1", 10)

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.True(t, res.WebSearchFailed)
	assert.True(t, res.QuotaExceeded)
	assert.False(t, res.EscalationUsed)
	assert.Equal(t, 0, res.QuotaRemaining)
	assert.Nil(t, res.Web)
	assert.Len(t, res.Community.Posts, 2)
	assert.Equal(t, core.ContentSourceCommunity, res.ContentSource)
	assert.Equal(t, StatusOK, res.Status)
	assert.Contains(t, res.Notice, "resets at 00:00 UTC")
	assert.Equal(t, int32(0), f.provider.calls.Load())
}

func TestSearch_LowWaterMarkWarnsOncePerWindow(t *testing.T) {
	f := newFixture(t)
	f.spend(t, "u1", 5)

	req := Request{Query: "react hooks", SubjectID: "u1", Escalate: true}
	first, err := f.orch.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, first.QuotaRemaining)

	second, err := f.orch.Search(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 3, second.QuotaRemaining, "a cache hit consumes quota")
	assert.Equal(t, int32(1), f.provider.calls.Load())

	list := f.notifications(t, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, core.NotificationWarning, list[0].Type)
}

func TestSearch_ExhaustedNotification(t *testing.T) {
	f := newFixture(t)
	f.spend(t, "u1", 9)

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.QuotaRemaining)
	assert.True(t, res.EscalationUsed)

	list := f.notifications(t, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, core.NotificationExhausted, list[0].Type)
}

func TestSearch_ProviderFailureKeepsCommunityResults(t *testing.T) {
	f := newFixture(t)
	f.provider.err = &websearch.UpstreamError{Provider: "fake", StatusCode: 502, Err: errors.New("bad gateway")}

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.True(t, res.WebSearchFailed)
	assert.False(t, res.QuotaExceeded)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, core.ContentSourceCommunity, res.ContentSource)
	assert.Len(t, res.Community.Posts, 2)
	assert.NotEmpty(t, res.Notice)
	assert.NotContains(t, res.Notice, "bad gateway")

	// charged at call initiation, not refunded
	assert.Equal(t, 9, res.QuotaRemaining)
	assert.Equal(t, 9, f.remaining(t, "u1"))

	_, ok := f.cache.Get(context.Background(), "react hooks")
	assert.False(t, ok)
}

func TestSearch_ChargeAfterSuccessRefundsNothingOnFailure(t *testing.T) {
	f := newFixture(t, WithChargePolicy(ChargeAfterSuccess))
	f.provider.err = errors.New("connection reset")

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)
	assert.True(t, res.WebSearchFailed)
	assert.Equal(t, 10, res.QuotaRemaining)
	assert.Equal(t, 10, f.remaining(t, "u1"))

	f.provider.err = nil
	res, err = f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)
	assert.True(t, res.EscalationUsed)
	assert.Equal(t, 9, res.QuotaRemaining)
}

func TestSearch_ProviderTimeout(t *testing.T) {
	f := newFixture(t, WithProviderTimeout(50*time.Millisecond))
	f.provider.block = true

	start := time.Now()
	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.WebSearchFailed)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Len(t, res.Community.Posts, 2)
}

func TestSearch_ProviderIgnoringContextTimesOut(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stubborn := websearch.ProviderFunc(func(_ context.Context, query string, _ int, _ bool) (*core.WebResults, error) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		return &core.WebResults{Query: query, Answer: "late"}, nil
	})
	f := newFixture(t, WithProvider(stubborn), WithProviderTimeout(50*time.Millisecond))

	start := time.Now()
	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, res.WebSearchFailed)
	assert.Nil(t, res.Web)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, 9, res.QuotaRemaining)
	assert.Len(t, res.Community.Posts, 2)
}

func TestSearch_ProviderPanicDegrades(t *testing.T) {
	broken := websearch.ProviderFunc(func(context.Context, string, int, bool) (*core.WebResults, error) {
		panic("nil map")
	})
	f := newFixture(t, WithProvider(broken))

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.True(t, res.WebSearchFailed)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Len(t, res.Community.Posts, 2)
}

func TestSearch_CacheHitWithoutCharge(t *testing.T) {
	f := newFixture(t, WithCacheHitConsumesQuota(false))
	f.cache.Set(context.Background(), "React hooks!", &core.WebResults{Query: "react hooks", Answer: "cached"})

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.True(t, res.CacheHit)
	assert.Equal(t, "cached", res.Web.Answer)
	assert.Equal(t, 10, res.QuotaRemaining)
	assert.Equal(t, 10, f.remaining(t, "u1"))
	assert.Equal(t, int32(0), f.provider.calls.Load())
}

func TestSearch_CommunityFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.community.err = errors.New("index offline")

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.Equal(t, StatusDegraded, res.Status)
	assert.True(t, res.Community.Empty())
	assert.True(t, res.EscalationUsed)
	assert.Equal(t, core.ContentSourceWeb, res.ContentSource)
}

func TestSearch_NoProviderConfigured(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	qm, err := quota.NewManager(store.Quotas())
	require.NoError(t, err)

	o, err := New(&fakeCommunity{results: reactCommunity()}, qm)
	require.NoError(t, err)

	res, err := o.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)
	assert.True(t, res.WebSearchFailed)
	assert.Equal(t, core.ContentSourceCommunity, res.ContentSource)
}

// stubGate is a QuotaGate with scripted answers.
type stubGate struct {
	check      quota.Decision
	consumeErr error
	consumed   atomic.Int32
}

func (g *stubGate) Check(context.Context, string, string) (quota.Decision, error) {
	return g.check, nil
}

func (g *stubGate) Consume(context.Context, string, string) (quota.Decision, error) {
	g.consumed.Add(1)
	if g.consumeErr != nil {
		return quota.Decision{}, g.consumeErr
	}
	d := g.check
	d.Remaining--
	return d, nil
}

func TestSearch_ConsumeFailsClosed(t *testing.T) {
	gate := &stubGate{
		check:      quota.Decision{Allowed: true, Remaining: 10, Limit: 10, Degraded: true},
		consumeErr: storage.ErrStoreUnavailable,
	}
	provider := &fakeProvider{}
	o, err := New(&fakeCommunity{results: reactCommunity()}, gate, WithProvider(provider))
	require.NoError(t, err)

	res, err := o.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)

	assert.True(t, res.WebSearchFailed)
	assert.False(t, res.QuotaExceeded)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, int32(0), provider.calls.Load())
	assert.Equal(t, core.ContentSourceCommunity, res.ContentSource)
}

func TestSearch_Summarizer(t *testing.T) {
	summarizer := mock.NewMockSummarizer()
	f := newFixture(t, WithSummarizer(summarizer))

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)
	assert.Equal(t, "summary of react hooks", res.PrimaryContent)
	assert.Equal(t, 1, summarizer.CallCount())

	summarizer.WithSummarizeFunc(func(context.Context, string, *core.WebResults, *core.CommunityResults) (string, error) {
		return "", errors.New("model offline")
	})
	res, err = f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	require.NoError(t, err)
	assert.Equal(t, "Hooks let function components use state.", res.PrimaryContent)
}

func TestSearch_NothingFound(t *testing.T) {
	f := newFixture(t)
	f.community.results = &core.CommunityResults{}

	res, err := f.orch.Search(context.Background(), Request{Query: "obscure topic", SubjectID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, core.ContentSourceNone, res.ContentSource)
	assert.Empty(t, res.PrimaryContent)
}

func TestSearch_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Search(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = f.orch.Search(context.Background(), Request{Query: "react hooks", Escalate: true})
	assert.ErrorIs(t, err, ErrSubjectRequired)

	res, err := f.orch.Search(context.Background(), Request{Query: "react hooks"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.QuotaRemaining, "anonymous requests carry no quota")

	_, err = New(nil, f.quota)
	assert.ErrorIs(t, err, ErrCommunitySearcherRequired)
	_, err = New(f.community, nil)
	assert.ErrorIs(t, err, ErrQuotaManagerRequired)
}

func TestSearch_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Search(ctx, Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_ConcurrentEscalationsRespectQuota(t *testing.T) {
	f := newFixture(t)
	f.spend(t, "u1", 7)

	const callers = 20
	var (
		wg   sync.WaitGroup
		used atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.orch.Search(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true})
			if assert.NoError(t, err) && res.EscalationUsed {
				used.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), used.Load())
	assert.LessOrEqual(t, f.provider.calls.Load(), int32(3))
	assert.Equal(t, 0, f.remaining(t, "u1"))
}

// recordingMonitor records stages in order.
type recordingMonitor struct {
	noopMonitor
	mu     sync.Mutex
	stages []Stage
}

func (m *recordingMonitor) EnterStage(s Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, s)
}

func TestSearchWithMonitor_Stages(t *testing.T) {
	f := newFixture(t)

	m := &recordingMonitor{}
	_, err := f.orch.SearchWithMonitor(context.Background(), Request{Query: "react hooks", SubjectID: "u1"}, m)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageCommunitySearch, StageDecide, StageRespondCommunityOnly, StageRespondFinal}, m.stages)

	m = &recordingMonitor{}
	_, err = f.orch.SearchWithMonitor(context.Background(), Request{Query: "react hooks", SubjectID: "u1", Escalate: true}, m)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageCommunitySearch, StageDecide, StageWebEscalate, StageRespondFinal}, m.stages)
}

func TestParseChargePolicy(t *testing.T) {
	p, err := ParseChargePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ChargeBeforeCall, p)

	p, err = ParseChargePolicy("After_Success")
	require.NoError(t, err)
	assert.Equal(t, ChargeAfterSuccess, p)
	assert.Equal(t, "after_success", p.String())

	_, err = ParseChargePolicy("never")
	assert.Error(t, err)
}
