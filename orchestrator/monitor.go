package orchestrator

import (
	"time"

	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/quota"
)

// Stage is a state of the search state machine.
type Stage string

const (
	StageCommunitySearch      Stage = "community_search"
	StageDecide               Stage = "decide"
	StageRespondCommunityOnly Stage = "respond_community_only"
	StageWebEscalate          Stage = "web_escalate"
	StageRespondFinal         Stage = "respond_final"
)

// SearchMonitor provides hooks to observe a request moving through the
// state machine. Hooks run synchronously on the request path.
type SearchMonitor interface {
	Start(req Request)
	EnterStage(stage Stage)
	AfterCommunitySearch(keywords []string, results *core.CommunityResults)
	AfterQuotaCheck(decision quota.Decision)
	AfterCacheLookup(hit bool)
	AfterQuotaConsume(decision quota.Decision, err error)
	AfterProviderCall(elapsed time.Duration, err error)
	Finish(result *Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)                                      {}
func (n *noopMonitor) EnterStage(_ Stage)                                   {}
func (n *noopMonitor) AfterCommunitySearch(_ []string, _ *core.CommunityResults) {}
func (n *noopMonitor) AfterQuotaCheck(_ quota.Decision)                     {}
func (n *noopMonitor) AfterCacheLookup(_ bool)                              {}
func (n *noopMonitor) AfterQuotaConsume(_ quota.Decision, _ error)          {}
func (n *noopMonitor) AfterProviderCall(_ time.Duration, _ error)           {}
func (n *noopMonitor) Finish(_ *Result)                                     {}
