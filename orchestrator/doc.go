// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orchestrator runs the per-request search state machine.
//
// Every request starts with a community search. When the caller asks for
// escalation the orchestrator consults the quota manager, the result cache and
// finally the paid web search provider, then assembles a layered Result:
//
//	CommunitySearch -> Decide -> RespondCommunityOnly -> RespondFinal
//	                          -> WebEscalate          -> RespondFinal
//
// Failures of any collaborator degrade the response instead of failing it.
// The only errors returned by Search are invalid requests and cancellation.
//
// Quota is charged when the provider call starts (ChargeBeforeCall) and is not
// refunded if the call fails. A cache hit is charged like a fresh search
// unless WithCacheHitConsumesQuota(false) is set.
package orchestrator
