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

package quota

import "errors"

var (
	// ErrQuotaExceeded is returned by Consume when the subject has no units left.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrStoreRequired is returned when a quota store is not provided.
	ErrStoreRequired = errors.New("quota store required")

	// ErrInvalidAllowances is returned when the tier allowance table is unusable.
	ErrInvalidAllowances = errors.New("invalid tier allowances")
)
