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

package core

import (
	"fmt"
	"strings"
)

// ValidateQuotaKey validates the (subject, resource) pair addressing a quota record.
func ValidateQuotaKey(subjectID, resource string) error {
	if strings.TrimSpace(subjectID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQuotaRecord, ErrEmptySubject)
	}
	if strings.TrimSpace(resource) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQuotaRecord, ErrEmptyResource)
	}
	return nil
}

// ValidateAllowance validates an Allowance according to domain rules.
//
// Validation rules:
//   - Limit must not be negative (zero disables the resource)
//   - Window must be positive
func ValidateAllowance(a Allowance) error {
	if a.Limit < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidAllowance, ErrNegativeLimit)
	}
	if a.Window <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidAllowance, ErrInvalidWindow)
	}
	return nil
}

// ValidateNotification validates a Notification before it reaches the sink.
func ValidateNotification(n *Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is nil", ErrInvalidNotification)
	}
	if strings.TrimSpace(n.SubjectID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNotification, ErrEmptySubject)
	}
	if err := ValidateNotificationType(n.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}
	return nil
}

// ValidateNotificationType validates that a NotificationType has a known value.
func ValidateNotificationType(t NotificationType) error {
	if t != NotificationWarning && t != NotificationExhausted {
		return fmt.Errorf("%w: value %q", ErrInvalidNotificationType, t)
	}
	return nil
}
