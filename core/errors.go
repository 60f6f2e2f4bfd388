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

import "errors"

// Domain validation errors
var (
	// ErrInvalidQuotaRecord indicates a QuotaRecord failed validation.
	ErrInvalidQuotaRecord = errors.New("invalid quota record")

	// ErrInvalidAllowance indicates an Allowance failed validation.
	ErrInvalidAllowance = errors.New("invalid allowance")

	// ErrInvalidNotification indicates a Notification failed validation.
	ErrInvalidNotification = errors.New("invalid notification")

	// ErrEmptySubject indicates the SubjectID field is empty.
	ErrEmptySubject = errors.New("subject id cannot be empty")

	// ErrEmptyResource indicates the Resource field is empty.
	ErrEmptyResource = errors.New("resource cannot be empty")

	// ErrNegativeLimit indicates an allowance limit below zero.
	ErrNegativeLimit = errors.New("limit cannot be negative")

	// ErrInvalidWindow indicates a non-positive window length.
	ErrInvalidWindow = errors.New("window must be positive")

	// ErrInvalidNotificationType indicates an unknown NotificationType value.
	ErrInvalidNotificationType = errors.New("invalid notification type")
)
