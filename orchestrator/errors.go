package orchestrator

import "errors"

var (
	// ErrEmptyQuery is returned when the query has no searchable text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrSubjectRequired is returned when escalation is requested without a subject.
	ErrSubjectRequired = errors.New("subject id required for web escalation")

	// ErrCommunitySearcherRequired is returned when a community searcher is not provided.
	ErrCommunitySearcherRequired = errors.New("community searcher required")

	// ErrQuotaManagerRequired is returned when a quota manager is not provided.
	ErrQuotaManagerRequired = errors.New("quota manager required")
)
