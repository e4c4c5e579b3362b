package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("either email or phone is required")

	// ErrMissingOrgID is returned when a request is not scoped to a tenant
	ErrMissingOrgID = errors.New("org_id is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidStatus is returned for unknown pipeline statuses
	ErrInvalidStatus = errors.New("invalid lead status")

	// ErrInvalidActivity is returned when an activity is missing its type or description
	ErrInvalidActivity = errors.New("activity type and description are required")
)
