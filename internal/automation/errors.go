package automation

import "errors"

var (
	ErrRunNotFound        = errors.New("automation: run not found")
	ErrStepNotFound       = errors.New("automation: step not found")
	ErrWorkflowNotFound   = errors.New("automation: workflow not found")
	ErrInvalidWorkflow    = errors.New("automation: invalid workflow")
	ErrChannelUnavailable = errors.New("automation: channel unavailable")
	ErrLockNotAcquired    = errors.New("automation: lead lock held")
	ErrLeadInactive       = errors.New("automation: lead is dead")
)
