package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrNoEligibleRecipients = errors.New("no eligible recipients")
	ErrTemplateUnavailable  = errors.New("template not available")
	ErrRateLimited          = errors.New("channel daily limit reached")
	// ErrProviderUnavailable is returned when the send-path circuit breaker is
	// open; the remainder of the batch is left leased for stale reclaim.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// InvalidTransitionError rejects a lifecycle operation without mutating.
type InvalidTransitionError struct {
	From CampaignStatus
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s campaign in status %s", e.Op, e.From)
}

// RecipientLimitError rejects a start whose resolved audience is too large.
type RecipientLimitError struct {
	Count int
	Limit int
}

func (e *RecipientLimitError) Error() string {
	return fmt.Sprintf("campaign resolves %d recipients, limit is %d", e.Count, e.Limit)
}

// SendError preserves the provider error verbatim for operator inspection.
type SendError struct {
	Provider string
	Code     string
	Message  string
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s send failed (%s): %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s send failed: %s", e.Provider, e.Message)
}
