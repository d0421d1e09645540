// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized is returned when a request carries no owner identifier.
var ErrUnauthorized = errors.New("missing owner identifier")

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Message    string
	Violations []string
	Details    map[string]any
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Violations, "; "))
}

func NewValidation(message string, violations ...string) *ValidationError {
	return &ValidationError{Message: message, Violations: violations}
}

// NotFoundError covers records that are absent or owned by someone else.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Helper constructors
func NewCampaignNotFound(id string) error { return NewNotFound("campaign", id) }
func NewSegmentNotFound(id string) error  { return NewNotFound("segment", id) }
func NewCustomerNotFound(id string) error { return NewNotFound("customer", id) }
func NewOrderNotFound(id string) error    { return NewNotFound("order", id) }
func NewMessageNotFound(id string) error  { return NewNotFound("message", id) }

// FatalBatchError aborts a campaign delivery; the campaign is marked CANCELLED.
type FatalBatchError struct {
	CampaignID string
	Err        error
}

func (e *FatalBatchError) Error() string {
	return fmt.Sprintf("campaign %s delivery aborted: %v", e.CampaignID, e.Err)
}

func (e *FatalBatchError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
