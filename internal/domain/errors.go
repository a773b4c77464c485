package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated      = errors.New("not signed in")
	ErrMissingToken         = errors.New("no authorization token")
	ErrConfigurationMissing = errors.New("backend base URL is not configured")
	ErrSendInFlight         = errors.New("a send is already in progress")
	ErrTokenRejected        = errors.New("token rejected by backend")

	// ErrSendFailed and ErrSubscription are matched by SendError and
	// SubscriptionError through errors.Is.
	ErrSendFailed   = errors.New("send failed")
	ErrSubscription = errors.New("feed subscription error")
)

// SendError reports a failed POST to the message endpoint. Status is zero
// for transport failures.
type SendError struct {
	Status int
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	switch {
	case e.Status != 0 && e.Reason != "":
		return fmt.Sprintf("send failed: HTTP %d: %s", e.Status, e.Reason)
	case e.Status != 0:
		return fmt.Sprintf("send failed: HTTP %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("send failed: %v", e.Err)
	default:
		return "send failed: " + e.Reason
	}
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func (e *SendError) Is(target error) bool {
	return target == ErrSendFailed
}

// SubscriptionError reports a transport failure on the feed subscription.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription error [%s]: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

func (e *SubscriptionError) Is(target error) bool {
	return target == ErrSubscription
}
