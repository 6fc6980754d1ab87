package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError marks a descriptor missing the webhook or token it needs.
// Not retryable; the graph has to be fixed in the editor.
type ConfigurationError struct {
	NodeID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error on node %s: %s", e.NodeID, e.Reason)
}

// ReauthRequiredError marks a rejected refresh token. No retry can succeed
// without the user reconnecting the account, so callers must disable the
// subscription instead of looping.
type ReauthRequiredError struct {
	NodeID string
	Err    error
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("reauthorization required for node %s: %v", e.NodeID, e.Err)
}

func (e *ReauthRequiredError) Unwrap() error {
	return e.Err
}

// TransportError marks a destination API failure. Logged per destination and
// contained so one bad edge never blocks its siblings in a fan-out.
type TransportError struct {
	NodeType NodeType
	NodeID   string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error delivering to %s node %s: %v", e.NodeType, e.NodeID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QuotaExhaustedError marks a denied credit gate. It triggers subscription
// teardown, never a silent drop.
type QuotaExhaustedError struct {
	UserID string
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("credits exhausted for account %s", e.UserID)
}

func IsReauthRequired(err error) bool {
	var reauth *ReauthRequiredError
	return errors.As(err, &reauth)
}

func IsQuotaExhausted(err error) bool {
	var quota *QuotaExhaustedError
	return errors.As(err, &quota)
}

func IsConfigurationError(err error) bool {
	var conf *ConfigurationError
	return errors.As(err, &conf)
}
