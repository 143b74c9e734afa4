package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/resilience"
)

// ErrCapabilityUnavailable matches every *CapabilityError via errors.Is.
var ErrCapabilityUnavailable = eris.New("gateway: capability unavailable")

// ErrEmptyResponse is returned when a provider answers with no text. It is
// a content problem and is never retried.
var ErrEmptyResponse = eris.New("gateway: empty model response")

// CapabilityError means the provider serving a tier has no usable
// credential. The operator must configure Setting; retrying cannot help.
type CapabilityError struct {
	Tier     model.Tier
	Provider string
	Setting  string
	Err      error
}

func (e *CapabilityError) Error() string {
	msg := fmt.Sprintf("capability unavailable: %s tier needs %s, configure %s", e.Tier, e.Provider, e.Setting)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCapabilityUnavailable) hold.
func (e *CapabilityError) Is(target error) bool { return target == ErrCapabilityUnavailable }

// TransportError is a transient provider failure that outlived the retry
// budget, or a call refused by an open circuit.
type TransportError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s unavailable after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsCapability reports whether err is a missing-credential failure.
func IsCapability(err error) bool { return errors.Is(err, ErrCapabilityUnavailable) }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// classify turns a raw SDK error into the gateway taxonomy. status is the
// HTTP status the provider reported, or 0. A per-request timeout inside a
// live caller context counts as transient.
func classify(ctx context.Context, err error, status int, tier model.Tier, provider, setting string) error {
	switch {
	case ctx.Err() != nil:
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return resilience.Transient(err, 0)
	case status == 401 || status == 403:
		return &CapabilityError{Tier: tier, Provider: provider, Setting: setting, Err: err}
	case resilience.IsTransientStatus(status):
		return resilience.Transient(err, status)
	case status == 0 && resilience.IsTransient(err):
		return resilience.Transient(err, 0)
	}
	return err
}
