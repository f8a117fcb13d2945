package notebook

import "fmt"

// OutcomeState discriminates the three results a sync job can produce.
type OutcomeState string

// Outcome states. Cancelled is terminal and never retried; Retryable is
// returned to the queue for another attempt under its backoff policy.
const (
	StateSynced    OutcomeState = "synced"
	StateCancelled OutcomeState = "cancelled"
	StateRetryable OutcomeState = "retryable"
)

// Outcome is the result of one sync job run. Exactly one of the three
// states holds; once a pipeline stage produces a non-synced outcome, later
// stages are skipped and the outcome propagates unchanged.
type Outcome struct {
	state  OutcomeState
	reason string
	err    error
}

// Synced reports a successful run.
func Synced() Outcome {
	return Outcome{state: StateSynced}
}

// Cancelled reports a terminal, non-retried result with a human-readable reason.
func Cancelled(reason string) Outcome {
	return Outcome{state: StateCancelled, reason: reason}
}

// Cancelledf is Cancelled with fmt.Sprintf formatting.
func Cancelledf(format string, args ...any) Outcome {
	return Outcome{state: StateCancelled, reason: fmt.Sprintf(format, args...)}
}

// Retryable reports a transient failure the queue should retry with backoff.
func Retryable(err error) Outcome {
	return Outcome{state: StateRetryable, err: err}
}

// Retryablef is Retryable with fmt.Errorf formatting.
func Retryablef(format string, args ...any) Outcome {
	return Outcome{state: StateRetryable, err: fmt.Errorf(format, args...)}
}

// State returns the outcome's discriminant.
func (o Outcome) State() OutcomeState { return o.state }

// IsSynced reports whether the run completed.
func (o Outcome) IsSynced() bool { return o.state == StateSynced }

// IsCancelled reports whether the run ended terminally without retry.
func (o Outcome) IsCancelled() bool { return o.state == StateCancelled }

// IsRetryable reports whether the run should be retried.
func (o Outcome) IsRetryable() bool { return o.state == StateRetryable }

// Reason returns the cancellation reason, empty unless cancelled.
func (o Outcome) Reason() string { return o.reason }

// Err returns the retryable error, nil unless retryable.
func (o Outcome) Err() error { return o.err }

// Then runs the next stage only when the outcome so far is synced.
// Non-synced outcomes pass through unchanged.
func (o Outcome) Then(next func() Outcome) Outcome {
	if o.state != StateSynced {
		return o
	}
	return next()
}

func (o Outcome) String() string {
	switch o.state {
	case StateCancelled:
		return fmt.Sprintf("cancelled: %s", o.reason)
	case StateRetryable:
		return fmt.Sprintf("retryable: %v", o.err)
	default:
		return string(o.state)
	}
}
