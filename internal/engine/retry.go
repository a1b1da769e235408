package engine

// RetryPolicy caps the number of attempts per logical request. A transport
// failure or a non-2xx status is retryable; a 2xx response ends retrying
// immediately. When the budget is exhausted the last observed error is
// surfaced to the caller, never a panic.
type RetryPolicy struct {
	MaxAttempts int
}

// RetryState is the remaining-attempts budget of one request. Values are
// immutable: ShouldRetry returns the successor state instead of mutating.
type RetryState struct {
	remaining int
}

func (p RetryPolicy) NewState() RetryState {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return RetryState{remaining: attempts}
}

// ShouldRetry consumes one attempt after a retryable failure. It reports false
// once the budget is spent, which makes the total number of attempts exactly
// the configured ceiling.
func (s RetryState) ShouldRetry() (RetryState, bool) {
	if s.remaining <= 1 {
		return RetryState{}, false
	}
	return RetryState{remaining: s.remaining - 1}, true
}

func (s RetryState) Remaining() int {
	return s.remaining
}

// retryableOutcome classifies one attempt's result: transport errors and
// non-2xx statuses may be retried, anything else is terminal.
func retryableOutcome(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	return statusCode/100 != 2
}
