/*
Package breaker provides a circuit breaker for guarding calls to external
LLM providers.

The breaker tracks failure history for a named dependency and blocks calls
once a failure threshold is crossed, self-probing for recovery after a
cooldown:

  - closed: calls pass through; each failure is recorded in a bounded
    window of timestamps.
  - open: calls are rejected immediately with a CIRCUIT_OPEN error until
    RecoveryTimeout has elapsed since the last failure.
  - half-open: exactly one probe call is admitted; its success closes the
    circuit and clears the failure history, its failure reopens it.

Usage:

	cb, err := breaker.New("openai", breaker.DefaultConfig(), logger)
	if err != nil {
	    return err
	}

	err = cb.Do(ctx, func(ctx context.Context) error {
	    return callProvider(ctx, req)
	})
	if errors.Is(err, breaker.ErrOpen) {
	    // dependency is down, back off instead of retrying
	}

The breaker only gates admission; retry policy is entirely the caller's
responsibility.
*/
package breaker
