package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmguard/types"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed admits calls; failures are counted.
	StateClosed State = iota
	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits exactly one probe call to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is the sentinel rejection error. Errors returned by Do when the
// breaker rejects a call satisfy errors.Is(err, ErrOpen) and carry the
// CIRCUIT_OPEN code, keeping them distinct from anything the guarded call
// itself could return.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of failures recorded while closed
	// that trips the breaker to open. Must be positive.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before admitting
	// a probe call. Must be positive.
	RecoveryTimeout time.Duration

	// OnStateChange, if set, is invoked on every state transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// CircuitBreaker guards calls to a named external dependency. It tracks
// recent failures and blocks calls once FailureThreshold is crossed,
// admitting a single probe after RecoveryTimeout. All methods are safe for
// concurrent use; state transitions are linearized by the instance mutex
// while the guarded call itself runs outside the lock.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time // test seam

	mu          sync.RWMutex
	state       State
	window      failureWindow // failure timestamps while closed
	lastFailure time.Time
	probing     bool // a half-open probe is in flight
}

// New creates a circuit breaker for the named dependency. Construction
// fails fast on a non-positive threshold or timeout.
func New(name string, config Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if config.FailureThreshold <= 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("failure threshold must be positive, got %d", config.FailureThreshold)).
			WithComponent(name)
	}
	if config.RecoveryTimeout <= 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("recovery timeout must be positive, got %s", config.RecoveryTimeout)).
			WithComponent(name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger.With(zap.String("breaker", name)),
		now:    time.Now,
		state:  StateClosed,
		window: newFailureWindow(config.FailureThreshold),
	}, nil
}

// Do runs fn under the breaker's scoped acquisition. If the breaker is
// open and the recovery timeout has not elapsed, fn is never invoked and
// the returned error satisfies errors.Is(err, ErrOpen). Otherwise fn's
// error is propagated unchanged after the breaker records the outcome.
// The outcome is recorded on every exit path, including panics.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	settled := false
	defer func() {
		if !settled {
			// fn panicked; count it as a failure before unwinding.
			cb.record(false, probe)
		}
	}()

	callErr := fn(ctx)
	settled = true
	cb.record(callErr == nil, probe)
	return callErr
}

// admit decides whether a call may proceed. It returns probe=true when the
// admitted call is the half-open test probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, nil

	case StateOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.setState(StateHalfOpen)
			cb.probing = true
			return true, nil
		}
		return false, cb.rejection()

	case StateHalfOpen:
		if cb.probing {
			// The single probe slot is taken.
			return false, cb.rejection()
		}
		cb.probing = true
		return true, nil

	default:
		return false, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown breaker state: %v", cb.state)).WithComponent(cb.name)
	}
}

// record applies the outcome of an admitted call.
func (cb *CircuitBreaker) record(success, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		if success {
			cb.setState(StateClosed)
			cb.window.Clear()
			cb.logger.Info("probe succeeded, circuit closed")
		} else {
			// The probe failed; no need to count it among threshold
			// failures, the window restarts on the next close.
			cb.lastFailure = cb.now()
			cb.window.Clear()
			cb.setState(StateOpen)
			cb.logger.Warn("probe failed, circuit reopened")
		}
		return
	}

	if success {
		return
	}

	// Failures are only counted while closed; a failure landing after a
	// concurrent caller already tripped the breaker is dropped.
	if cb.state != StateClosed {
		cb.logger.Debug("failure recorded outside closed state, ignored",
			zap.String("state", cb.state.String()))
		return
	}

	now := cb.now()
	cb.window.Append(now)
	if cb.window.Len() >= cb.config.FailureThreshold {
		cb.lastFailure = now
		cb.setState(StateOpen)
		cb.logger.Warn("failure threshold reached, circuit opened",
			zap.Int("failures", cb.window.Len()),
			zap.Int("threshold", cb.config.FailureThreshold))
	}
}

// rejection builds the per-call rejection error. Callers must hold the lock.
func (cb *CircuitBreaker) rejection() error {
	retryAfter := cb.config.RecoveryTimeout - cb.now().Sub(cb.lastFailure)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return types.NewError(types.ErrCircuitOpen,
		fmt.Sprintf("retry after %s", retryAfter.Round(time.Millisecond))).
		WithComponent(cb.name).
		WithCause(ErrOpen)
}

// setState transitions the state and fires the change callback. Callers
// must hold the lock.
func (cb *CircuitBreaker) setState(newState State) {
	oldState := cb.state
	if oldState == newState {
		return
	}
	cb.state = newState

	cb.logger.Info("state transition",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()))

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// State returns the current state for diagnostics.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the name of the guarded dependency.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
