package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/mediacache/mediacache/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets calls through
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown expires
	StateOpen
	// StateHalfOpen lets a single trial call through
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures uint32 `yaml:"max_failures"`

	// Cooldown is how long the circuit stays open before a trial call
	Cooldown time.Duration `yaml:"cooldown"`

	// IsFailure decides whether an error counts against the circuit
	IsFailure func(err error) bool `yaml:"-"`

	// OnStateChange is called on every transition
	OnStateChange func(name string, from State, to State) `yaml:"-"`
}

// Counts holds the numbers of calls and their outcomes
type Counts struct {
	Requests            uint32 `json:"requests"`
	Rejected            uint32 `json:"rejected"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// Breaker stops calling a dependency that keeps failing.
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	trial    bool
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, config Config) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the circuit is open
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	if state == StateOpen || (state == StateHalfOpen && b.trial) {
		b.counts.Rejected++
		cacheErr := errors.Newf(errors.ErrCodeConnectionFailed, "%s is unavailable: circuit open after %d consecutive failures",
			b.name, b.config.MaxFailures).
			WithComponent("circuit").
			WithDetail("breaker", b.name).
			WithDetail("retry_after", b.openedAt.Add(b.config.Cooldown).Sub(b.now()).Round(time.Second).String())
		cacheErr.Retryable = false
		return cacheErr
	}

	if state == StateHalfOpen {
		b.trial = true
	}
	b.counts.Requests++
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	b.trial = false

	if !b.config.IsFailure(err) {
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.MaxFailures {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
	}
}

// currentState moves an expired open circuit to half-open. Caller holds mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.config.Cooldown)) {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(state State) {
	prev := b.state
	if prev == state {
		return
	}

	b.state = state
	switch state {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.counts.ConsecutiveFailures = 0
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, prev, state)
	}
}

// State returns the current state of the breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.currentState()
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Name returns the name of the breaker
func (b *Breaker) Name() string {
	return b.name
}
