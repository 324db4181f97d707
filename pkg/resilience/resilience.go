package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"tourly-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

var (
	breakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_requests_total",
		Help: "Operations attempted through a circuit breaker",
	}, []string{"breaker", "status"})

	breakerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_errors_total",
		Help: "Failed operations by error class",
	}, []string{"breaker", "error_type"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "State of the circuit breaker (0=closed, 1=half_open, 2=open)",
	}, []string{"breaker"})
)

// Config tunes a circuit breaker
type Config struct {
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a trial call
	Cooldown time.Duration
}

// CircuitBreaker stops calling a failing dependency for a cooldown period.
// After the cooldown one trial call is let through; its outcome closes or
// reopens the circuit.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(name string, cfg Config, log *zap.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	breakerState.WithLabelValues(name).Set(0)

	return &CircuitBreaker{
		name:   name,
		config: cfg,
		logger: logger.OrNop(log).With(zap.String("breaker", name)),
		now:    time.Now,
		state:  CircuitBreakerClosed,
	}
}

// Execute runs fn unless the circuit is open
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		breakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return ErrCircuitOpen
	}

	err := fn(ctx)
	b.record(err)
	return err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.setState(CircuitBreakerHalfOpen)
		b.trialInFlight = true
		return true
	case CircuitBreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return true
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false

	if err == nil {
		breakerRequests.WithLabelValues(b.name, "success").Inc()
		b.consecutiveFailures = 0
		if b.state != CircuitBreakerClosed {
			b.setState(CircuitBreakerClosed)
			b.logger.Info("Circuit breaker closed")
		}
		return
	}

	breakerRequests.WithLabelValues(b.name, "failure").Inc()
	breakerErrors.WithLabelValues(b.name, classifyError(err)).Inc()
	b.consecutiveFailures++

	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.config.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			b.logger.Warn("Circuit breaker opened",
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.Error(err))
		}
		b.setState(CircuitBreakerOpen)
		b.openedAt = b.now()
	}
}

func (b *CircuitBreaker) setState(state CircuitBreakerState) {
	b.state = state
	switch state {
	case CircuitBreakerClosed:
		breakerState.WithLabelValues(b.name).Set(0)
	case CircuitBreakerHalfOpen:
		breakerState.WithLabelValues(b.name).Set(1)
	case CircuitBreakerOpen:
		breakerState.WithLabelValues(b.name).Set(2)
	}
}

// State returns the current circuit breaker state
func (b *CircuitBreaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// classifyError classifies errors for metrics
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host"):
		return "dns"
	case strings.Contains(errMsg, "access denied") || strings.Contains(errMsg, "permission denied"):
		return "permission"
	default:
		return "unknown"
	}
}
