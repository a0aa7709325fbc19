// Package health provides health monitoring and aggregation services
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Static errors for health package
var (
	ErrHealthCheckNotFound    = errors.New("health check not found")
	ErrHealthCheckRegistered  = errors.New("health check already registered")
	ErrInvalidHealthCheck     = errors.New("invalid health check")
	ErrNoHealthChecksExecuted = errors.New("no health checks have run yet")
)

// Aggregator implements the HealthAggregator interface with worst-state
// aggregation. Liveness considers liveness and general checks; readiness
// considers readiness and general checks.
type Aggregator struct {
	mu          sync.RWMutex
	checkers    map[string]HealthChecker
	lastResults map[string]*CheckResult
	last        *AggregatedStatus
	config      *AggregatorConfig
	callbacks   []StatusChangeCallback
}

// AggregatorConfig represents configuration for the health aggregator
type AggregatorConfig struct {
	// Timeout bounds each individual check.
	Timeout time.Duration `json:"timeout"`
	// ParallelChecks runs checks concurrently in CheckAll.
	ParallelChecks bool `json:"parallel_checks"`
}

// NewAggregator creates a new health aggregator
func NewAggregator(config *AggregatorConfig) *Aggregator {
	if config == nil {
		config = &AggregatorConfig{
			Timeout:        5 * time.Second,
			ParallelChecks: true,
		}
	}
	return &Aggregator{
		checkers:    make(map[string]HealthChecker),
		lastResults: make(map[string]*CheckResult),
		config:      config,
	}
}

// RegisterCheck registers a health check with the aggregator
func (a *Aggregator) RegisterCheck(_ context.Context, checker HealthChecker) error {
	if checker == nil || checker.Name() == "" {
		return ErrInvalidHealthCheck
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[checker.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrHealthCheckRegistered, checker.Name())
	}
	a.checkers[checker.Name()] = checker
	return nil
}

// UnregisterCheck removes a health check from the aggregator
func (a *Aggregator) UnregisterCheck(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[name]; !exists {
		return fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}
	delete(a.checkers, name)
	delete(a.lastResults, name)
	return nil
}

// OnStatusChange registers a callback run after CheckAll whenever the overall
// status differs from the previous run.
func (a *Aggregator) OnStatusChange(callback StatusChangeCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, callback)
}

// CheckAll runs all registered health checks and returns aggregated status
func (a *Aggregator) CheckAll(ctx context.Context) (*AggregatedStatus, error) {
	a.mu.RLock()
	checkers := make([]HealthChecker, 0, len(a.checkers))
	for _, c := range a.checkers {
		checkers = append(checkers, c)
	}
	a.mu.RUnlock()
	sort.Slice(checkers, func(i, j int) bool { return checkers[i].Name() < checkers[j].Name() })

	results := make([]*CheckResult, len(checkers))
	if a.config.ParallelChecks {
		var wg sync.WaitGroup
		for i, c := range checkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = a.run(ctx, c)
			}()
		}
		wg.Wait()
	} else {
		for i, c := range checkers {
			results[i] = a.run(ctx, c)
		}
	}

	a.mu.Lock()
	byName := make(map[string]*CheckResult, len(results))
	for _, r := range results {
		a.trend(r)
		a.lastResults[r.Name] = r
		byName[r.Name] = r
	}
	status := aggregate(byName, a.types(checkers))
	previous := a.last
	a.last = status
	callbacks := append([]StatusChangeCallback(nil), a.callbacks...)
	a.mu.Unlock()

	if previous == nil || previous.OverallStatus != status.OverallStatus {
		for _, cb := range callbacks {
			if err := cb(ctx, previous, status); err != nil {
				return status, fmt.Errorf("status change callback: %w", err)
			}
		}
	}
	return status, nil
}

// CheckOne runs a specific health check by name
func (a *Aggregator) CheckOne(ctx context.Context, name string) (*CheckResult, error) {
	a.mu.RLock()
	checker, exists := a.checkers[name]
	a.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}

	result := a.run(ctx, checker)

	a.mu.Lock()
	a.trend(result)
	a.lastResults[name] = result
	a.mu.Unlock()

	return result, nil
}

// GetStatus returns the current aggregated health status without running checks
func (a *Aggregator) GetStatus(_ context.Context) (*AggregatedStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.last == nil {
		return nil, ErrNoHealthChecksExecuted
	}
	return a.last, nil
}

// IsReady returns true if the system is ready to accept traffic. A warning
// still counts as ready.
func (a *Aggregator) IsReady(ctx context.Context) (bool, error) {
	status, err := a.CheckAll(ctx)
	if err != nil {
		return false, err
	}
	return usable(status.ReadinessStatus), nil
}

// IsLive returns true if the system is alive (for liveness probes)
func (a *Aggregator) IsLive(ctx context.Context) (bool, error) {
	status, err := a.CheckAll(ctx)
	if err != nil {
		return false, err
	}
	return usable(status.LivenessStatus), nil
}

func usable(s HealthStatus) bool {
	return s == StatusHealthy || s == StatusWarning
}

// run executes one checker under the configured timeout. An error from the
// checker is a critical result.
func (a *Aggregator) run(ctx context.Context, checker HealthChecker) *CheckResult {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	start := time.Now()
	result, err := checker.Check(ctx)
	if err != nil || result == nil {
		result = &CheckResult{Status: StatusCritical}
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Error = "check returned no result"
		}
	}
	result.Name = checker.Name()
	if result.Status == "" {
		result.Status = StatusUnknown
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	result.Duration = time.Since(start)
	return result
}

// trend carries failure/success streaks over from the previous result. Callers
// hold a.mu.
func (a *Aggregator) trend(r *CheckResult) {
	prev := a.lastResults[r.Name]
	if r.Status == StatusHealthy {
		r.ConsecutiveSuccesses = 1
		if prev != nil {
			r.ConsecutiveSuccesses = prev.ConsecutiveSuccesses + 1
		}
		return
	}
	r.ConsecutiveFailures = 1
	if prev != nil {
		r.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	}
}

func (a *Aggregator) types(checkers []HealthChecker) map[string]CheckType {
	out := make(map[string]CheckType, len(checkers))
	for _, c := range checkers {
		out[c.Name()] = CheckTypeGeneral
		if tc, ok := c.(TypedChecker); ok {
			out[c.Name()] = tc.Type()
		}
	}
	return out
}

// aggregate applies worst-state logic. With no applicable checks a probe is
// healthy.
func aggregate(results map[string]*CheckResult, types map[string]CheckType) *AggregatedStatus {
	status := &AggregatedStatus{
		OverallStatus:   StatusHealthy,
		ReadinessStatus: StatusHealthy,
		LivenessStatus:  StatusHealthy,
		Timestamp:       time.Now(),
		CheckResults:    results,
		Summary:         &StatusSummary{TotalChecks: len(results)},
	}
	for name, r := range results {
		status.OverallStatus = status.OverallStatus.Worse(r.Status)
		switch types[name] {
		case CheckTypeLiveness:
			status.LivenessStatus = status.LivenessStatus.Worse(r.Status)
		case CheckTypeReadiness:
			status.ReadinessStatus = status.ReadinessStatus.Worse(r.Status)
		default:
			status.LivenessStatus = status.LivenessStatus.Worse(r.Status)
			status.ReadinessStatus = status.ReadinessStatus.Worse(r.Status)
		}
		switch r.Status {
		case StatusHealthy:
			status.Summary.PassingChecks++
		case StatusWarning:
			status.Summary.WarningChecks++
		case StatusCritical:
			status.Summary.CriticalChecks++
		default:
			status.Summary.UnknownChecks++
		}
	}
	return status
}

// Check adapts a function to TypedChecker.
type Check struct {
	CheckName        string
	CheckDescription string
	Kind             CheckType
	Func             func(ctx context.Context) (*CheckResult, error)
}

// Name implements HealthChecker.
func (c *Check) Name() string { return c.CheckName }

// Description implements HealthChecker.
func (c *Check) Description() string { return c.CheckDescription }

// Type implements TypedChecker.
func (c *Check) Type() CheckType {
	if c.Kind == "" {
		return CheckTypeGeneral
	}
	return c.Kind
}

// Check implements HealthChecker.
func (c *Check) Check(ctx context.Context) (*CheckResult, error) {
	return c.Func(ctx)
}
