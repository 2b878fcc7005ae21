// Package health runs preflight checks against the components a placement
// run depends on: cache volumes, the origin, the ledger and the access logs.
package health

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediacache/mediacache/internal/inventory"
	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// HealthState represents the health state of a component
type HealthState int

const (
	// StateHealthy indicates the component is fully operational
	StateHealthy HealthState = iota

	// StateDegraded indicates a run can proceed with reduced input
	StateDegraded

	// StateUnavailable indicates a run would fail
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// CheckFunc probes a single component.
type CheckFunc func(ctx context.Context) error

// Check is a registered probe. A failing critical check makes the component
// unavailable; a failing non-critical check only degrades it.
type Check struct {
	Name     string
	Critical bool
	Fn       CheckFunc
}

// ComponentHealth is the outcome of one check
type ComponentHealth struct {
	Name     string        `json:"name"`
	State    HealthState   `json:"state"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Message  string        `json:"message,omitempty"`
}

// Report collects the outcome of every check, sorted by name.
type Report struct {
	Components []ComponentHealth `json:"components"`
}

// Overall returns the worst component state.
func (r *Report) Overall() HealthState {
	overall := StateHealthy
	for _, c := range r.Components {
		if c.State > overall {
			overall = c.State
		}
	}
	return overall
}

// Checker runs registered checks concurrently, each under its own timeout.
type Checker struct {
	mu      sync.Mutex
	checks  []Check
	timeout time.Duration
	logger  *logrus.Entry
}

// NewChecker creates a checker. A zero timeout defaults to ten seconds.
func NewChecker(timeout time.Duration, logger logrus.FieldLogger) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		timeout: timeout,
		logger:  utils.WithComponent(logger, "health"),
	}
}

// Register adds a check.
func (c *Checker) Register(name string, critical bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, Check{Name: name, Critical: critical, Fn: fn})
}

// Run executes every registered check and returns the collected report.
func (c *Checker) Run(ctx context.Context) *Report {
	c.mu.Lock()
	checks := append([]Check(nil), c.checks...)
	c.mu.Unlock()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = c.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return &Report{Components: results}
}

func (c *Checker) run(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.Fn(ctx)
	result := ComponentHealth{
		Name:     check.Name,
		State:    StateHealthy,
		Duration: time.Since(start),
		Err:      err,
	}
	if err == nil {
		c.logger.WithField("check", check.Name).Debug("Check passed")
		return result
	}

	result.Message = err.Error()
	result.State = StateDegraded
	if check.Critical {
		result.State = StateUnavailable
	}
	c.logger.WithError(err).WithFields(logrus.Fields{
		"check": check.Name,
		"state": result.State.String(),
	}).Warn("Check failed")
	return result
}

// VolumeWritable checks that a file can be created and removed under root.
func VolumeWritable(root string) CheckFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(root)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeScanFailed, "volume root is not accessible").
				WithContext("volume", root)
		}
		if !info.IsDir() {
			return errors.NewError(errors.ErrCodeScanFailed, "volume root is not a directory").
				WithContext("volume", root)
		}

		probe, err := os.CreateTemp(root, inventory.TempPrefix+"probe-*")
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "volume is not writable").
				WithContext("volume", root)
		}
		name := probe.Name()
		closeErr := probe.Close()
		if err := os.Remove(name); err != nil {
			return errors.Wrap(err, errors.ErrCodeDeleteFailed, "failed to remove probe file").
				WithContext("volume", root)
		}
		return closeErr
	}
}

// probeKey names an object that is never expected to exist on the origin.
const probeKey = ".mediacache-probe"

// OriginReachable stats a probe key. A not-found answer proves the origin
// responded, so only other errors fail the check.
func OriginReachable(origin types.OriginStore) CheckFunc {
	return func(ctx context.Context) error {
		_, err := origin.Stat(ctx, probeKey)
		if err == nil || errors.HasCode(err, errors.ErrCodeObjectNotFound) {
			return nil
		}
		return err
	}
}

// LedgerReadable loads the ledger, which also validates its contents.
func LedgerReadable(store types.LedgerStore) CheckFunc {
	return func(ctx context.Context) error {
		_, _, err := store.Read(ctx)
		return err
	}
}

// FileReadable checks that path exists and can be opened.
func FileReadable(path string) CheckFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Open(path) // #nosec G304 -- operator-supplied log path
		if err != nil {
			if os.IsNotExist(err) {
				return errors.Wrap(err, errors.ErrCodeFeedUnavailable, fmt.Sprintf("access log %s does not exist", path))
			}
			return errors.Wrap(err, errors.ErrCodeFeedRead, fmt.Sprintf("cannot open access log %s", path))
		}
		return f.Close()
	}
}
