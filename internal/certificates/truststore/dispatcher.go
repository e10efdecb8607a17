package truststore

import (
	"context"
	"fmt"
	"sort"
)

// Status describes what happened to one target.
type Status string

const (
	StatusInstalled      Status = "installed"
	StatusAlreadyPresent Status = "already_present"
	StatusRemoved        Status = "removed"
	StatusPresent        Status = "present"
	StatusAbsent         Status = "absent"
	StatusUnavailable    Status = "unavailable"
	StatusFailed         Status = "failed"
)

// Outcome records the status of one enabled target.
type Outcome struct {
	Target   Target `json:"target" yaml:"target"`
	Status   Status `json:"status" yaml:"status"`
	Required bool   `json:"required" yaml:"required"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Warning records an optional target that failed without failing the operation.
type Warning struct {
	Target  Target `json:"target" yaml:"target"`
	Message string `json:"message" yaml:"message"`
	Err     error  `json:"-" yaml:"-"`
}

// Result carries per-target outcomes and the warnings of optional targets.
type Result struct {
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`
	Warnings []Warning `json:"warnings" yaml:"warnings"`
}

// Dispatcher fans trust store operations out to enabled drivers, one at a time, in the
// order system, nss, java.
type Dispatcher struct {
	drivers []Driver
	enabled map[Target]bool
}

// NewDispatcher constructs a Dispatcher. Drivers whose target is not in enabledTargets are ignored.
func NewDispatcher(drivers []Driver, enabledTargets []Target) *Dispatcher {
	ordered := append([]Driver{}, drivers...)
	sort.SliceStable(ordered, func(left int, right int) bool {
		return ordered[left].Target().order() < ordered[right].Target().order()
	})
	enabled := make(map[Target]bool, len(enabledTargets))
	for _, target := range enabledTargets {
		enabled[target] = true
	}
	return &Dispatcher{drivers: ordered, enabled: enabled}
}

type driverOperation struct {
	name          string
	succeeded     Status
	skipIfPresent bool
	run           func(ctx context.Context, driver Driver) error
}

// Install adds the root certificate to every enabled, available target not already holding
// it. A failing required target stops dispatch and is returned as a *TrustStoreError.
func (dispatcher *Dispatcher) Install(ctx context.Context) (Result, error) {
	return dispatcher.dispatch(ctx, driverOperation{
		name:          "install",
		succeeded:     StatusInstalled,
		skipIfPresent: true,
		run: func(ctx context.Context, driver Driver) error {
			return driver.Install(ctx)
		},
	})
}

// Uninstall removes the root certificate from every enabled, available target.
func (dispatcher *Dispatcher) Uninstall(ctx context.Context) (Result, error) {
	return dispatcher.dispatch(ctx, driverOperation{
		name:      "uninstall",
		succeeded: StatusRemoved,
		run: func(ctx context.Context, driver Driver) error {
			return driver.Uninstall(ctx)
		},
	})
}

// Status reports whether each enabled target currently holds the root certificate.
func (dispatcher *Dispatcher) Status(ctx context.Context) Result {
	result := Result{Outcomes: []Outcome{}, Warnings: []Warning{}}
	for _, driver := range dispatcher.enabledDrivers() {
		target := driver.Target()
		outcome := Outcome{Target: target, Required: target.Required()}
		switch {
		case !driver.Available(ctx):
			outcome.Status = StatusUnavailable
		default:
			present, err := driver.Check(ctx)
			switch {
			case err != nil:
				outcome.Status = StatusFailed
				outcome.Error = err.Error()
			case present:
				outcome.Status = StatusPresent
			default:
				outcome.Status = StatusAbsent
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result
}

func (dispatcher *Dispatcher) dispatch(ctx context.Context, operation driverOperation) (Result, error) {
	result := Result{Outcomes: []Outcome{}, Warnings: []Warning{}}
	for _, driver := range dispatcher.enabledDrivers() {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%s trust stores: %w", operation.name, err)
		}
		target := driver.Target()
		outcome := Outcome{Target: target, Required: target.Required()}

		if !driver.Available(ctx) {
			if target.Required() {
				outcome.Status = StatusFailed
				outcome.Error = ErrTargetUnavailable.Error()
				result.Outcomes = append(result.Outcomes, outcome)
				return result, &TrustStoreError{Target: target, Err: ErrTargetUnavailable}
			}
			outcome.Status = StatusUnavailable
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		if operation.skipIfPresent {
			present, checkErr := driver.Check(ctx)
			if checkErr == nil && present {
				outcome.Status = StatusAlreadyPresent
				result.Outcomes = append(result.Outcomes, outcome)
				continue
			}
		}

		if err := operation.run(ctx, driver); err != nil {
			storeErr := &TrustStoreError{Target: target, Err: err}
			outcome.Status = StatusFailed
			outcome.Error = err.Error()
			result.Outcomes = append(result.Outcomes, outcome)
			if target.Required() {
				return result, storeErr
			}
			result.Warnings = append(result.Warnings, Warning{Target: target, Message: storeErr.Error(), Err: storeErr})
			continue
		}
		outcome.Status = operation.succeeded
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

func (dispatcher *Dispatcher) enabledDrivers() []Driver {
	enabledDrivers := make([]Driver, 0, len(dispatcher.drivers))
	for _, driver := range dispatcher.drivers {
		if dispatcher.enabled[driver.Target()] {
			enabledDrivers = append(enabledDrivers, driver)
		}
	}
	return enabledDrivers
}
