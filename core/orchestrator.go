package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Component is anything the orchestrator starts, stops, and health-checks
// in dependency order: the transport manager, mesh router, DHT, storage
// market, mempool, consensus engine (spec.md §4.12).
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ComponentHealth
}

type componentEntry struct {
	component Component
	dependsOn []string
	started   bool
}

// Orchestrator starts and stops Components in dependency order and
// aggregates their health. Grounded on teacher `cmd/synnergy/main.go`'s
// manual, hand-ordered component wiring (transport before consensus before
// mempool, etc.); this generalizes that implicit ordering into an explicit
// dependency graph so adding a component doesn't require reordering
// unrelated startup code.
type Orchestrator struct {
	mu      sync.Mutex
	entries map[string]*componentEntry
	bus     *EventBus
	log     *logrus.Logger
}

// NewOrchestrator creates an orchestrator wired to bus for cross-component
// events.
func NewOrchestrator(bus *EventBus, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = discardLogger()
	}
	return &Orchestrator{
		entries: make(map[string]*componentEntry),
		bus:     bus,
		log:     log,
	}
}

// Register adds a component with its startup dependencies (by name).
// Dependencies are resolved when StartAll or StopAll runs, so components
// may be registered in any order; every named dependency must be
// registered by then.
func (o *Orchestrator) Register(c Component, dependsOn ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[c.Name()] = &componentEntry{component: c, dependsOn: dependsOn}
}

// StartAll starts every registered component in dependency order,
// detecting cycles and missing dependencies up front rather than
// deadlocking at runtime.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, err := o.resolveOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		entry := o.entries[name]
		if entry.started {
			continue
		}
		o.log.WithField("component", name).Info("orchestrator: starting component")
		if err := entry.component.Start(ctx); err != nil {
			return fmt.Errorf("core: start %s: %w", name, err)
		}
		entry.started = true
	}
	return nil
}

// StopAll stops every started component in reverse dependency order.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, err := o.resolveOrder()
	if err != nil {
		return err
	}
	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		entry := o.entries[order[i]]
		if !entry.started {
			continue
		}
		o.log.WithField("component", order[i]).Info("orchestrator: stopping component")
		if err := entry.component.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("core: stop %s: %w", order[i], err)
		}
		entry.started = false
	}
	return firstErr
}

// HealthCheck polls every registered component and returns every
// component's report, plus ErrUnhealthyComponent if any report is
// unhealthy.
func (o *Orchestrator) HealthCheck() ([]ComponentHealth, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var results []ComponentHealth
	unhealthy := false
	for _, entry := range o.entries {
		h := entry.component.Health()
		results = append(results, h)
		if !h.Healthy {
			unhealthy = true
		}
	}
	if unhealthy {
		return results, ErrUnhealthyComponent
	}
	return results, nil
}

// ErrDependencyCycle is returned when component dependencies form a cycle.
var ErrDependencyCycle = fmt.Errorf("core: component dependency cycle detected")

// ErrMissingDependency is returned when a component depends on a name that
// was never registered.
var ErrMissingDependency = fmt.Errorf("core: component depends on unregistered component")

func (o *Orchestrator) resolveOrder() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(o.entries))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return ErrDependencyCycle
		}
		color[name] = gray
		entry, ok := o.entries[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingDependency, name)
		}
		for _, dep := range entry.dependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for name := range o.entries {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
