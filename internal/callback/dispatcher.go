package callback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aatumaykin/playq/internal/logger"
)

// ErrorPolicy decides what happens to a non-fatal callback dispatch failure.
type ErrorPolicy string

const (
	PolicyIgnore ErrorPolicy = "ignore"
	PolicyWarn   ErrorPolicy = "warn"
	PolicyFatal  ErrorPolicy = "fatal"
)

// ParseErrorPolicy validates a configured policy string.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case PolicyIgnore, PolicyWarn, PolicyFatal:
		return ErrorPolicy(s), nil
	case "":
		return PolicyWarn, nil
	default:
		return "", fmt.Errorf("invalid callback error policy: %s (expected: ignore, warn, fatal)", s)
	}
}

// DispatchError names the failing method and plugin of one isolated callback
// failure.
type DispatchError struct {
	Method string
	Plugin string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("callback dispatch %q failed for plugin %q: %v", e.Method, e.Plugin, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Dispatcher fans events out to the loaded plugins. A mutex serializes full
// dispatch passes: the main strategy loop and any helper thread the embedding
// caller spins up may both call Send, but plugins are never invoked
// concurrently.
type Dispatcher struct {
	mu      sync.Mutex
	plugins []Plugin
	policy  ErrorPolicy
	logger  *logger.Logger
}

// NewDispatcher creates a dispatcher over an ordered plugin list (stdout
// plugin first).
func NewDispatcher(plugins []Plugin, policy ErrorPolicy, log *logger.Logger) *Dispatcher {
	if policy == "" {
		policy = PolicyWarn
	}
	return &Dispatcher{
		plugins: plugins,
		policy:  policy,
		logger:  log,
	}
}

// Plugins returns a copy of the dispatch order.
func (d *Dispatcher) Plugins() []Plugin {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Plugin, len(d.plugins))
	copy(out, d.plugins)
	return out
}

// Send dispatches one named event to every eligible plugin in order. For each
// plugin the event-specific method runs first, then the catch-all if the
// plugin opted in. A plugin error is wrapped into a DispatchError and routed
// through the configured policy so one broken plugin cannot abort the run for
// the others; only PolicyFatal makes Send return the error, and dispatch to
// the remaining plugins still completes first. Panics propagate.
func (d *Dispatcher) Send(event string, ev Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var fatal error

	for _, plugin := range d.plugins {
		if plugin.Disabled() {
			continue
		}

		caps := plugin.Capabilities()

		if ev.implicit() && !caps.WantsImplicitTasks {
			continue
		}

		var methods []string
		if caps.Implements(event) {
			methods = append(methods, event)
		}
		if caps.OnAll {
			methods = append(methods, EventOnAny)
		}

		for _, method := range methods {
			// Every invocation gets its own copy of the result.
			plugEv := ev
			if ev.Result != nil {
				plugEv.Result = ev.Result.Clone()
			}

			if err := plugin.HandleEvent(method, plugEv); err != nil {
				dispatchErr := &DispatchError{
					Method: method,
					Plugin: caps.Name,
					Err:    err,
				}

				switch d.policy {
				case PolicyIgnore:
				case PolicyFatal:
					if fatal == nil {
						fatal = dispatchErr
					} else {
						fatal = errors.Join(fatal, dispatchErr)
					}
				default:
					d.logger.Warn("callback dispatch failed",
						logger.Field{Key: "method", Value: method},
						logger.Field{Key: "plugin", Value: caps.Name},
						logger.Field{Key: "error", Value: err})
				}
			}
		}
	}

	return fatal
}
