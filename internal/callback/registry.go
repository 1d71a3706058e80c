package callback

import (
	"fmt"
	"io"

	"github.com/aatumaykin/playq/internal/logger"
)

// DiagCallbackName is the diagnostic plugin that a run option can force-load
// even when additional callbacks are otherwise filtered out.
const DiagCallbackName = "timer"

// Deps is what a plugin factory may need at construction time.
type Deps struct {
	Logger *logger.Logger
	Stdout io.Writer
}

// Factory constructs one plugin instance.
type Factory func(deps Deps) (Plugin, error)

// Registration binds a static capability descriptor to its factory. Filters
// run against the descriptor, so ineligible plugins are never constructed.
type Registration struct {
	Caps Capabilities
	New  Factory
}

// Registry holds the installed callback plugins in registration order.
type Registry struct {
	byName map[string]Registration
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Registration)}
}

// Register adds a plugin registration. Names are unique.
func (r *Registry) Register(reg Registration) error {
	if reg.Caps.Name == "" {
		return fmt.Errorf("callback registration requires a name")
	}
	if _, exists := r.byName[reg.Caps.Name]; exists {
		return fmt.Errorf("callback plugin %q is already registered", reg.Caps.Name)
	}
	r.byName[reg.Caps.Name] = reg
	r.order = append(r.order, reg.Caps.Name)
	return nil
}

// Names returns the registered plugin names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// LoadOptions controls which plugins become active for a run.
type LoadOptions struct {
	StdoutName    string   // required; resolves the singular stdout plugin
	RunAdditional bool     // load non-stdout plugins at all
	Enabled       []string // allow-list for plugins that need enabling
	RunDiag       bool     // force-load the diagnostic plugin
	Deps          Deps
}

// Load resolves the active plugin list: exactly one stdout plugin, always at
// index 0, followed by eligible additional plugins in registration order. A
// missing or broken stdout plugin fails the load; any other plugin's
// construction failure is downgraded to a warning and the plugin is skipped.
func (r *Registry) Load(opts LoadOptions, log *logger.Logger) ([]Plugin, error) {
	if opts.StdoutName == "" {
		return nil, fmt.Errorf("no stdout callback name provided")
	}

	stdoutReg, ok := r.byName[opts.StdoutName]
	if !ok {
		return nil, fmt.Errorf("could not load %q callback plugin", opts.StdoutName)
	}

	stdoutPlugin, err := stdoutReg.New(opts.Deps)
	if err != nil {
		return nil, fmt.Errorf("could not initialize %q callback plugin: %w", opts.StdoutName, err)
	}

	plugins := []Plugin{stdoutPlugin}

	enabled := make(map[string]struct{}, len(opts.Enabled))
	for _, name := range opts.Enabled {
		enabled[name] = struct{}{}
	}

	for _, name := range r.order {
		if name == opts.StdoutName {
			continue
		}

		reg := r.byName[name]

		// Only one stdout-category plugin may own stdout.
		if reg.Caps.Category == CategoryStdout {
			log.Debug("skipping callback, stdout plugin already loaded",
				logger.Field{Key: "plugin", Value: name})
			continue
		}

		if name == DiagCallbackName && opts.RunDiag {
			// Explicitly requested via run option; bypasses the filters.
		} else if !opts.RunAdditional {
			continue
		} else if reg.Caps.NeedsEnabled {
			if _, ok := enabled[name]; !ok {
				continue
			}
		}

		plugin, err := reg.New(opts.Deps)
		if err != nil {
			log.Warn("failed to load callback plugin, skipping",
				logger.Field{Key: "plugin", Value: name},
				logger.Field{Key: "error", Value: err})
			continue
		}

		plugins = append(plugins, plugin)
	}

	return plugins, nil
}
