package callback

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/playq/internal/logger"
)

func staticFactory(caps Capabilities) Registration {
	return Registration{
		Caps: caps,
		New: func(deps Deps) (Plugin, error) {
			return &fakePlugin{caps: caps, trace: &[]recordedCall{}}, nil
		},
	}
}

func TestLoadPutsStdoutFirst(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "notify"})))
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "console", Category: CategoryStdout})))

	plugins, err := r.Load(LoadOptions{StdoutName: "console", RunAdditional: true}, testLogger())
	require.NoError(t, err)

	require.Len(t, plugins, 2)
	assert.Equal(t, "console", plugins[0].Capabilities().Name)
	assert.Equal(t, "notify", plugins[1].Capabilities().Name)
}

func TestLoadRejectsMissingStdout(t *testing.T) {
	r := NewRegistry()

	_, err := r.Load(LoadOptions{StdoutName: "ghost"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `could not load "ghost" callback plugin`)

	_, err = r.Load(LoadOptions{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stdout callback name provided")
}

func TestLoadAllowsOnlyOneStdoutPlugin(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "console", Category: CategoryStdout})))
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "fancy", Category: CategoryStdout})))

	plugins, err := r.Load(LoadOptions{StdoutName: "console", RunAdditional: true}, testLogger())
	require.NoError(t, err)

	require.Len(t, plugins, 1)
	assert.Equal(t, "console", plugins[0].Capabilities().Name)
}

func TestLoadHonorsEnableList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "console", Category: CategoryStdout})))
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "gated", NeedsEnabled: true})))
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "open"})))

	plugins, err := r.Load(LoadOptions{StdoutName: "console", RunAdditional: true}, testLogger())
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "open", plugins[1].Capabilities().Name)

	plugins, err = r.Load(LoadOptions{
		StdoutName:    "console",
		RunAdditional: true,
		Enabled:       []string{"gated"},
	}, testLogger())
	require.NoError(t, err)
	require.Len(t, plugins, 3)
}

func TestLoadWithoutAdditionalCallbacks(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "console", Category: CategoryStdout})))
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "open"})))

	plugins, err := r.Load(LoadOptions{StdoutName: "console", RunAdditional: false}, testLogger())
	require.NoError(t, err)
	require.Len(t, plugins, 1)
}

func TestDiagCarveOutBypassesFilters(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	// Not enabled and additional callbacks off, but the run option forces
	// the diagnostic plugin in.
	plugins, err := r.Load(LoadOptions{
		StdoutName:    "default",
		RunAdditional: false,
		RunDiag:       true,
	}, testLogger())
	require.NoError(t, err)

	require.Len(t, plugins, 2)
	assert.Equal(t, DiagCallbackName, plugins[1].Capabilities().Name)
}

func TestConstructorFailureIsDowngradedToWarning(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "console", Category: CategoryStdout})))
	require.NoError(t, r.Register(Registration{
		Caps: Capabilities{Name: "broken"},
		New: func(deps Deps) (Plugin, error) {
			return nil, errors.New("bad init")
		},
	}))
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "healthy"})))

	var buf bytes.Buffer
	log := logger.NewWithHandler(slog.NewTextHandler(&buf, nil))

	plugins, err := r.Load(LoadOptions{StdoutName: "console", RunAdditional: true}, log)
	require.NoError(t, err)

	require.Len(t, plugins, 2)
	assert.Equal(t, "healthy", plugins[1].Capabilities().Name)
	assert.Contains(t, buf.String(), "failed to load callback plugin")
}

func TestBrokenStdoutPluginIsFatal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Caps: Capabilities{Name: "console", Category: CategoryStdout},
		New: func(deps Deps) (Plugin, error) {
			return nil, errors.New("bad init")
		},
	}))

	_, err := r.Load(LoadOptions{StdoutName: "console"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not initialize")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(staticFactory(Capabilities{Name: "console"})))

	err := r.Register(staticFactory(Capabilities{Name: "console"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestBuiltinsRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	assert.Equal(t, []string{"default", DiagCallbackName, "jsonl"}, r.Names())
}
