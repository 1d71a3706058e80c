package callback

import (
	"fmt"
	"io"
	"os"
	"time"
)

// timerPlugin is the builtin diagnostic plugin: it reports how long each play
// took. It needs enabling, but the run-diag option force-loads it.
type timerPlugin struct {
	out   io.Writer
	start time.Time
}

// NewTimer constructs the diagnostic timer plugin.
func NewTimer(deps Deps) (Plugin, error) {
	out := deps.Stdout
	if out == nil {
		out = os.Stdout
	}
	return &timerPlugin{out: out}, nil
}

// TimerCaps is the static descriptor of the timer plugin.
var TimerCaps = Capabilities{
	Name:         DiagCallbackName,
	Category:     CategoryAggregate,
	NeedsEnabled: true,
	Events: []string{
		EventPlaybookOnPlayStart,
		EventPlaybookOnStats,
	},
}

func (p *timerPlugin) Capabilities() Capabilities { return TimerCaps }

func (p *timerPlugin) Disabled() bool { return false }

func (p *timerPlugin) HandleEvent(event string, ev Event) error {
	switch event {
	case EventPlaybookOnPlayStart:
		p.start = time.Now()
	case EventPlaybookOnStats:
		if !p.start.IsZero() {
			fmt.Fprintf(p.out, "Playbook run took %s\n", time.Since(p.start).Round(time.Millisecond))
		}
	}
	return nil
}
