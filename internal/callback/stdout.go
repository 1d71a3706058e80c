package callback

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aatumaykin/playq/internal/task"
)

const bannerWidth = 79

// defaultStdout is the builtin stdout-category plugin. It owns user-facing
// output: play/task banners, one line per host result, and the final recap.
type defaultStdout struct {
	out io.Writer
}

// NewDefaultStdout constructs the builtin stdout plugin.
func NewDefaultStdout(deps Deps) (Plugin, error) {
	out := deps.Stdout
	if out == nil {
		out = os.Stdout
	}
	return &defaultStdout{out: out}, nil
}

// DefaultStdoutCaps is the static descriptor of the builtin stdout plugin.
var DefaultStdoutCaps = Capabilities{
	Name:     "default",
	Category: CategoryStdout,
	Events: []string{
		EventPlaybookOnPlayStart,
		EventPlaybookOnTaskStart,
		EventPlaybookOnStats,
		EventRunnerOnOK,
		EventRunnerOnFailed,
		EventRunnerOnUnreachable,
		EventRunnerOnSkipped,
	},
}

func (p *defaultStdout) Capabilities() Capabilities { return DefaultStdoutCaps }

func (p *defaultStdout) Disabled() bool { return false }

func (p *defaultStdout) HandleEvent(event string, ev Event) error {
	switch event {
	case EventPlaybookOnPlayStart:
		fmt.Fprintf(p.out, "\n%s\n", banner(fmt.Sprintf("PLAY [%s]", ev.Play)))
	case EventPlaybookOnTaskStart:
		name := ""
		if ev.Task != nil {
			name = ev.Task.Name
		}
		fmt.Fprintf(p.out, "\n%s\n", banner(fmt.Sprintf("TASK [%s]", name)))
	case EventRunnerOnOK, EventRunnerOnFailed, EventRunnerOnUnreachable, EventRunnerOnSkipped:
		// A malformed worker callback can name a runner event without a
		// result attached.
		if ev.Result == nil {
			return fmt.Errorf("%s event carried no task result", event)
		}
		p.printResult(event, ev.Result)
	case EventPlaybookOnStats:
		fmt.Fprintf(p.out, "\n%s\n", banner("PLAY RECAP"))
		for _, host := range ev.Stats.Hosts() {
			s := ev.Stats.Summarize(host)
			fmt.Fprintf(p.out, "%-26s : ok=%d changed=%d unreachable=%d failed=%d skipped=%d\n",
				host, s.OK, s.Changed, s.Unreachable, s.Failures, s.Skipped)
		}
	}
	return nil
}

func (p *defaultStdout) printResult(event string, res *task.CallbackTaskResult) {
	switch event {
	case EventRunnerOnOK:
		if res.IsChanged() {
			fmt.Fprintf(p.out, "changed: [%s]\n", res.HostName)
		} else {
			fmt.Fprintf(p.out, "ok: [%s]\n", res.HostName)
		}
	case EventRunnerOnFailed:
		fmt.Fprintf(p.out, "fatal: [%s]: FAILED! => %s\n", res.HostName, res.Message())
	case EventRunnerOnUnreachable:
		fmt.Fprintf(p.out, "fatal: [%s]: UNREACHABLE! => %s\n", res.HostName, res.Message())
	case EventRunnerOnSkipped:
		fmt.Fprintf(p.out, "skipping: [%s]\n", res.HostName)
	}
}

func banner(msg string) string {
	if len(msg) >= bannerWidth-2 {
		return msg
	}
	return msg + " " + strings.Repeat("*", bannerWidth-len(msg)-1)
}
