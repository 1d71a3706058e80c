package callback

import (
	"github.com/aatumaykin/playq/internal/logger"
)

// jsonlPlugin mirrors every event into the structured log. It opts into the
// catch-all and into implicit tasks, so the log is a complete record of the
// run.
type jsonlPlugin struct {
	logger *logger.Logger
}

// NewJSONL constructs the structured-log mirror plugin.
func NewJSONL(deps Deps) (Plugin, error) {
	return &jsonlPlugin{logger: deps.Logger.With(logger.Field{Key: "callback", Value: "jsonl"})}, nil
}

// JSONLCaps is the static descriptor of the jsonl plugin.
var JSONLCaps = Capabilities{
	Name:               "jsonl",
	Category:           CategoryNotification,
	NeedsEnabled:       true,
	WantsImplicitTasks: true,
	OnAll:              true,
}

func (p *jsonlPlugin) Capabilities() Capabilities { return JSONLCaps }

func (p *jsonlPlugin) Disabled() bool { return false }

func (p *jsonlPlugin) HandleEvent(event string, ev Event) error {
	fields := []logger.Field{{Key: "event", Value: event}}
	if ev.Play != "" {
		fields = append(fields, logger.Field{Key: "play", Value: ev.Play})
	}
	if ev.Task != nil {
		fields = append(fields, logger.Field{Key: "task", Value: ev.Task.Name})
	}
	if ev.Result != nil {
		fields = append(fields,
			logger.Field{Key: "host", Value: ev.Result.HostName},
			logger.Field{Key: "status", Value: string(ev.Result.Status())})
	}
	p.logger.Info("callback event", fields...)
	return nil
}
