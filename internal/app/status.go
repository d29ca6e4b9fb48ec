package app

import (
	"context"
	"fmt"
	"strings"

	"cadencebot/internal/automation"
	logx "cadencebot/pkg/logx"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// FormatStatus renders one status line, e.g.
//
//	A: Running | w: 7s | rolls: 13s
func FormatStatus(st automation.InstanceStatus, cads [automation.NumCadences]automation.CadenceSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", st.Name, st.State)
	secs := st.RemainingSeconds()
	for i, c := range cads {
		fmt.Fprintf(&b, " | %s: %ds", c.Name, secs[i])
	}
	return b.String()
}

// StatusLines renders the status of every instance, sorted by name.
func StatusLines(sup *automation.Supervisor) []string {
	list := sup.Status()
	out := make([]string, 0, len(list))
	for _, st := range list {
		out = append(out, FormatStatus(st, sup.Cadences()))
	}
	return out
}

// runStatusReporter logs the status of active instances on a cron schedule
// until ctx is done.
func (a *App) runStatusReporter(ctx context.Context, spec string) error {
	log := a.log.With(logx.Component("status"))
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cronLogger{log})))
	if _, err := c.AddFunc(spec, func() { a.reportStatus(log) }); err != nil {
		return fmt.Errorf("status.every %q: %w", spec, err)
	}
	c.Start()
	log.Debug("status reporter started", logx.String("spec", spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (a *App) reportStatus(log logx.Logger) {
	active := 0
	for _, st := range a.sup.Status() {
		if !st.State.Active() {
			continue
		}
		active++
		log.Info(FormatStatus(st, a.sup.Cadences()))
	}
	if active == 0 {
		log.Debug("no active instances")
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, logx.Err(err), logx.Any("kv", kv))
}
