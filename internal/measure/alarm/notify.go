package alarm

import (
	"strconv"

	"github.com/banshee-data/mascril/internal/monitoring"
)

// Notifier receives alarm results so they can be surfaced to the operator.
type Notifier interface {
	Notify(Result)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Result)

// Notify calls f(r).
func (f NotifierFunc) Notify(r Result) { f(r) }

var logf = monitoring.Component("alarm")

// LogNotifier logs show-value results every step and triggered
// call-for-help and quit alarms.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(r Result) {
	switch r.Rule.Severity {
	case ShowValue:
		logf("%s = %s", r.Rule.Name, strconv.FormatFloat(r.Value, 'g', 6, 64))
	case CallForHelp:
		if r.Triggered {
			logf("CALL FOR HELP: %s", r.Rule.Name)
		}
	case Quit:
		if r.Triggered {
			logf("stopping the acquisition: %s", r.Rule.Name)
		}
	}
}

// Multi fans a result out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(r Result) {
	for _, n := range m {
		if n != nil {
			n.Notify(r)
		}
	}
}
