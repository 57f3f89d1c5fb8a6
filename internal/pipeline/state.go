package pipeline

import "github.com/sirupsen/logrus"

type State int

const (
	Idle State = iota
	Opening
	Ready
	Processing
	Closing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Ready:
		return "ready"
	case Processing:
		return "processing"
	case Closing:
		return "closing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateHook observes every transition of a run.
type StateHook func(from, to State)

type tracker struct {
	cur  State
	hook StateHook
	log  logrus.FieldLogger
}

func (t *tracker) to(next State) {
	prev := t.cur
	t.cur = next
	t.log.WithFields(logrus.Fields{"from": prev.String(), "to": next.String()}).Trace("state")
	if t.hook != nil {
		t.hook(prev, next)
	}
}
