// Package indicator gives visual feedback for super-key state changes.
//
// The state machine only asks for transitions; an Indicator decides how to
// show them. The Animator reproduces the LED color animation so the current
// color can be reported, and the sinks forward transitions to the log and to
// desktop notifications.
package indicator

import "log/slog"

// Indicator receives transition requests.
type Indicator interface {
	StartTransition(t Transition, s State)
}

// Nop ignores every transition.
type Nop struct{}

// StartTransition does nothing.
func (Nop) StartTransition(Transition, State) {}

// Multi fans a transition out to several indicators in order.
type Multi []Indicator

// StartTransition forwards to every member.
func (m Multi) StartTransition(t Transition, s State) {
	for _, ind := range m {
		if ind != nil {
			ind.StartTransition(t, s)
		}
	}
}

// LogSink writes each transition at debug level.
type LogSink struct {
	Logger *slog.Logger
	Tables Tables
}

// StartTransition logs t and s with the accent color.
func (l LogSink) StartTransition(t Transition, s State) {
	if l.Logger == nil || t >= numTransitions {
		return
	}
	l.Logger.Debug("indicator transition",
		"transition", t.String(),
		"state", s.String(),
		"accent", l.Tables.Transitions[t].Accent.RGB().Hex(),
	)
}
