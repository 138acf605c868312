// Package agent owns the resumable session control loop: a state
// machine with an explicit transition table, checkpoint-then-commit
// persistence, and error routing by taxonomy.
package agent

import (
	"fmt"
	"sort"
)

// State is a phase of the session control loop.
type State string

const (
	StateIdle          State = "idle"
	StateForaging      State = "foraging"
	StatePreprocessing State = "preprocessing"
	StateIdentifying   State = "identifying"
	StateSelecting     State = "selecting"
	StateAssembling    State = "assembling"
	StateValidating    State = "validating"
	StateStoring       State = "storing"
	StateErrorRecovery State = "error_recovery"
	StateSessionEnd    State = "session_end" // Terminal
)

// Loop-level events. The pipeline stage events are defined alongside
// the pipeline; both feed the same transition table.
const (
	EventStartForaging = "start_foraging"
	EventForageFailed  = "forage_failed"
	EventError         = "error"
	EventRecovered     = "recovered"
	EventFatal         = "fatal"
	EventEndSession    = "end_session"
)

// transitions is the legal adjacency: state → event → next state.
// session_end has no outgoing edges.
var transitions = map[State]map[string]State{
	StateIdle: {
		EventStartForaging: StateForaging,
		EventEndSession:    StateSessionEnd,
	},
	StateForaging: {
		"content_ready":   StatePreprocessing,
		EventForageFailed: StateIdle,
		EventError:        StateErrorRecovery,
	},
	StatePreprocessing: {
		"preprocessed":  StateIdentifying,
		"cycle_aborted": StateIdle,
		EventError:      StateErrorRecovery,
	},
	StateIdentifying: {
		"candidates_found": StateSelecting,
		"cycle_aborted":    StateIdle,
		EventError:         StateErrorRecovery,
	},
	StateSelecting: {
		"candidate_selected": StateAssembling,
		"cycle_aborted":      StateIdle,
		EventError:           StateErrorRecovery,
	},
	StateAssembling: {
		"assembled": StateValidating,
		EventError:  StateErrorRecovery,
	},
	StateValidating: {
		"validated":     StateStoring,
		"cycle_aborted": StateIdle,
		EventError:      StateErrorRecovery,
	},
	StateStoring: {
		"stored":   StateIdle,
		EventError: StateErrorRecovery,
	},
	StateErrorRecovery: {
		EventRecovered: StateIdle,
		EventFatal:     StateSessionEnd,
	},
	StateSessionEnd: {},
}

// IllegalTransition reports an event not legal from the current state.
type IllegalTransition struct {
	From  State
	Event string
}

func (e *IllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition: %s + %q (valid events: %v)", e.From, e.Event, validEvents(e.From))
}

func validEvents(s State) []string {
	events := make([]string, 0, len(transitions[s]))
	for ev := range transitions[s] {
		events = append(events, ev)
	}
	sort.Strings(events)
	return events
}
