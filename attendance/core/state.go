package core

import (
	"time"

	"axiapac.com/attendance/attendance/model"
)

type StateName string

const (
	StateNormal    StateName = "NORMAL"
	StatePending   StateName = "PENDING"
	StateClosed    StateName = "CLOSED"
	StateCancelled StateName = "CANCELLED"
)

// SessionState is one of Normal, Pending, Closed or Cancelled.
type SessionState interface {
	Name() StateName
	sessionState()
}

// Normal is an open session without a countdown.
type Normal struct{}

// Pending is an open session with a running countdown.
type Pending struct {
	Record model.AutoCheckoutPending
}

// Closed is a session with its terminal write applied.
type Closed struct {
	At     time.Time
	Reason *model.CheckoutReason
}

// Cancelled is an open session whose countdown was just withdrawn. It is
// transient: the next sweep sees the session as Normal again.
type Cancelled struct {
	Record model.AutoCheckoutPending
}

func (Normal) Name() StateName    { return StateNormal }
func (Pending) Name() StateName   { return StatePending }
func (Closed) Name() StateName    { return StateClosed }
func (Cancelled) Name() StateName { return StateCancelled }

func (Normal) sessionState()    {}
func (Pending) sessionState()   {}
func (Closed) sessionState()    {}
func (Cancelled) sessionState() {}

var transitions = map[StateName][]StateName{
	StateNormal:    {StatePending, StateClosed},
	StatePending:   {StatePending, StateClosed, StateCancelled},
	StateCancelled: {StateNormal, StatePending, StateClosed},
	StateClosed:    {},
}

func CanTransition(from, to StateName) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateOf derives the state of a session from its row and its PENDING countdown, if any.
func StateOf(session model.AttendanceLog, pending *model.AutoCheckoutPending) SessionState {
	if !session.IsOpen() {
		return Closed{At: *session.CheckOutTime, Reason: session.CheckoutReason}
	}
	if pending != nil && pending.Status == model.PendingStatusPending {
		return Pending{Record: *pending}
	}
	return Normal{}
}

// Trigger is the outcome of evaluating the auto-checkout conditions of one session.
type Trigger struct {
	Fired  bool
	Reason model.CheckoutReason
}

func fired(reason model.CheckoutReason) Trigger {
	return Trigger{Fired: true, Reason: reason}
}

// EvaluateTrigger checks the conditions in priority order: missing heartbeat,
// stale heartbeat, GPS disabled, then out of branch. A heartbeat recorded for
// another session counts as missing.
func EvaluateTrigger(session model.AttendanceLog, heartbeat *model.Heartbeat, settings model.AutoCheckoutSettings, now time.Time) Trigger {
	grace := settings.GracePeriod()
	if heartbeat != nil && heartbeat.AttendanceLogID != session.ID {
		heartbeat = nil
	}

	if heartbeat == nil {
		if settings.NoSignalEnabled && now.Sub(session.CheckInTime) >= grace {
			return fired(model.CheckoutReasonNoHeartbeat)
		}
		return Trigger{}
	}

	if settings.NoSignalEnabled && now.Sub(heartbeat.LastSeen) >= grace {
		return fired(model.CheckoutReasonHeartbeatTimeout)
	}
	if settings.LocationDisabledEnabled && !heartbeat.GPSOK {
		return fired(model.CheckoutReasonGPSDisabled)
	}
	if !heartbeat.InBranch {
		return fired(model.CheckoutReasonOutOfBranch)
	}
	return Trigger{}
}

type Action string

const (
	ActionNone               Action = "NONE"
	ActionCountdownStarted   Action = "COUNTDOWN_STARTED"
	ActionCountdownRunning   Action = "COUNTDOWN_RUNNING"
	ActionCheckoutExecuted   Action = "CHECKOUT_EXECUTED"
	ActionCountdownCancelled Action = "COUNTDOWN_CANCELLED"
	// ActionStale is a decision that lost a race with another writer.
	ActionStale Action = "STALE"
)

type Decision struct {
	Action   Action
	From     StateName
	To       StateName
	Reason   model.CheckoutReason
	Deadline time.Time
}

// Decide is the transition function of the enforcer. It never touches storage.
func Decide(state SessionState, trigger Trigger, settings model.AutoCheckoutSettings, now time.Time) Decision {
	from := state.Name()
	stay := Decision{Action: ActionNone, From: from, To: from}

	switch s := state.(type) {
	case Normal, Cancelled:
		if !trigger.Fired {
			return Decision{Action: ActionNone, From: from, To: StateNormal}
		}
		return Decision{
			Action:   ActionCountdownStarted,
			From:     from,
			To:       StatePending,
			Reason:   trigger.Reason,
			Deadline: now.Add(settings.CountdownFor(trigger.Reason)),
		}
	case Pending:
		if !trigger.Fired {
			return Decision{Action: ActionCountdownCancelled, From: from, To: StateCancelled, Reason: s.Record.Reason}
		}
		if now.Before(s.Record.DeadlineAt) {
			return Decision{Action: ActionCountdownRunning, From: from, To: StatePending, Reason: s.Record.Reason, Deadline: s.Record.DeadlineAt}
		}
		return Decision{Action: ActionCheckoutExecuted, From: from, To: StateClosed, Reason: trigger.Reason, Deadline: s.Record.DeadlineAt}
	}
	return stay
}
