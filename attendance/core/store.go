package core

import (
	"context"
	"errors"
	"time"

	"axiapac.com/attendance/attendance/model"
	"github.com/shopspring/decimal"
)

// ErrSessionAlreadyOpen is returned by CreateSession when the employee has an open session.
var ErrSessionAlreadyOpen = errors.New("an open attendance session already exists for this employee")

// Directory resolves the read-only employee and branch records.
// Both lookups return nil, nil when the record does not exist.
type Directory interface {
	FindEmployee(ctx context.Context, employeeID int64) (*model.Employee, error)
	FindBranch(ctx context.Context, branchID int64) (*model.Branch, error)
}

// SessionClose is the single terminal write of a session.
type SessionClose struct {
	SessionID         int64
	EmployeeID        int64
	At                time.Time
	LocalTime         *string
	Latitude          *float64
	Longitude         *float64
	Accuracy          *float64
	WorkingHours      decimal.Decimal
	EarlyLeaveMinutes *int
	Reason            model.CheckoutReason
}

// SessionStore is what the check-in/check-out controller persists through.
type SessionStore interface {
	// CreateSession inserts an open session or returns ErrSessionAlreadyOpen.
	CreateSession(ctx context.Context, session *model.AttendanceLog) error
	// FindOpenSession returns nil, nil when the employee has no open session.
	FindOpenSession(ctx context.Context, employeeID int64) (*model.AttendanceLog, error)
	// CloseSession applies the close only if the session is still open, cancels its
	// countdown and drops its heartbeat. It reports false when the session was already closed.
	CloseSession(ctx context.Context, closing SessionClose) (bool, error)
	LatestHeartbeat(ctx context.Context, employeeID int64) (*model.Heartbeat, error)
	// UpsertHeartbeat overwrites the employee's heartbeat only while the session it
	// names is still open. It reports false when that session was closed.
	UpsertHeartbeat(ctx context.Context, heartbeat *model.Heartbeat) (bool, error)
	TouchSession(ctx context.Context, sessionID int64, at time.Time, located bool) error
}

type PendingResolution struct {
	PendingID string
	Status    model.PendingStatus
	Note      string
	At        time.Time
}

type ForcedCheckout struct {
	PendingID string
	Close     SessionClose
}

type ForceOutcome int

const (
	// ForceExecuted means the session was closed and the countdown marked DONE.
	ForceExecuted ForceOutcome = iota + 1
	// ForceSessionAlreadyClosed means the countdown was marked DONE but someone
	// else had already closed the session.
	ForceSessionAlreadyClosed
	// ForcePendingResolved means the countdown had been resolved by another sweep.
	ForcePendingResolved
)

// SweepStore is what the auto-checkout enforcer reads and writes.
type SweepStore interface {
	ListOpenSessions(ctx context.Context, companyID int64) ([]model.AttendanceLog, error)
	LatestHeartbeat(ctx context.Context, employeeID int64) (*model.Heartbeat, error)
	// FindPending returns the PENDING countdown of a session, or nil, nil.
	FindPending(ctx context.Context, sessionID int64) (*model.AutoCheckoutPending, error)
	// CreatePending reports false when the session already has a PENDING countdown
	// or is no longer open.
	CreatePending(ctx context.Context, pending *model.AutoCheckoutPending) (bool, error)
	// ResolvePending reports false when the countdown was no longer PENDING.
	ResolvePending(ctx context.Context, resolution PendingResolution) (bool, error)
	// ForceCheckout atomically claims the countdown and closes the session if still open.
	ForceCheckout(ctx context.Context, forced ForcedCheckout) (ForceOutcome, error)
}

type SettingsSource interface {
	ListSettings(ctx context.Context) ([]model.AutoCheckoutSettings, error)
}

// TimezoneResolver maps a position to an IANA zone name.
type TimezoneResolver interface {
	Resolve(ctx context.Context, latitude, longitude float64, hint string) (string, error)
}

// Locker hands out short leases so overlapping sweeps skip a company already being swept.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}
