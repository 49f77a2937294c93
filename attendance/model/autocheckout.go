package model

import (
	"time"

	"gorm.io/datatypes"
)

// AutoCheckoutSettings is the per company enforcement policy.
type AutoCheckoutSettings struct {
	CompanyID int64 `gorm:"column:company_id;primaryKey;autoIncrement:false" json:"companyId"`
	Enabled   bool  `gorm:"column:enabled;not null" json:"enabled"`

	// AutoCheckoutAfterSeconds is the grace period used for heartbeat staleness
	// and as the default countdown length.
	AutoCheckoutAfterSeconds int `gorm:"column:auto_checkout_after_seconds;not null" json:"autoCheckoutAfterSeconds"`

	LocationDisabledEnabled      bool `gorm:"column:location_disabled_enabled;not null" json:"locationDisabledEnabled"`
	LocationDisabledGraceSeconds int  `gorm:"column:location_disabled_grace_seconds;not null" json:"locationDisabledGraceSeconds"`
	// NoSignalEnabled gates the primary triggers, NO_HEARTBEAT and
	// HEARTBEAT_TIMEOUT. With it off only GPS_DISABLED and OUT_OF_BRANCH
	// can start a countdown, so a silent device is never checked out.
	NoSignalEnabled              bool `gorm:"column:no_signal_enabled;not null" json:"noSignalEnabled"`
	NoSignalGraceSeconds         int  `gorm:"column:no_signal_grace_seconds;not null" json:"noSignalGraceSeconds"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (AutoCheckoutSettings) TableName() string {
	return "auto_checkout_settings"
}

func (s AutoCheckoutSettings) GracePeriod() time.Duration {
	return time.Duration(s.AutoCheckoutAfterSeconds) * time.Second
}

// Enforced reports whether the sweep should visit this company at all.
func (s AutoCheckoutSettings) Enforced() bool {
	return s.Enabled && s.AutoCheckoutAfterSeconds > 0
}

// CountdownFor returns how long a countdown armed for reason runs before the
// forced checkout. Trigger specific windows fall back to the grace period.
func (s AutoCheckoutSettings) CountdownFor(reason CheckoutReason) time.Duration {
	seconds := 0
	switch reason {
	case CheckoutReasonNoHeartbeat, CheckoutReasonHeartbeatTimeout:
		seconds = s.NoSignalGraceSeconds
	case CheckoutReasonGPSDisabled:
		seconds = s.LocationDisabledGraceSeconds
	}
	if seconds <= 0 {
		return s.GracePeriod()
	}
	return time.Duration(seconds) * time.Second
}

type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "PENDING"
	PendingStatusDone      PendingStatus = "DONE"
	PendingStatusCancelled PendingStatus = "CANCELLED"
)

const (
	ResolutionConditionsResolved    = "CONDITIONS_RESOLVED"
	ResolutionCheckoutExecuted      = "CHECKOUT_EXECUTED"
	ResolutionSessionAlreadyClosed  = "SESSION_ALREADY_CLOSED"
	ResolutionSessionClosedManually = "SESSION_CLOSED_MANUALLY"
)

// AutoCheckoutPending is a countdown towards a forced checkout.
type AutoCheckoutPending struct {
	ID              string         `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	AttendanceLogID int64          `gorm:"column:attendance_log_id;not null;uniqueIndex:idx_auto_checkout_pending_active,priority:1" json:"attendanceLogId"`
	EmployeeID      int64          `gorm:"column:employee_id;not null" json:"employeeId"`
	CompanyID       int64          `gorm:"column:company_id;not null" json:"companyId"`
	Reason          CheckoutReason `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	Status          PendingStatus  `gorm:"column:status;type:varchar(16);not null" json:"status"`
	DeadlineAt      time.Time      `gorm:"column:deadline_at;not null" json:"deadlineAt"`
	ResolvedAt      *time.Time     `gorm:"column:resolved_at" json:"resolvedAt"`
	ResolutionNote  *string        `gorm:"column:resolution_note;type:varchar(64)" json:"resolutionNote"`

	// Active is true while PENDING and NULL once resolved; see AttendanceLog.OpenMarker.
	Active *bool `gorm:"column:active;uniqueIndex:idx_auto_checkout_pending_active,priority:2" json:"-"`

	// Snapshot holds the heartbeat that armed the countdown.
	Snapshot datatypes.JSON `gorm:"column:snapshot" json:"snapshot"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;<-:create" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (AutoCheckoutPending) TableName() string {
	return "auto_checkout_pending"
}
