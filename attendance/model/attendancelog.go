package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttendanceType string

const (
	AttendanceTypeNormal AttendanceType = "NORMAL"
	AttendanceTypeFree   AttendanceType = "FREE"
)

type CheckoutReason string

const (
	CheckoutReasonManual           CheckoutReason = "MANUAL"
	CheckoutReasonNoHeartbeat      CheckoutReason = "NO_HEARTBEAT"
	CheckoutReasonHeartbeatTimeout CheckoutReason = "HEARTBEAT_TIMEOUT"
	CheckoutReasonGPSDisabled      CheckoutReason = "GPS_DISABLED"
	CheckoutReasonOutOfBranch      CheckoutReason = "OUT_OF_BRANCH"
)

// LocalTimeLayout is the wall-clock format of the *_local_time columns.
const LocalTimeLayout = "2006-01-02 15:04:05"

// AttendanceLog is one attendance session. It is open while CheckOutTime is nil.
type AttendanceLog struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EmployeeID     int64          `gorm:"column:employee_id;not null;index:idx_attendance_logs_employee;uniqueIndex:idx_attendance_logs_open,priority:1" json:"employeeId"`
	CompanyID      int64          `gorm:"column:company_id;not null;index:idx_attendance_logs_company" json:"companyId"`
	BranchID       *int64         `gorm:"column:branch_id" json:"branchId"`
	AttendanceType AttendanceType `gorm:"column:attendance_type;type:varchar(16);not null" json:"attendanceType"`

	CheckInTime       time.Time  `gorm:"column:check_in_time;not null" json:"checkInTime"`
	CheckInLocalTime  *string    `gorm:"column:check_in_local_time;type:varchar(19)" json:"checkInLocalTime"`
	CheckOutTime      *time.Time `gorm:"column:check_out_time" json:"checkOutTime"`
	CheckOutLocalTime *string    `gorm:"column:check_out_local_time;type:varchar(19)" json:"checkOutLocalTime"`
	Timezone          string     `gorm:"column:timezone;type:varchar(64);not null" json:"timezone"`
	LastHeartbeatAt   *time.Time `gorm:"column:last_heartbeat_at" json:"lastHeartbeatAt"`
	LastLocationAt    *time.Time `gorm:"column:last_location_at" json:"lastLocationAt"`

	CheckInLatitude   *float64 `gorm:"column:check_in_latitude" json:"checkInLatitude"`
	CheckInLongitude  *float64 `gorm:"column:check_in_longitude" json:"checkInLongitude"`
	CheckInAccuracy   *float64 `gorm:"column:check_in_accuracy" json:"checkInAccuracy"`
	CheckOutLatitude  *float64 `gorm:"column:check_out_latitude" json:"checkOutLatitude"`
	CheckOutLongitude *float64 `gorm:"column:check_out_longitude" json:"checkOutLongitude"`
	CheckOutAccuracy  *float64 `gorm:"column:check_out_accuracy" json:"checkOutAccuracy"`

	TotalWorkingHours decimal.NullDecimal `gorm:"column:total_working_hours;type:decimal(10,2)" json:"totalWorkingHours"`
	EarlyLeaveMinutes *int                `gorm:"column:early_leave_minutes" json:"earlyLeaveMinutes"`
	CheckoutReason    *CheckoutReason     `gorm:"column:checkout_reason;type:varchar(32)" json:"checkoutReason"`

	// OpenMarker is true while the session is open and NULL afterwards, so the
	// unique (employee_id, open_marker) index admits one open session per employee.
	OpenMarker *bool `gorm:"column:open_marker;uniqueIndex:idx_attendance_logs_open,priority:2" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;<-:create" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (AttendanceLog) TableName() string {
	return "attendance_logs"
}

func (l *AttendanceLog) IsOpen() bool {
	return l.CheckOutTime == nil
}

func (l *AttendanceLog) IsFreeTask() bool {
	return l.AttendanceType == AttendanceTypeFree
}
