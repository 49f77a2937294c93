package model

import "time"

// Heartbeat is the latest device signal of an employee. There is one row per
// employee, overwritten in place and removed once the session closes.
type Heartbeat struct {
	EmployeeID      int64     `gorm:"column:employee_id;primaryKey;autoIncrement:false" json:"employeeId"`
	CompanyID       int64     `gorm:"column:company_id;not null" json:"companyId"`
	AttendanceLogID int64     `gorm:"column:attendance_log_id;not null;index" json:"attendanceLogId"`
	LastSeen        time.Time `gorm:"column:last_seen;not null" json:"lastSeen"`
	GPSOK           bool      `gorm:"column:gps_ok;not null" json:"gpsOk"`
	InBranch        bool      `gorm:"column:in_branch;not null" json:"inBranch"`
	Reason          string    `gorm:"column:reason;type:varchar(32)" json:"reason"`

	Latitude       *float64 `gorm:"column:latitude" json:"latitude"`
	Longitude      *float64 `gorm:"column:longitude" json:"longitude"`
	Accuracy       *float64 `gorm:"column:accuracy" json:"accuracy"`
	DistanceMeters *float64 `gorm:"column:distance_meters" json:"distanceMeters"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Heartbeat) TableName() string {
	return "employee_heartbeats"
}
