package model

// Employee and Branch are owned by the HR side of the platform; attendance only reads them.

type Employee struct {
	ID             int64  `gorm:"column:id;primaryKey" json:"id"`
	CompanyID      int64  `gorm:"column:company_id;not null" json:"companyId"`
	BranchID       *int64 `gorm:"column:branch_id" json:"branchId"`
	FullName       string `gorm:"column:full_name;type:varchar(255)" json:"fullName"`
	Active         bool   `gorm:"column:active;not null" json:"active"`
	ScheduledStart string `gorm:"column:scheduled_start_time;type:varchar(8)" json:"scheduledStart"`
	ScheduledEnd   string `gorm:"column:scheduled_end_time;type:varchar(8)" json:"scheduledEnd"`
	GraceMinutes   int    `gorm:"column:grace_minutes;not null" json:"graceMinutes"`
}

func (Employee) TableName() string {
	return "employees"
}

type Branch struct {
	ID           int64   `gorm:"column:id;primaryKey" json:"id"`
	CompanyID    int64   `gorm:"column:company_id;not null" json:"companyId"`
	Name         string  `gorm:"column:name;type:varchar(255)" json:"name"`
	Latitude     float64 `gorm:"column:latitude;not null" json:"latitude"`
	Longitude    float64 `gorm:"column:longitude;not null" json:"longitude"`
	RadiusMeters float64 `gorm:"column:radius_meters;not null" json:"radiusMeters"`
}

func (Branch) TableName() string {
	return "branches"
}
