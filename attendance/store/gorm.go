package store

import (
	"context"
	"errors"
	"time"

	"axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/attendance/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists attendance data in the tenant schema the *gorm.DB is bound to.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Models lists the tables this store reads and writes.
func Models() []any {
	return []any{
		&model.Employee{},
		&model.Branch{},
		&model.AttendanceLog{},
		&model.Heartbeat{},
		&model.AutoCheckoutSettings{},
		&model.AutoCheckoutPending{},
	}
}

// Provisioned reports whether the schema carries the attendance tables. Tenants
// that never enabled attendance are skipped by the sweep.
func Provisioned(db *gorm.DB) bool {
	migrator := db.Migrator()
	return migrator.HasTable(&model.AttendanceLog{}) && migrator.HasTable(&model.AutoCheckoutSettings{})
}

func (s *GormStore) FindEmployee(ctx context.Context, employeeID int64) (*model.Employee, error) {
	var emp model.Employee
	err := s.db.WithContext(ctx).Where("id = ?", employeeID).Take(&emp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (s *GormStore) FindBranch(ctx context.Context, branchID int64) (*model.Branch, error) {
	var branch model.Branch
	err := s.db.WithContext(ctx).Where("id = ?", branchID).Take(&branch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *GormStore) CreateSession(ctx context.Context, session *model.AttendanceLog) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(session)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrSessionAlreadyOpen
	}
	return nil
}

func (s *GormStore) FindOpenSession(ctx context.Context, employeeID int64) (*model.AttendanceLog, error) {
	var session model.AttendanceLog
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND check_out_time IS NULL", employeeID).
		Order("check_in_time DESC").
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormStore) ListOpenSessions(ctx context.Context, companyID int64) ([]model.AttendanceLog, error) {
	var sessions []model.AttendanceLog
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND check_out_time IS NULL", companyID).
		Order("id").
		Find(&sessions).Error
	return sessions, err
}

func (s *GormStore) CloseSession(ctx context.Context, closing core.SessionClose) (bool, error) {
	closed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := closeOpenSession(tx, closing)
		if err != nil || !ok {
			return err
		}
		closed = true

		if err := tx.Model(&model.AutoCheckoutPending{}).
			Where("attendance_log_id = ? AND status = ?", closing.SessionID, model.PendingStatusPending).
			Updates(resolvedColumns(model.PendingStatusCancelled, model.ResolutionSessionClosedManually, closing.At)).Error; err != nil {
			return err
		}
		return deleteHeartbeat(tx, closing)
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}

func (s *GormStore) TouchSession(ctx context.Context, sessionID int64, at time.Time, located bool) error {
	columns := map[string]any{"last_heartbeat_at": at}
	if located {
		columns["last_location_at"] = at
	}
	return s.db.WithContext(ctx).
		Model(&model.AttendanceLog{}).
		Where("id = ? AND check_out_time IS NULL", sessionID).
		Updates(columns).Error
}

func (s *GormStore) LatestHeartbeat(ctx context.Context, employeeID int64) (*model.Heartbeat, error) {
	var heartbeat model.Heartbeat
	err := s.db.WithContext(ctx).Where("employee_id = ?", employeeID).Take(&heartbeat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &heartbeat, nil
}

// UpsertHeartbeat locks the session row like CreatePending, so a heartbeat
// cannot outlive a close that deletes it.
func (s *GormStore) UpsertHeartbeat(ctx context.Context, heartbeat *model.Heartbeat) (bool, error) {
	stored := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []model.AttendanceLog
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ? AND check_out_time IS NULL", heartbeat.AttendanceLogID).
			Find(&open).Error
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return nil
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee_id"}},
			UpdateAll: true,
		}).Create(heartbeat).Error
		if err != nil {
			return err
		}
		stored = true
		return nil
	})
	return stored, err
}

func (s *GormStore) FindPending(ctx context.Context, sessionID int64) (*model.AutoCheckoutPending, error) {
	var pending model.AutoCheckoutPending
	err := s.db.WithContext(ctx).
		Where("attendance_log_id = ? AND status = ?", sessionID, model.PendingStatusPending).
		Take(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// CreatePending arms a countdown only while the session is still open; the row
// lock orders it against a concurrent close of the same session.
func (s *GormStore) CreatePending(ctx context.Context, pending *model.AutoCheckoutPending) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []model.AttendanceLog
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ? AND check_out_time IS NULL", pending.AttendanceLogID).
			Find(&open).Error
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return nil
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(pending)
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected > 0
		return nil
	})
	return created, err
}

func (s *GormStore) ResolvePending(ctx context.Context, resolution core.PendingResolution) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.AutoCheckoutPending{}).
		Where("id = ? AND status = ?", resolution.PendingID, model.PendingStatusPending).
		Updates(resolvedColumns(resolution.Status, resolution.Note, resolution.At))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) ForceCheckout(ctx context.Context, forced core.ForcedCheckout) (core.ForceOutcome, error) {
	var outcome core.ForceOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&model.AutoCheckoutPending{}).
			Where("id = ? AND status = ?", forced.PendingID, model.PendingStatusPending).
			Updates(resolvedColumns(model.PendingStatusDone, model.ResolutionCheckoutExecuted, forced.Close.At))
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			outcome = core.ForcePendingResolved
			return nil
		}

		closed, err := closeOpenSession(tx, forced.Close)
		if err != nil {
			return err
		}
		if !closed {
			outcome = core.ForceSessionAlreadyClosed
			return tx.Model(&model.AutoCheckoutPending{}).
				Where("id = ?", forced.PendingID).
				Update("resolution_note", model.ResolutionSessionAlreadyClosed).Error
		}

		outcome = core.ForceExecuted
		return deleteHeartbeat(tx, forced.Close)
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

func (s *GormStore) ListSettings(ctx context.Context) ([]model.AutoCheckoutSettings, error) {
	var settings []model.AutoCheckoutSettings
	err := s.db.WithContext(ctx).Order("company_id").Find(&settings).Error
	return settings, err
}

// closeOpenSession is the conditional terminal write; it affects no row once the session is closed.
func closeOpenSession(tx *gorm.DB, closing core.SessionClose) (bool, error) {
	columns := map[string]any{
		"check_out_time":       closing.At,
		"check_out_local_time": closing.LocalTime,
		"check_out_latitude":   closing.Latitude,
		"check_out_longitude":  closing.Longitude,
		"check_out_accuracy":   closing.Accuracy,
		"total_working_hours":  closing.WorkingHours,
		"early_leave_minutes":  closing.EarlyLeaveMinutes,
		"checkout_reason":      closing.Reason,
		"open_marker":          nil,
	}
	result := tx.Model(&model.AttendanceLog{}).
		Where("id = ? AND check_out_time IS NULL", closing.SessionID).
		Updates(columns)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func deleteHeartbeat(tx *gorm.DB, closing core.SessionClose) error {
	return tx.Where("employee_id = ? AND attendance_log_id = ?", closing.EmployeeID, closing.SessionID).
		Delete(&model.Heartbeat{}).Error
}

func resolvedColumns(status model.PendingStatus, note string, at time.Time) map[string]any {
	return map[string]any{
		"status":          status,
		"active":          nil,
		"resolved_at":     at,
		"resolution_note": note,
	}
}
