package store_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/attendance/model"
	"axiapac.com/attendance/attendance/store"
	"axiapac.com/attendance/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var checkInAt = time.Date(2026, 5, 3, 5, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(store.Models()...))
	return db
}

func openSession(t *testing.T, s *store.GormStore, employeeID int64) *model.AttendanceLog {
	t.Helper()
	session := &model.AttendanceLog{
		EmployeeID:     employeeID,
		CompanyID:      1,
		AttendanceType: model.AttendanceTypeNormal,
		CheckInTime:    checkInAt,
		Timezone:       "UTC",
		OpenMarker:     utils.Ptr(true),
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
	require.NotZero(t, session.ID)
	return session
}

func closingOf(session *model.AttendanceLog, at time.Time, reason model.CheckoutReason) core.SessionClose {
	return core.SessionClose{
		SessionID:    session.ID,
		EmployeeID:   session.EmployeeID,
		At:           at,
		WorkingHours: core.WorkingHours(session.CheckInTime, at),
		Reason:       reason,
	}
}

func pendingFor(session *model.AttendanceLog, id string) *model.AutoCheckoutPending {
	return &model.AutoCheckoutPending{
		ID:              id,
		AttendanceLogID: session.ID,
		EmployeeID:      session.EmployeeID,
		CompanyID:       session.CompanyID,
		Reason:          model.CheckoutReasonNoHeartbeat,
		Status:          model.PendingStatusPending,
		DeadlineAt:      checkInAt.Add(time.Hour),
		Active:          utils.Ptr(true),
	}
}

func upsertHeartbeat(t *testing.T, s *store.GormStore, heartbeat *model.Heartbeat) {
	t.Helper()
	stored, err := s.UpsertHeartbeat(context.Background(), heartbeat)
	require.NoError(t, err)
	require.True(t, stored)
}

func TestDirectoryLookups(t *testing.T) {
	db := newTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Employee{ID: 7, CompanyID: 1, BranchID: utils.Ptr(int64(3)), FullName: "Omar", Active: true}).Error)
	require.NoError(t, db.Create(&model.Branch{ID: 3, CompanyID: 1, Name: "Jeddah", Latitude: 21.54, Longitude: 39.17, RadiusMeters: 100}).Error)

	emp, err := s.FindEmployee(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Omar", emp.FullName)

	emp, err = s.FindEmployee(ctx, 8)
	require.NoError(t, err)
	assert.Nil(t, emp)

	branch, err := s.FindBranch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 100.0, branch.RadiusMeters)

	branch, err = s.FindBranch(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, branch)
}

func TestOneOpenSessionPerEmployee(t *testing.T) {
	s := store.NewGormStore(newTestDB(t))
	ctx := context.Background()
	first := openSession(t, s, 1)

	err := s.CreateSession(ctx, &model.AttendanceLog{EmployeeID: 1, CompanyID: 1, CheckInTime: checkInAt, OpenMarker: utils.Ptr(true)})
	assert.ErrorIs(t, err, core.ErrSessionAlreadyOpen)

	open, err := s.FindOpenSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	closed, err := s.CloseSession(ctx, closingOf(first, checkInAt.Add(time.Hour), model.CheckoutReasonManual))
	require.NoError(t, err)
	require.True(t, closed)

	// closed sessions release the marker
	second := openSession(t, s, 1)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentCreateSession(t *testing.T) {
	s := store.NewGormStore(newTestDB(t))

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateSession(context.Background(), &model.AttendanceLog{EmployeeID: 9, CompanyID: 1, CheckInTime: checkInAt, OpenMarker: utils.Ptr(true)})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestCloseSessionIsConditional(t *testing.T) {
	db := newTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()
	session := openSession(t, s, 1)

	upsertHeartbeat(t, s, &model.Heartbeat{EmployeeID: 1, CompanyID: 1, AttendanceLogID: session.ID, LastSeen: checkInAt, GPSOK: true, InBranch: true})
	created, err := s.CreatePending(ctx, pendingFor(session, "p-1"))
	require.NoError(t, err)
	require.True(t, created)

	closing := closingOf(session, checkInAt.Add(90*time.Minute), model.CheckoutReasonManual)
	closing.EarlyLeaveMinutes = utils.Ptr(15)
	closing.LocalTime = utils.Ptr("2026-05-03 06:30:00")

	closed, err := s.CloseSession(ctx, closing)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = s.CloseSession(ctx, closingOf(session, checkInAt.Add(2*time.Hour), model.CheckoutReasonManual))
	require.NoError(t, err)
	assert.False(t, closed)

	var stored model.AttendanceLog
	require.NoError(t, db.First(&stored, session.ID).Error)
	assert.True(t, stored.CheckOutTime.Equal(checkInAt.Add(90*time.Minute)))
	assert.True(t, stored.TotalWorkingHours.Decimal.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 15, *stored.EarlyLeaveMinutes)
	assert.Equal(t, model.CheckoutReasonManual, *stored.CheckoutReason)
	assert.Nil(t, stored.OpenMarker)

	var pending model.AutoCheckoutPending
	require.NoError(t, db.First(&pending, "id = ?", "p-1").Error)
	assert.Equal(t, model.PendingStatusCancelled, pending.Status)
	assert.Equal(t, model.ResolutionSessionClosedManually, *pending.ResolutionNote)
	assert.Nil(t, pending.Active)

	heartbeat, err := s.LatestHeartbeat(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, heartbeat)
}

func TestHeartbeatUpsertAndTouch(t *testing.T) {
	db := newTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()
	session := openSession(t, s, 1)

	upsertHeartbeat(t, s, &model.Heartbeat{EmployeeID: 1, CompanyID: 1, AttendanceLogID: session.ID, LastSeen: checkInAt, GPSOK: true, InBranch: true})
	upsertHeartbeat(t, s, &model.Heartbeat{EmployeeID: 1, CompanyID: 1, AttendanceLogID: session.ID, LastSeen: checkInAt.Add(time.Minute), GPSOK: false, InBranch: false, Reason: "LOCATION_MISSING"})

	heartbeat, err := s.LatestHeartbeat(ctx, 1)
	require.NoError(t, err)
	assert.True(t, heartbeat.LastSeen.Equal(checkInAt.Add(time.Minute)))
	assert.False(t, heartbeat.GPSOK)
	assert.Equal(t, "LOCATION_MISSING", heartbeat.Reason)

	var count int64
	require.NoError(t, db.Model(&model.Heartbeat{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, s.TouchSession(ctx, session.ID, checkInAt.Add(time.Minute), false))
	var stored model.AttendanceLog
	require.NoError(t, db.First(&stored, session.ID).Error)
	assert.True(t, stored.LastHeartbeatAt.Equal(checkInAt.Add(time.Minute)))
	assert.Nil(t, stored.LastLocationAt)
}

func TestHeartbeatRequiresOpenSession(t *testing.T) {
	db := newTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()
	session := openSession(t, s, 1)

	closed, err := s.CloseSession(ctx, closingOf(session, checkInAt.Add(time.Hour), model.CheckoutReasonManual))
	require.NoError(t, err)
	require.True(t, closed)

	// a heartbeat evaluated before the close lands after it
	stored, err := s.UpsertHeartbeat(ctx, &model.Heartbeat{EmployeeID: 1, CompanyID: 1, AttendanceLogID: session.ID, LastSeen: checkInAt.Add(time.Hour), GPSOK: true, InBranch: true})
	require.NoError(t, err)
	assert.False(t, stored)

	heartbeat, err := s.LatestHeartbeat(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, heartbeat)
}

func TestPendingLifecycle(t *testing.T) {
	s := store.NewGormStore(newTestDB(t))
	ctx := context.Background()
	session := openSession(t, s, 1)

	created, err := s.CreatePending(ctx, pendingFor(session, "p-1"))
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.CreatePending(ctx, pendingFor(session, "p-2"))
	require.NoError(t, err)
	assert.False(t, created, "only one countdown may be pending per session")

	found, err := s.FindPending(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "p-1", found.ID)

	resolved, err := s.ResolvePending(ctx, core.PendingResolution{PendingID: "p-1", Status: model.PendingStatusCancelled, Note: model.ResolutionConditionsResolved, At: checkInAt.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, resolved)

	resolved, err = s.ResolvePending(ctx, core.PendingResolution{PendingID: "p-1", Status: model.PendingStatusCancelled, Note: model.ResolutionConditionsResolved, At: checkInAt.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.False(t, resolved)

	found, err = s.FindPending(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	// cancelled countdowns do not block a new one
	created, err = s.CreatePending(ctx, pendingFor(session, "p-3"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreatePendingRequiresOpenSession(t *testing.T) {
	s := store.NewGormStore(newTestDB(t))
	ctx := context.Background()
	session := openSession(t, s, 1)

	_, err := s.CloseSession(ctx, closingOf(session, checkInAt.Add(time.Hour), model.CheckoutReasonManual))
	require.NoError(t, err)

	created, err := s.CreatePending(ctx, pendingFor(session, "p-1"))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestForceCheckout(t *testing.T) {
	t.Run("executed", func(t *testing.T) {
		db := newTestDB(t)
		s := store.NewGormStore(db)
		ctx := context.Background()
		session := openSession(t, s, 1)
		_, err := s.CreatePending(ctx, pendingFor(session, "p-1"))
		require.NoError(t, err)

		outcome, err := s.ForceCheckout(ctx, core.ForcedCheckout{PendingID: "p-1", Close: closingOf(session, checkInAt.Add(time.Hour), model.CheckoutReasonNoHeartbeat)})
		require.NoError(t, err)
		assert.Equal(t, core.ForceExecuted, outcome)

		var stored model.AttendanceLog
		require.NoError(t, db.First(&stored, session.ID).Error)
		assert.Equal(t, model.CheckoutReasonNoHeartbeat, *stored.CheckoutReason)

		var pending model.AutoCheckoutPending
		require.NoError(t, db.First(&pending, "id = ?", "p-1").Error)
		assert.Equal(t, model.PendingStatusDone, pending.Status)
		assert.Equal(t, model.ResolutionCheckoutExecuted, *pending.ResolutionNote)

		outcome, err = s.ForceCheckout(ctx, core.ForcedCheckout{PendingID: "p-1", Close: closingOf(session, checkInAt.Add(2*time.Hour), model.CheckoutReasonNoHeartbeat)})
		require.NoError(t, err)
		assert.Equal(t, core.ForcePendingResolved, outcome)
	})

	t.Run("session closed underneath", func(t *testing.T) {
		db := newTestDB(t)
		s := store.NewGormStore(db)
		ctx := context.Background()
		session := openSession(t, s, 1)
		_, err := s.CreatePending(ctx, pendingFor(session, "p-1"))
		require.NoError(t, err)

		// close the row directly so the countdown survives
		require.NoError(t, db.Model(&model.AttendanceLog{}).Where("id = ?", session.ID).
			Updates(map[string]any{"check_out_time": checkInAt.Add(time.Hour), "open_marker": nil, "checkout_reason": model.CheckoutReasonManual}).Error)

		outcome, err := s.ForceCheckout(ctx, core.ForcedCheckout{PendingID: "p-1", Close: closingOf(session, checkInAt.Add(2*time.Hour), model.CheckoutReasonNoHeartbeat)})
		require.NoError(t, err)
		assert.Equal(t, core.ForceSessionAlreadyClosed, outcome)

		var stored model.AttendanceLog
		require.NoError(t, db.First(&stored, session.ID).Error)
		assert.Equal(t, model.CheckoutReasonManual, *stored.CheckoutReason)

		var pending model.AutoCheckoutPending
		require.NoError(t, db.First(&pending, "id = ?", "p-1").Error)
		assert.Equal(t, model.PendingStatusDone, pending.Status)
		assert.Equal(t, model.ResolutionSessionAlreadyClosed, *pending.ResolutionNote)
	})
}

func TestListOpenSessionsAndSettings(t *testing.T) {
	db := newTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()

	a := openSession(t, s, 1)
	b := openSession(t, s, 2)
	_, err := s.CloseSession(ctx, closingOf(b, checkInAt.Add(time.Hour), model.CheckoutReasonManual))
	require.NoError(t, err)

	sessions, err := s.ListOpenSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, a.ID, sessions[0].ID)

	require.NoError(t, db.Create(&model.AutoCheckoutSettings{CompanyID: 2, Enabled: true, AutoCheckoutAfterSeconds: 600}).Error)
	require.NoError(t, db.Create(&model.AutoCheckoutSettings{CompanyID: 1, Enabled: false}).Error)

	settings, err := s.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, int64(1), settings[0].CompanyID)
	assert.True(t, settings[1].Enforced())
}

func TestProvisioned(t *testing.T) {
	assert.True(t, store.Provisioned(newTestDB(t)))

	empty, err := gorm.Open(sqlite.Open("file:provisioned_empty?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	assert.False(t, store.Provisioned(empty))
}
