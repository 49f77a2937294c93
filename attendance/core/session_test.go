package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/attendance/model"
	"axiapac.com/attendance/attendance/store"
	"axiapac.com/attendance/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snapshot, err := f.ctrl.CheckIn(ctx, core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	require.NoError(t, err)

	assert.NotZero(t, snapshot.ID)
	assert.True(t, snapshot.IsOpen())
	assert.Equal(t, model.AttendanceTypeNormal, snapshot.AttendanceType)
	assert.Equal(t, utils.Ptr(branchID), snapshot.BranchID)
	assert.Equal(t, startTime, snapshot.CheckInTime)
	assert.Equal(t, "Asia/Riyadh", snapshot.Timezone)
	assert.Equal(t, "2026-05-03 08:00:00", *snapshot.CheckInLocalTime)
	require.NotNil(t, snapshot.Geofence)
	assert.Equal(t, core.ConfirmedInside, snapshot.Geofence.Status)

	open, err := f.store.FindOpenSession(ctx, employeeID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, snapshot.ID, open.ID)
}

func TestCheckInRejections(t *testing.T) {
	now := startTime
	tests := []struct {
		name     string
		employee int64
		company  int64
		location core.LocationSample
		want     core.Code
	}{
		{"unknown employee", 999, companyID, atBranch(), core.CodeEmployeeNotFound},
		{"employee of another company", employeeID, 2, atBranch(), core.CodeEmployeeNotFound},
		{"outside the geofence", employeeID, companyID, farAway(), core.CodeOutsideGeofence},
		{"missing location", employeeID, companyID, core.LocationSample{}, core.CodeLocationMissing},
		{
			name:     "low accuracy",
			employee: employeeID,
			company:  companyID,
			location: core.LocationSample{Latitude: utils.Ptr(branchLat), Longitude: utils.Ptr(branchLng), Accuracy: utils.Ptr(800.0)},
			want:     core.CodeLowAccuracy,
		},
		{
			name:     "outdated location",
			employee: employeeID,
			company:  companyID,
			location: core.LocationSample{Latitude: utils.Ptr(branchLat), Longitude: utils.Ptr(branchLng), Timestamp: utils.Ptr(now.Add(-2 * time.Minute))},
			want:     core.CodeLocationOutdated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: tt.employee, CompanyID: tt.company, Location: tt.location})
			require.Error(t, err)
			assert.Equal(t, tt.want, failureCode(err))

			open, err := f.store.FindOpenSession(context.Background(), tt.employee)
			require.NoError(t, err)
			assert.Nil(t, open, "a rejected check-in must not create a session")
		})
	}
}

func TestCheckInOutsideEchoesDistance(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: farAway()})
	failure, ok := core.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, 50.0, failure.Details["radiusMeters"])
	assert.InDelta(t, 1112, failure.Details["distanceMeters"], 5)
	assert.Equal(t, "You are outside the branch area", failure.Message)
}

func TestCheckInInactiveEmployee(t *testing.T) {
	f := newFixture(t)
	f.store.AddEmployee(model.Employee{ID: 200, CompanyID: companyID, BranchID: utils.Ptr(branchID), Active: false})

	_, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: 200, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeEmployeeNotFound, failureCode(err))
}

func TestCheckInWithoutBranch(t *testing.T) {
	f := newFixture(t)
	f.store.AddEmployee(model.Employee{ID: 300, CompanyID: companyID, Active: true})
	ctx := context.Background()

	_, err := f.ctrl.CheckIn(ctx, core.CheckInRequest{EmployeeID: 300, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeBranchNotFound, failureCode(err))

	snapshot, err := f.ctrl.CheckIn(ctx, core.CheckInRequest{EmployeeID: 300, CompanyID: companyID, Location: farAway(), FreeTask: true})
	require.NoError(t, err)
	assert.Equal(t, model.AttendanceTypeFree, snapshot.AttendanceType)
	assert.Nil(t, snapshot.BranchID)
	assert.Nil(t, snapshot.Geofence)
}

func TestCheckInBranchMissingFromDirectory(t *testing.T) {
	f := newFixture(t)
	f.store.AddEmployee(model.Employee{ID: 301, CompanyID: companyID, BranchID: utils.Ptr(int64(77)), Active: true})

	_, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: 301, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeBranchNotFound, failureCode(err))
}

func TestCheckInTimezoneFallsBackToUTC(t *testing.T) {
	f := newFixture(t)
	ctrl := core.NewController(f.store, f.store, stubResolver{err: errors.New("lookup timed out")})
	ctrl.Now = f.clock.Now
	ctrl.Logger = quietLogger()

	snapshot, err := ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch(), TimezoneHint: "Asia/Riyadh"})
	require.NoError(t, err)
	assert.Equal(t, "UTC", snapshot.Timezone)
	assert.Equal(t, "2026-05-03 05:00:00", *snapshot.CheckInLocalTime)
}

func TestCheckInUsesHintWithoutResolver(t *testing.T) {
	f := newFixture(t)
	ctrl := core.NewController(f.store, f.store, nil)
	ctrl.Now = f.clock.Now
	ctrl.Logger = quietLogger()

	snapshot, err := ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch(), TimezoneHint: "Not/AZone"})
	require.NoError(t, err)
	assert.Equal(t, "UTC", snapshot.Timezone)
}

func TestCheckInTwice(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, employeeID)

	_, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeAlreadyCheckedIn, failureCode(err))
}

func TestConcurrentCheckInsOpenOneSession(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, rejections := 0, 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if failureCode(err) == core.CodeAlreadyCheckedIn {
				rejections++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 24, rejections)
}

func TestCheckInStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Fail = errStorage

	_, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeServerError, failureCode(err))
	assert.ErrorIs(t, err, errStorage)
}

func TestCheckOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.checkIn(t, employeeID)

	// 13:00 UTC is 16:00 in Riyadh; the shift ends at 17:00 with 10 minutes grace
	f.clock.Set(startTime.Add(8 * time.Hour))
	snapshot, err := f.ctrl.CheckOut(ctx, core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	require.NoError(t, err)

	assert.Equal(t, session.ID, snapshot.ID)
	assert.False(t, snapshot.IsOpen())
	assert.Equal(t, model.CheckoutReasonManual, *snapshot.CheckoutReason)
	assert.Equal(t, "8", snapshot.TotalWorkingHours.Decimal.String())
	assert.Equal(t, 50, *snapshot.EarlyLeaveMinutes)
	assert.Equal(t, "2026-05-03 16:00:00", *snapshot.CheckOutLocalTime)

	stored, ok := f.store.Session(session.ID)
	require.True(t, ok)
	assert.Equal(t, startTime.Add(8*time.Hour), *stored.CheckOutTime)
	assert.Nil(t, stored.OpenMarker)

	_, err = f.ctrl.CheckOut(ctx, core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeNoCheckIn, failureCode(err))
}

func TestCheckOutWithoutSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.CheckOut(context.Background(), core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeNoCheckIn, failureCode(err))
}

func TestCheckOutAfterEmployeeDeactivated(t *testing.T) {
	f := newFixture(t)
	session := f.checkIn(t, employeeID)

	f.store.AddEmployee(model.Employee{
		ID:             employeeID,
		CompanyID:      companyID,
		BranchID:       utils.Ptr(branchID),
		Active:         false,
		ScheduledStart: "08:00:00",
		ScheduledEnd:   "17:00:00",
		GraceMinutes:   10,
	})

	f.clock.Set(startTime.Add(8 * time.Hour))
	snapshot, err := f.ctrl.CheckOut(context.Background(), core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	require.NoError(t, err)

	assert.Equal(t, session.ID, snapshot.ID)
	assert.Equal(t, model.CheckoutReasonManual, *snapshot.CheckoutReason)
	// no active employee means no schedule to leave early from
	assert.Equal(t, 0, *snapshot.EarlyLeaveMinutes)

	stored, _ := f.store.Session(session.ID)
	assert.False(t, stored.IsOpen())
}

func TestCheckOutAfterEmployeeRemoved(t *testing.T) {
	f := newFixture(t)
	session := f.checkIn(t, employeeID)
	f.store.RemoveEmployee(employeeID)

	snapshot, err := f.ctrl.CheckOut(context.Background(), core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	require.NoError(t, err)
	assert.Equal(t, session.ID, snapshot.ID)
	assert.Equal(t, 0, *snapshot.EarlyLeaveMinutes)
}

func TestCheckOutOutsideKeepsSessionOpen(t *testing.T) {
	f := newFixture(t)
	session := f.checkIn(t, employeeID)

	_, err := f.ctrl.CheckOut(context.Background(), core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: farAway()})
	failure, ok := core.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, core.CodeOutsideGeofence, failure.Code)
	assert.Contains(t, failure.Details, "distanceMeters")
	assert.Contains(t, failure.Details, "radiusMeters")

	stored, _ := f.store.Session(session.ID)
	assert.True(t, stored.IsOpen())
}

func TestCheckOutTrustsUnreliableLocation(t *testing.T) {
	samples := map[string]core.LocationSample{
		"missing":      {},
		"low accuracy": {Latitude: utils.Ptr(branchLat + 0.01), Longitude: utils.Ptr(branchLng), Accuracy: utils.Ptr(900.0)},
		"outdated":     {Latitude: utils.Ptr(branchLat + 0.01), Longitude: utils.Ptr(branchLng), Timestamp: utils.Ptr(startTime.Add(-time.Hour))},
	}

	for name, sample := range samples {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.checkIn(t, employeeID)

			snapshot, err := f.ctrl.CheckOut(context.Background(), core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: sample})
			require.NoError(t, err)
			assert.True(t, snapshot.Geofence.Valid)
			assert.Equal(t, core.SignalUnreliable, snapshot.Geofence.Status)
		})
	}
}

func TestCheckOutFreeTaskSkipsGeofence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.CheckIn(ctx, core.CheckInRequest{EmployeeID: employeeID, CompanyID: companyID, Location: farAway(), FreeTask: true})
	require.NoError(t, err)

	snapshot, err := f.ctrl.CheckOut(ctx, core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: farAway()})
	require.NoError(t, err)
	assert.Nil(t, snapshot.Geofence)
	assert.Equal(t, model.AttendanceTypeFree, snapshot.AttendanceType)
}

func TestCheckOutStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, employeeID)
	f.store.Fail = errStorage

	_, err := f.ctrl.CheckOut(context.Background(), core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	assert.Equal(t, core.CodeServerError, failureCode(err))
}

func TestRecordHeartbeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.RecordHeartbeat(ctx, core.HeartbeatRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch(), GPSEnabled: true})
	assert.Equal(t, core.CodeNoCheckIn, failureCode(err))

	session := f.checkIn(t, employeeID)
	f.clock.Set(startTime.Add(time.Minute))

	heartbeat, err := f.ctrl.RecordHeartbeat(ctx, core.HeartbeatRequest{EmployeeID: employeeID, CompanyID: companyID, Location: farAway(), GPSEnabled: true})
	require.NoError(t, err)
	assert.True(t, heartbeat.GPSOK)
	assert.False(t, heartbeat.InBranch)
	assert.Equal(t, string(core.ReasonOutside), heartbeat.Reason)
	assert.Equal(t, session.ID, heartbeat.AttendanceLogID)

	// an unusable fix keeps the previous in_branch value
	f.clock.Set(startTime.Add(2 * time.Minute))
	heartbeat, err = f.ctrl.RecordHeartbeat(ctx, core.HeartbeatRequest{EmployeeID: employeeID, CompanyID: companyID, GPSEnabled: true})
	require.NoError(t, err)
	assert.False(t, heartbeat.GPSOK)
	assert.False(t, heartbeat.InBranch)
	assert.Equal(t, string(core.ReasonLocationMissing), heartbeat.Reason)

	f.clock.Set(startTime.Add(3 * time.Minute))
	_, err = f.ctrl.RecordHeartbeat(ctx, core.HeartbeatRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch(), GPSEnabled: true})
	require.NoError(t, err)

	latest, err := f.store.LatestHeartbeat(ctx, employeeID)
	require.NoError(t, err)
	assert.True(t, latest.InBranch)
	assert.Equal(t, startTime.Add(3*time.Minute), latest.LastSeen)

	stored, _ := f.store.Session(session.ID)
	assert.Equal(t, startTime.Add(3*time.Minute), *stored.LastHeartbeatAt)
	assert.Equal(t, startTime.Add(3*time.Minute), *stored.LastLocationAt)
}

// closingStore checks the employee out between the heartbeat's session read
// and its write.
type closingStore struct {
	*store.MemoryStore
	closing core.SessionClose
}

func (s *closingStore) UpsertHeartbeat(ctx context.Context, heartbeat *model.Heartbeat) (bool, error) {
	if _, err := s.MemoryStore.CloseSession(ctx, s.closing); err != nil {
		return false, err
	}
	return s.MemoryStore.UpsertHeartbeat(ctx, heartbeat)
}

func TestRecordHeartbeatLosesRaceToCheckOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.checkIn(t, employeeID)

	closing := &closingStore{
		MemoryStore: f.store,
		closing: core.SessionClose{
			SessionID:  session.ID,
			EmployeeID: employeeID,
			At:         startTime.Add(time.Hour),
			Reason:     model.CheckoutReasonManual,
		},
	}
	ctrl := core.NewController(closing, f.store, stubResolver{zone: "Asia/Riyadh"})
	ctrl.Now = f.clock.Now
	ctrl.Logger = quietLogger()

	_, err := ctrl.RecordHeartbeat(ctx, core.HeartbeatRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch(), GPSEnabled: true})
	assert.Equal(t, core.CodeNoCheckIn, failureCode(err))

	heartbeat, err := f.store.LatestHeartbeat(ctx, employeeID)
	require.NoError(t, err)
	assert.Nil(t, heartbeat)
}

func TestOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.OpenSession(ctx, employeeID, companyID)
	assert.Equal(t, core.CodeNoCheckIn, failureCode(err))

	session := f.checkIn(t, employeeID)
	snapshot, err := f.ctrl.OpenSession(ctx, employeeID, companyID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, snapshot.ID)
}

func TestManualCheckOutCancelsCountdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.checkIn(t, employeeID)

	_, err := f.ctrl.RecordHeartbeat(ctx, core.HeartbeatRequest{EmployeeID: employeeID, CompanyID: companyID, Location: farAway(), GPSEnabled: true})
	require.NoError(t, err)

	result := f.enforcer().Sweep(ctx, startTime.Add(time.Minute), []model.AutoCheckoutSettings{f.settings})
	require.Equal(t, 1, result.CountdownsStarted)

	f.clock.Set(startTime.Add(2 * time.Minute))
	_, err = f.ctrl.CheckOut(ctx, core.CheckOutRequest{EmployeeID: employeeID, CompanyID: companyID, Location: atBranch()})
	require.NoError(t, err)

	pending := f.store.PendingFor(session.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, model.PendingStatusCancelled, pending[0].Status)
	assert.Equal(t, model.ResolutionSessionClosedManually, *pending[0].ResolutionNote)

	heartbeat, err := f.store.LatestHeartbeat(ctx, employeeID)
	require.NoError(t, err)
	assert.Nil(t, heartbeat)
}
