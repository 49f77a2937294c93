package core_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/attendance/model"
	"axiapac.com/attendance/attendance/store"
	"axiapac.com/attendance/utils"
	"github.com/sirupsen/logrus"
)

const (
	companyID  int64 = 1
	branchID   int64 = 10
	employeeID int64 = 100
)

var (
	branchLat = 24.7136
	branchLng = 46.6753
	startTime = time.Date(2026, 5, 3, 5, 0, 0, 0, time.UTC)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type stubResolver struct {
	zone string
	err  error
}

func (r stubResolver) Resolve(ctx context.Context, latitude, longitude float64, hint string) (string, error) {
	return r.zone, r.err
}

type fixture struct {
	store    *store.MemoryStore
	ctrl     *core.Controller
	clock    *clock
	settings model.AutoCheckoutSettings
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	st.AddBranch(model.Branch{ID: branchID, CompanyID: companyID, Name: "HQ", Latitude: branchLat, Longitude: branchLng, RadiusMeters: 50})
	st.AddEmployee(model.Employee{
		ID:             employeeID,
		CompanyID:      companyID,
		BranchID:       utils.Ptr(branchID),
		FullName:       "Noura Saleh",
		Active:         true,
		ScheduledStart: "08:00:00",
		ScheduledEnd:   "17:00:00",
		GraceMinutes:   10,
	})

	settings := model.AutoCheckoutSettings{
		CompanyID:                companyID,
		Enabled:                  true,
		AutoCheckoutAfterSeconds: 1800,
		LocationDisabledEnabled:  true,
		NoSignalEnabled:          true,
	}
	st.PutSettings(settings)

	clk := &clock{now: startTime}
	ctrl := core.NewController(st, st, stubResolver{zone: "Asia/Riyadh"})
	ctrl.Now = clk.Now
	ctrl.Logger = quietLogger()

	return &fixture{store: st, ctrl: ctrl, clock: clk, settings: settings}
}

func (f *fixture) enforcer() *core.Enforcer {
	enforcer := core.NewEnforcer(f.store)
	enforcer.Logger = quietLogger()
	return enforcer
}

func (f *fixture) addEmployee(id int64) {
	f.store.AddEmployee(model.Employee{ID: id, CompanyID: companyID, BranchID: utils.Ptr(branchID), Active: true})
}

func atBranch() core.LocationSample {
	return core.LocationSample{Latitude: utils.Ptr(branchLat), Longitude: utils.Ptr(branchLng), Accuracy: utils.Ptr(12.0)}
}

func farAway() core.LocationSample {
	return core.LocationSample{Latitude: utils.Ptr(branchLat + 0.01), Longitude: utils.Ptr(branchLng), Accuracy: utils.Ptr(12.0)}
}

func (f *fixture) checkIn(t *testing.T, employee int64) *core.SessionSnapshot {
	t.Helper()
	snapshot, err := f.ctrl.CheckIn(context.Background(), core.CheckInRequest{
		EmployeeID: employee,
		CompanyID:  companyID,
		Location:   atBranch(),
	})
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	return snapshot
}

func failureCode(err error) core.Code {
	if f, ok := core.AsFailure(err); ok {
		return f.Code
	}
	return ""
}

var errStorage = errors.New("connection reset by peer")
