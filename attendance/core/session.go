package core

import (
	"context"
	"errors"
	"time"

	"axiapac.com/attendance/attendance/model"
	"axiapac.com/attendance/infrastructure/logging"
	"axiapac.com/attendance/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const module = "attendance"

type CheckInRequest struct {
	EmployeeID   int64
	CompanyID    int64
	Location     LocationSample
	TimezoneHint string
	FreeTask     bool
}

type CheckOutRequest struct {
	EmployeeID   int64
	CompanyID    int64
	Location     LocationSample
	TimezoneHint string
}

type HeartbeatRequest struct {
	EmployeeID int64
	CompanyID  int64
	Location   LocationSample
	GPSEnabled bool
}

// SessionSnapshot is the session as returned to the caller, with the geofence
// verdict that admitted the operation when one was evaluated.
type SessionSnapshot struct {
	model.AttendanceLog
	Geofence *Verdict `json:"geofence,omitempty"`
}

// Controller runs the interactive side of the session lifecycle.
type Controller struct {
	sessions  SessionStore
	directory Directory
	timezones TimezoneResolver

	Now    func() time.Time
	Logger *logrus.Logger
}

func NewController(sessions SessionStore, directory Directory, timezones TimezoneResolver) *Controller {
	return &Controller{
		sessions:  sessions,
		directory: directory,
		timezones: timezones,
		Now:       time.Now,
		Logger:    logging.GetLogger(),
	}
}

func (c *Controller) CheckIn(ctx context.Context, req CheckInRequest) (snapshot *SessionSnapshot, err error) {
	defer func() { observeOperation("check_in", err) }()
	now := c.Now().UTC()

	emp, err := c.employee(ctx, "CheckIn", req.EmployeeID, req.CompanyID)
	if err != nil {
		return nil, err
	}

	open, err := c.sessions.FindOpenSession(ctx, emp.ID)
	if err != nil {
		return nil, c.serverError("CheckIn", "find open session", req, err)
	}
	if open != nil {
		return nil, Fail(CodeAlreadyCheckedIn, map[string]any{"sessionId": open.ID})
	}

	session := &model.AttendanceLog{
		EmployeeID:       emp.ID,
		CompanyID:        emp.CompanyID,
		AttendanceType:   model.AttendanceTypeNormal,
		CheckInTime:      now,
		CheckInLatitude:  req.Location.Latitude,
		CheckInLongitude: req.Location.Longitude,
		CheckInAccuracy:  req.Location.Accuracy,
		OpenMarker:       utils.Ptr(true),
	}

	var verdict *Verdict
	if req.FreeTask {
		session.AttendanceType = model.AttendanceTypeFree
	} else {
		branch, err := c.branch(ctx, "CheckIn", emp.BranchID)
		if err != nil {
			return nil, err
		}
		v := Validate(req.Location, GeofenceOf(branch), ValidateOptions{TrustLastKnown: false, Now: now})
		if !v.Valid {
			c.Logger.WithFields(logrus.Fields{
				"employee_id": emp.ID,
				"branch_id":   branch.ID,
				"reason":      v.Reason,
				"distance":    v.DistanceMeters,
			}).Info("check-in rejected by geofence")
			return nil, failureForVerdict(v)
		}
		verdict = &v
		session.BranchID = &branch.ID
	}

	zone, loc := c.resolveZone(ctx, req.Location, req.TimezoneHint)
	session.Timezone = zone
	session.CheckInLocalTime = utils.Ptr(LocalTime(now, loc))

	if err := c.sessions.CreateSession(ctx, session); err != nil {
		if errors.Is(err, ErrSessionAlreadyOpen) {
			return nil, Fail(CodeAlreadyCheckedIn, nil)
		}
		return nil, c.serverError("CheckIn", "create session", req, err)
	}

	c.Logger.WithFields(logrus.Fields{
		"company_id":      session.CompanyID,
		"employee_id":     session.EmployeeID,
		"session_id":      session.ID,
		"attendance_type": session.AttendanceType,
		"timezone":        zone,
	}).Info("checked in")

	return &SessionSnapshot{AttendanceLog: *session, Geofence: verdict}, nil
}

func (c *Controller) CheckOut(ctx context.Context, req CheckOutRequest) (snapshot *SessionSnapshot, err error) {
	defer func() { observeOperation("check_out", err) }()
	now := c.Now().UTC()

	session, err := c.openSession(ctx, "CheckOut", req.EmployeeID, req.CompanyID)
	if err != nil {
		return nil, err
	}

	// The open session is all a check-out needs. The employee only supplies
	// the schedule and the branch fallback, so a deactivated employee can
	// still close the day.
	emp, err := c.directory.FindEmployee(ctx, session.EmployeeID)
	if err != nil {
		return nil, c.serverError("CheckOut", "find employee", session.EmployeeID, err)
	}
	if emp != nil && (!emp.Active || emp.CompanyID != session.CompanyID) {
		emp = nil
	}

	var verdict *Verdict
	if !session.IsFreeTask() {
		branchID := session.BranchID
		if branchID == nil && emp != nil {
			branchID = emp.BranchID
		}
		branch, err := c.branch(ctx, "CheckOut", branchID)
		if err != nil {
			return nil, err
		}
		v := Validate(req.Location, GeofenceOf(branch), ValidateOptions{TrustLastKnown: true, Now: now})
		if v.Status == ConfirmedOutside {
			c.Logger.WithFields(logrus.Fields{
				"employee_id": session.EmployeeID,
				"session_id":  session.ID,
				"distance":    v.DistanceMeters,
				"radius":      v.RadiusMeters,
			}).Info("check-out rejected by geofence")
			return nil, failureForVerdict(v)
		}
		verdict = &v
	}

	hint := req.TimezoneHint
	if hint == "" {
		hint = session.Timezone
	}
	_, loc := c.resolveZone(ctx, req.Location, hint)

	closing := SessionClose{
		SessionID:         session.ID,
		EmployeeID:        session.EmployeeID,
		At:                now,
		LocalTime:         utils.Ptr(LocalTime(now, loc)),
		Latitude:          req.Location.Latitude,
		Longitude:         req.Location.Longitude,
		Accuracy:          req.Location.Accuracy,
		WorkingHours:      WorkingHours(session.CheckInTime, now),
		EarlyLeaveMinutes: utils.Ptr(EarlyLeaveMinutes(session.CheckInTime, now, ScheduleOf(emp), loc)),
		Reason:            model.CheckoutReasonManual,
	}

	closed, err := c.sessions.CloseSession(ctx, closing)
	if err != nil {
		return nil, c.serverError("CheckOut", "close session", req, err)
	}
	if !closed {
		return nil, Fail(CodeNoCheckIn, nil)
	}

	applyClose(session, closing)
	c.Logger.WithFields(logrus.Fields{
		"company_id":    session.CompanyID,
		"employee_id":   session.EmployeeID,
		"session_id":    session.ID,
		"working_hours": closing.WorkingHours.String(),
		"early_leave":   *closing.EarlyLeaveMinutes,
	}).Info("checked out")

	return &SessionSnapshot{AttendanceLog: *session, Geofence: verdict}, nil
}

// RecordHeartbeat stores the device signal the auto-checkout sweep evaluates.
func (c *Controller) RecordHeartbeat(ctx context.Context, req HeartbeatRequest) (heartbeat *model.Heartbeat, err error) {
	defer func() { observeOperation("heartbeat", err) }()
	now := c.Now().UTC()

	session, err := c.openSession(ctx, "RecordHeartbeat", req.EmployeeID, req.CompanyID)
	if err != nil {
		return nil, err
	}

	previous, err := c.sessions.LatestHeartbeat(ctx, req.EmployeeID)
	if err != nil {
		return nil, c.serverError("RecordHeartbeat", "latest heartbeat", req, err)
	}

	heartbeat = &model.Heartbeat{
		EmployeeID:      session.EmployeeID,
		CompanyID:       session.CompanyID,
		AttendanceLogID: session.ID,
		LastSeen:        now,
		GPSOK:           req.GPSEnabled && req.Location.HasPosition(),
		InBranch:        true,
		Latitude:        req.Location.Latitude,
		Longitude:       req.Location.Longitude,
		Accuracy:        req.Location.Accuracy,
	}

	if session.IsFreeTask() {
		heartbeat.Reason = string(model.AttendanceTypeFree)
	} else {
		branch, err := c.branch(ctx, "RecordHeartbeat", session.BranchID)
		if err != nil {
			return nil, err
		}
		v := Validate(req.Location, GeofenceOf(branch), ValidateOptions{TrustLastKnown: true, Now: now})
		heartbeat.Reason = string(v.Reason)
		switch v.Status {
		case ConfirmedInside:
			heartbeat.InBranch = true
		case ConfirmedOutside:
			heartbeat.InBranch = false
		default:
			// an unusable fix keeps the last known position
			if previous != nil && previous.AttendanceLogID == session.ID {
				heartbeat.InBranch = previous.InBranch
			}
		}
		if v.DistanceMeters >= 0 {
			heartbeat.DistanceMeters = utils.Ptr(v.DistanceMeters)
		}
	}

	stored, err := c.sessions.UpsertHeartbeat(ctx, heartbeat)
	if err != nil {
		return nil, c.serverError("RecordHeartbeat", "upsert heartbeat", req, err)
	}
	if !stored {
		// closed while the signal was being evaluated
		return nil, Fail(CodeNoCheckIn, nil)
	}
	if err := c.sessions.TouchSession(ctx, session.ID, now, req.Location.HasPosition()); err != nil {
		return nil, c.serverError("RecordHeartbeat", "touch session", req, err)
	}

	c.Logger.WithFields(logrus.Fields{
		"employee_id": heartbeat.EmployeeID,
		"session_id":  session.ID,
		"gps_ok":      heartbeat.GPSOK,
		"in_branch":   heartbeat.InBranch,
		"reason":      heartbeat.Reason,
	}).Debug("heartbeat recorded")

	return heartbeat, nil
}

// OpenSession returns the employee's open session or NO_CHECK_IN.
func (c *Controller) OpenSession(ctx context.Context, employeeID, companyID int64) (*SessionSnapshot, error) {
	session, err := c.openSession(ctx, "OpenSession", employeeID, companyID)
	if err != nil {
		return nil, err
	}
	return &SessionSnapshot{AttendanceLog: *session}, nil
}

func (c *Controller) employee(ctx context.Context, funcName string, employeeID, companyID int64) (*model.Employee, error) {
	emp, err := c.directory.FindEmployee(ctx, employeeID)
	if err != nil {
		return nil, c.serverError(funcName, "find employee", employeeID, err)
	}
	if emp == nil || !emp.Active || emp.CompanyID != companyID {
		return nil, Fail(CodeEmployeeNotFound, nil)
	}
	return emp, nil
}

func (c *Controller) branch(ctx context.Context, funcName string, branchID *int64) (*model.Branch, error) {
	if branchID == nil {
		return nil, Fail(CodeBranchNotFound, nil)
	}
	branch, err := c.directory.FindBranch(ctx, *branchID)
	if err != nil {
		return nil, c.serverError(funcName, "find branch", *branchID, err)
	}
	if branch == nil {
		return nil, Fail(CodeBranchNotFound, nil)
	}
	return branch, nil
}

func (c *Controller) openSession(ctx context.Context, funcName string, employeeID, companyID int64) (*model.AttendanceLog, error) {
	session, err := c.sessions.FindOpenSession(ctx, employeeID)
	if err != nil {
		return nil, c.serverError(funcName, "find open session", employeeID, err)
	}
	if session == nil || session.CompanyID != companyID {
		return nil, Fail(CodeNoCheckIn, nil)
	}
	return session, nil
}

// resolveZone never fails: anything the resolver cannot answer becomes UTC.
func (c *Controller) resolveZone(ctx context.Context, sample LocationSample, hint string) (string, *time.Location) {
	zone := ""
	if c.timezones != nil && sample.HasPosition() {
		resolved, err := c.timezones.Resolve(ctx, *sample.Latitude, *sample.Longitude, hint)
		if err != nil {
			c.Logger.WithError(err).WithField("hint", hint).Warn("timezone lookup failed")
		}
		zone = resolved
	} else {
		zone = hint
	}

	if zone == "" || zone == "Local" {
		return "UTC", time.UTC
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		c.Logger.WithError(err).WithField("zone", zone).Warn("unknown timezone, using UTC")
		return "UTC", time.UTC
	}
	return zone, loc
}

func (c *Controller) serverError(funcName, step string, data any, err error) error {
	logging.LogError(c.Logger, module, funcName, step, data, err)
	return ServerError(err)
}

func applyClose(session *model.AttendanceLog, closing SessionClose) {
	session.CheckOutTime = utils.Ptr(closing.At)
	session.CheckOutLocalTime = closing.LocalTime
	session.CheckOutLatitude = closing.Latitude
	session.CheckOutLongitude = closing.Longitude
	session.CheckOutAccuracy = closing.Accuracy
	session.TotalWorkingHours = decimal.NullDecimal{Decimal: closing.WorkingHours, Valid: true}
	session.EarlyLeaveMinutes = closing.EarlyLeaveMinutes
	session.CheckoutReason = utils.Ptr(closing.Reason)
	session.OpenMarker = nil
}
