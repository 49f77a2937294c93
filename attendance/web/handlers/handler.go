package handlers

import (
	"net/http"

	attendance "axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/attendance/store"
	"axiapac.com/attendance/core"
	"axiapac.com/attendance/infrastructure/logging"
	"axiapac.com/attendance/web/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ControllerProvider builds the controller for the tenant of a request. The
// returned release func must be called once the request is done.
type ControllerProvider func(c *gin.Context) (*attendance.Controller, func(), error)

// SweepProvider builds an enforcer and its settings source for the tenant of a request.
type SweepProvider func(c *gin.Context) (*attendance.Enforcer, attendance.SettingsSource, func(), error)

type Handler struct {
	Controllers ControllerProvider
	Sweeps      SweepProvider
	Logger      *logrus.Logger
}

func Register(r *gin.RouterGroup, h *Handler) {
	r.POST("/check-in", h.CheckIn)
	r.POST("/check-out", h.CheckOut)
	r.POST("/heartbeat", h.Heartbeat)
	r.GET("/session", h.Session)
}

func RegisterInternal(r *gin.RouterGroup, h *Handler) {
	r.POST("/autocheckout/sweep", h.Sweep)
}

// TenantControllers serves every request from the schema its host names.
func TenantControllers(dm *core.DatabaseManager, timezones attendance.TimezoneResolver) ControllerProvider {
	tenant := &common.Tenant{Dm: dm}
	return func(c *gin.Context) (*attendance.Controller, func(), error) {
		db, conn, err := tenant.GetDB(c)
		if err != nil {
			return nil, nil, err
		}
		st := store.NewGormStore(db)
		return attendance.NewController(st, st, timezones), func() { conn.Close() }, nil
	}
}

// TenantSweeps sweeps the schema the request host names. A tenant handle is a
// single connection, so the sweep runs one session at a time.
func TenantSweeps(dm *core.DatabaseManager, locker attendance.Locker) SweepProvider {
	tenant := &common.Tenant{Dm: dm}
	return func(c *gin.Context) (*attendance.Enforcer, attendance.SettingsSource, func(), error) {
		db, conn, err := tenant.GetDB(c)
		if err != nil {
			return nil, nil, nil, err
		}
		st := store.NewGormStore(db)
		enforcer := attendance.NewEnforcer(st)
		enforcer.Workers = 1
		enforcer.Locker = locker
		enforcer.LockPrefix = core.SchemaOf(tenant.Name(c)) + ":"
		return enforcer, st, func() { conn.Close() }, nil
	}
}

// StatusOf maps a failure code onto its HTTP status.
func StatusOf(code attendance.Code) int {
	switch code {
	case attendance.CodeEmployeeNotFound, attendance.CodeBranchNotFound:
		return http.StatusNotFound
	case attendance.CodeNoCheckIn, attendance.CodeAlreadyCheckedIn:
		return http.StatusConflict
	case attendance.CodeOutsideGeofence, attendance.CodeLocationMissing, attendance.CodeLowAccuracy, attendance.CodeLocationOutdated:
		return http.StatusUnprocessableEntity
	case attendance.CodeInvalidRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) logger() *logrus.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logging.GetLogger()
}

// fail writes err as a failure envelope in the caller's language.
func (h *Handler) fail(c *gin.Context, err error) {
	f, ok := attendance.AsFailure(err)
	if !ok {
		logging.LogError(h.logger(), "handlers", c.HandlerName(), c.FullPath(), nil, err)
		f = attendance.ServerError(err)
	}
	tag := attendance.MatchLanguage(c.GetHeader("Accept-Language"))
	c.JSON(StatusOf(f.Code), common.NewFailureResponse(string(f.Code), f.Message, f.Localized(tag), f.Details))
}

func (h *Handler) invalid(c *gin.Context, message string) {
	f := attendance.Fail(attendance.CodeInvalidRequest, map[string]any{"reason": message})
	h.fail(c, f)
}

// controller resolves the tenant controller or writes the failure itself.
func (h *Handler) controller(c *gin.Context) (*attendance.Controller, func(), bool) {
	ctrl, release, err := h.Controllers(c)
	if err != nil {
		h.fail(c, err)
		return nil, nil, false
	}
	return ctrl, release, true
}
