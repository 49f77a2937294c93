package handlers

import (
	"net/http"

	attendance "axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/web/common"
	"axiapac.com/attendance/web/middlewares"
	"github.com/gin-gonic/gin"
)

func (h *Handler) CheckIn(c *gin.Context) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, common.NewErrorResponse("missing identity"))
		return
	}

	var dto CheckInDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.invalid(c, common.FormatBindingError(err))
		return
	}
	sample, err := dto.Location.sample()
	if err != nil {
		h.invalid(c, "location.recordedAt is not an ISO-8601 time")
		return
	}

	ctrl, release, ok := h.controller(c)
	if !ok {
		return
	}
	defer release()

	snapshot, err := ctrl.CheckIn(c.Request.Context(), attendance.CheckInRequest{
		EmployeeID:   identity.EmployeeID,
		CompanyID:    identity.CompanyID,
		Location:     sample,
		TimezoneHint: dto.Timezone,
		FreeTask:     dto.FreeTask,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, common.NewSuccessResponse(snapshot))
}

func (h *Handler) CheckOut(c *gin.Context) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, common.NewErrorResponse("missing identity"))
		return
	}

	var dto CheckOutDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.invalid(c, common.FormatBindingError(err))
		return
	}
	sample, err := dto.Location.sample()
	if err != nil {
		h.invalid(c, "location.recordedAt is not an ISO-8601 time")
		return
	}

	ctrl, release, ok := h.controller(c)
	if !ok {
		return
	}
	defer release()

	snapshot, err := ctrl.CheckOut(c.Request.Context(), attendance.CheckOutRequest{
		EmployeeID:   identity.EmployeeID,
		CompanyID:    identity.CompanyID,
		Location:     sample,
		TimezoneHint: dto.Timezone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(snapshot))
}

func (h *Handler) Heartbeat(c *gin.Context) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, common.NewErrorResponse("missing identity"))
		return
	}

	var dto HeartbeatDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.invalid(c, common.FormatBindingError(err))
		return
	}
	sample, err := dto.Location.sample()
	if err != nil {
		h.invalid(c, "location.recordedAt is not an ISO-8601 time")
		return
	}

	ctrl, release, ok := h.controller(c)
	if !ok {
		return
	}
	defer release()

	heartbeat, err := ctrl.RecordHeartbeat(c.Request.Context(), attendance.HeartbeatRequest{
		EmployeeID: identity.EmployeeID,
		CompanyID:  identity.CompanyID,
		Location:   sample,
		GPSEnabled: *dto.GPSEnabled,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(heartbeat))
}

func (h *Handler) Session(c *gin.Context) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, common.NewErrorResponse("missing identity"))
		return
	}

	ctrl, release, ok := h.controller(c)
	if !ok {
		return
	}
	defer release()

	snapshot, err := ctrl.OpenSession(c.Request.Context(), identity.EmployeeID, identity.CompanyID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(snapshot))
}
