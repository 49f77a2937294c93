package handlers

import (
	"net/http"
	"time"

	"axiapac.com/attendance/web/common"
	"github.com/gin-gonic/gin"
)

// Sweep runs one auto-checkout pass over the tenant. The scheduler calls it on
// a fixed interval; an empty body is a normal run.
func (h *Handler) Sweep(c *gin.Context) {
	var dto SweepDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			h.invalid(c, common.FormatBindingError(err))
			return
		}
	}

	enforcer, settings, release, err := h.Sweeps(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer release()

	enforcer.DryRun = dto.DryRun
	result, err := enforcer.Run(c.Request.Context(), settings, time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(result))
}
