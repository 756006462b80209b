package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/celerix-dev/celerix-staffing/internal/attendance"
	"github.com/celerix-dev/celerix-staffing/internal/dashboard"
	"github.com/celerix-dev/celerix-staffing/internal/export"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
	"github.com/gin-gonic/gin"
)

func (h *Handler) Today(c *gin.Context) {
	view, err := h.Attendance.Today(c.Request.Context(), c.Param("staff_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ClockAction runs clock-in, start-break, end-break or clock-out. The body is
// optional.
func (h *Handler) ClockAction(c *gin.Context) {
	action, err := attendance.ParseAction(c.Param("action"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var opts attendance.ActionOptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Attendance.Apply(c.Request.Context(), c.Param("staff_id"), action, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Correct overwrites one instant of today's record, e.g.
// {"field": "clock_in", "time": "09:00"}.
func (h *Handler) Correct(c *gin.Context) {
	var input struct {
		Field string `json:"field" binding:"required"`
		Time  string `json:"time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.Attendance.Correct(c.Request.Context(), c.Param("staff_id"), input.Field, input.Time)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListStaff returns the staff master, optionally narrowed to ?department=.
func (h *Handler) ListStaff(c *gin.Context) {
	q := recordstore.Query{Order: &recordstore.Order{Field: "employee_id"}}
	if dep := c.Query("department"); dep != "" {
		if !schema.ValidDepartment(dep) {
			h.fail(c, dashboard.ErrBadDepartment)
			return
		}
		q.Filter = recordstore.Where(recordstore.Eq("department", dep))
	}
	staff, err := sdk.FindMany[schema.Staff](c.Request.Context(), h.Store, schema.CollectionStaff, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, staff)
}

func (h *Handler) dashboard(c *gin.Context) (dashboard.Dashboard, bool) {
	window, err := dashboard.ParseWindow(c.Query("window"))
	if err != nil {
		h.fail(c, err)
		return dashboard.Dashboard{}, false
	}
	d, err := h.Dashboard.Load(c.Request.Context(), dashboard.Query{
		Window:     window,
		Date:       c.Query("date"),
		Department: c.Query("department"),
	})
	if err != nil {
		h.fail(c, err)
		return dashboard.Dashboard{}, false
	}
	return d, true
}

// AttendanceDashboard takes ?window=today|week|month, ?date=YYYY-MM-DD and
// ?department=.
func (h *Handler) AttendanceDashboard(c *gin.Context) {
	if d, ok := h.dashboard(c); ok {
		c.JSON(http.StatusOK, d)
	}
}

func (h *Handler) ExportAttendance(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.fail(c, err)
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	h.download(c, export.Attendance(d.Rows, h.location()), format, export.Filename("staff_attendance", d.Date, format))
}
