// Package api is the HTTP surface of the staffing service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/applications"
	"github.com/celerix-dev/celerix-staffing/internal/attendance"
	"github.com/celerix-dev/celerix-staffing/internal/dashboard"
	"github.com/celerix-dev/celerix-staffing/internal/export"
	"github.com/celerix-dev/celerix-staffing/internal/logging"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	Store        recordstore.Reader
	Applications *applications.Service
	Attendance   *attendance.Service
	Dashboard    *dashboard.Service
	Logger       *logrus.Logger
	Location     *time.Location
}

// NewRouter mounts every route on a gin engine. Admin routes need a token
// signed with jwtSecret.
func NewRouter(h *Handler, jwtSecret []byte) *gin.Engine {
	r := gin.Default()
	r.Use(CORS(), SecurityHeaders())

	r.GET("/health", h.Health)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/applications", h.SubmitApplication)
	}

	admin := apiGroup.Group("/admin", AuthRequired(jwtSecret), RequireAdmin())
	{
		admin.GET("/applications", h.ListApplications)
		admin.GET("/applications/export", h.ExportApplications)
		admin.GET("/applications/:id", h.GetApplication)
		admin.PATCH("/applications/:id/status", h.UpdateStatus)
		admin.PATCH("/applications/:id/handler", h.UpdateHandler)
		admin.PATCH("/applications/:id/interview", h.UpdateInterview)
		admin.GET("/staff", h.ListStaff)
		admin.GET("/attendance/dashboard", h.AttendanceDashboard)
		admin.GET("/attendance/export", h.ExportAttendance)
	}

	staff := apiGroup.Group("/staff/:staff_id")
	{
		staff.GET("/attendance/today", h.Today)
		staff.POST("/attendance/:action", h.ClockAction)
		staff.PUT("/attendance/correction", h.Correct)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps service errors to status codes. Anything unrecognised is a store
// failure: it is logged and answered with a generic 500.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *applications.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
	case errors.Is(err, recordstore.ErrNotFound), errors.Is(err, attendance.ErrStaffNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrTransitionRejected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrUnknownAction),
		errors.Is(err, attendance.ErrUnknownField),
		errors.Is(err, attendance.ErrInvalidTime),
		errors.Is(err, dashboard.ErrUnknownWindow),
		errors.Is(err, dashboard.ErrBadDate),
		errors.Is(err, dashboard.ErrBadDepartment),
		errors.Is(err, export.ErrUnknownFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logging.LogError(h.logger(), c.Request.Method+" "+c.FullPath()+" failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) logger() *logrus.Logger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}

func (h *Handler) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// download streams t as an attachment.
func (h *Handler) download(c *gin.Context, t export.Table, f export.Format, name string) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", f.ContentType())
	c.Status(http.StatusOK)
	if err := t.Write(c.Writer, f); err != nil {
		logging.LogError(h.logger(), "write "+name, err)
	}
}
