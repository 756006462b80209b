package api

import (
	"net/http"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/applications"
	"github.com/celerix-dev/celerix-staffing/internal/export"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/gin-gonic/gin"
)

// SubmitApplication is the public form endpoint. The campaign id may come
// from the landing page query string instead of the body.
func (h *Handler) SubmitApplication(c *gin.Context) {
	var in applications.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.FromID == "" {
		in.FromID = c.Query("from_id")
	}

	app, err := h.Applications.Submit(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (h *Handler) ListApplications(c *gin.Context) {
	var f applications.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	apps, err := h.Applications.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

// ExportApplications downloads the filtered list. ?format=xlsx selects a workbook.
func (h *Handler) ExportApplications(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var f applications.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	apps, err := h.Applications.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	today := time.Now().In(h.location()).Format(schema.DateLayout)
	h.download(c, export.Applications(apps, h.location()), format, export.Filename("applications", today, format))
}

func (h *Handler) GetApplication(c *gin.Context) {
	app, err := h.Applications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var input struct {
		Status schema.ApplicationStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.Applications.UpdateStatus(c.Request.Context(), c.Param("id"), input.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// UpdateHandler assigns the person in charge; an empty value unassigns.
func (h *Handler) UpdateHandler(c *gin.Context) {
	var input struct {
		PersonInCharge string `json:"person_in_charge"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.Applications.UpdateHandler(c.Request.Context(), c.Param("id"), input.PersonInCharge)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *Handler) UpdateInterview(c *gin.Context) {
	var input applications.Interview
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.Applications.UpdateInterview(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}
