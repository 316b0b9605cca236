package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbbackup/internal/usecase"
)

type ScheduleHandler struct {
	schedules ScheduleService
	tick      TickRunner
}

func NewScheduleHandler(schedules ScheduleService, tick TickRunner) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, tick: tick}
}

type scheduleRequest struct {
	usecase.ScheduleInput
	Actor *string `json:"actor"`
}

func (h *ScheduleHandler) List(c *gin.Context) {
	views, err := h.schedules.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": views})
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	view, err := h.schedules.Create(c.Request.Context(), req.ScheduleInput, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *ScheduleHandler) Get(c *gin.Context) {
	view, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ScheduleHandler) Update(c *gin.Context) {
	var in usecase.ScheduleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	view, err := h.schedules.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}

// RunDue runs one scheduler tick. It lets an external cron drive the schedules.
func (h *ScheduleHandler) RunDue(c *gin.Context) {
	started, err := h.tick.RunDue(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "started": started})
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started})
}
