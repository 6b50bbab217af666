package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robotslacker/testcli-sub000/manager/model"
	"github.com/robotslacker/testcli-sub000/manager/service"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

type JobHandler struct {
	lifecycle service.Lifecycle
}

func NewJobHandler(lifecycle service.Lifecycle) *JobHandler {
	return &JobHandler{
		lifecycle: lifecycle,
	}
}

func (h *JobHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/job", h.ListJobs)
	router.GET("/job/:name", h.GetJob)
	router.GET("/job/:name/worker", h.GetWorkers)
}

func (h *JobHandler) jobService(c *gin.Context) (*service.JobService, bool) {
	orchestration := h.lifecycle.Current()
	if orchestration == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": service.ErrManagerNotStarted.Error()})
		return nil, false
	}
	return orchestration.Jobs(), true
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidParam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	jobService, ok := h.jobService(c)
	if !ok {
		return
	}

	jobs, err := jobService.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(errorCode(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, service.JobTable(jobs))
}

func (h *JobHandler) GetJob(c *gin.Context) {
	jobService, ok := h.jobService(c)
	if !ok {
		return
	}

	job, err := jobService.FetchJobByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(errorCode(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, service.JobTable([]*model.Job{job}))
}

type workerView struct {
	SlotID       int    `json:"slotId"`
	ProcessID    int    `json:"processId"`
	Identity     string `json:"identity"`
	Registered   bool   `json:"registered"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime,omitempty"`
	ExitCode     int    `json:"exitCode"`
	FinishReason string `json:"finishReason,omitempty"`
	TimerPoint   string `json:"timerPoint,omitempty"`
}

func (h *JobHandler) GetWorkers(c *gin.Context) {
	jobService, ok := h.jobService(c)
	if !ok {
		return
	}

	workers, histories, err := jobService.ShowWorkers(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(errorCode(err), gin.H{"error": err.Error()})
		return
	}

	live := make([]*workerView, 0, len(workers))
	for _, w := range workers {
		view := &workerView{
			SlotID:     w.SlotID,
			ProcessID:  w.ProcessID,
			Identity:   w.Identity,
			Registered: w.Registered,
			StartTime:  util.FormatTime(w.StartTime),
		}
		if w.TimerPoint != nil {
			view.TimerPoint = *w.TimerPoint
		}
		live = append(live, view)
	}
	archived := make([]*workerView, 0, len(histories))
	for _, w := range histories {
		archived = append(archived, &workerView{
			SlotID:       w.SlotID,
			ProcessID:    w.ProcessID,
			Identity:     w.Identity,
			Registered:   w.Registered,
			StartTime:    util.FormatTime(w.StartTime),
			EndTime:      util.FormatTime(w.EndTime),
			ExitCode:     w.ExitCode,
			FinishReason: w.FinishReason.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"workers": live, "history": archived})
}
