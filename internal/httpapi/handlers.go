package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/config"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jss"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/retry"
)

type submitJobRequest struct {
	Name       string         `json:"jobName" binding:"required"`
	Files      []string       `json:"files"`
	TotalBytes int64          `json:"totalBytes"`
	Extra      map[string]any `json:"serviceFields"`
}

type statusResponse struct {
	SafeToExit       bool       `json:"safeToExit"`
	Connected        bool       `json:"connected"`
	IncompleteJobIDs []string   `json:"incompleteJobIds"`
	NextResync       *time.Time `json:"nextResync,omitempty"`
	StatusText       string     `json:"statusText"`
}

func (s *Server) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Rows())
}

func (s *Server) handleSubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.monitor.Submit(c.Request.Context(), monitor.SubmitRequest{
		Name:       req.Name,
		Files:      req.Files,
		TotalBytes: req.TotalBytes,
		Extra:      req.Extra,
	})
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

func (s *Server) handleRetryJob(c *gin.Context) {
	if err := s.monitor.RetryJob(c.Request.Context(), c.Param("id")); err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

func (s *Server) handleCancelJob(c *gin.Context) {
	if err := s.monitor.CancelJob(c.Request.Context(), c.Param("id")); err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

func (s *Server) handleResync(c *gin.Context) {
	if err := s.monitor.Resync(c.Request.Context()); err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		SafeToExit:       s.monitor.SafeToExit(),
		Connected:        s.monitor.Connected(),
		IncompleteJobIDs: s.monitor.IncompleteJobIDs(),
		StatusText:       s.alerts.StatusText(),
	}
	if next := s.monitor.NextResync(); !next.IsZero() {
		resp.NextResync = &next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetAlert(c *gin.Context) {
	alert, ok := s.alerts.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"alert": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

func (s *Server) handleClearAlert(c *gin.Context) {
	s.alerts.ClearAlert()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCopyAlert(c *gin.Context) {
	alert, ok := s.alerts.Current()
	if !ok {
		writeError(c, http.StatusNotFound, "no alert to copy")
		return
	}
	c.JSON(http.StatusOK, gin.H{"copied": alerts.CopyToClipboard(s.clipboard, alert.Message)})
}

func (s *Server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"statusText": s.alerts.StatusText(),
		"events":     s.alerts.Events(),
	})
}

// settingsResponse carries the saved settings. They apply from the next
// start, which RestartRequired flags.
type settingsResponse struct {
	Settings        config.RuntimeSettings `json:"settings"`
	RestartRequired bool                   `json:"restartRequired"`
}

func (s *Server) handleGetSettings(c *gin.Context) {
	if s.settings == nil {
		writeError(c, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, settingsResponse{Settings: settings, RestartRequired: s.settings.Pending()})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	if s.settings == nil {
		writeError(c, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	var req config.RuntimeSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, settingsResponse{Settings: saved, RestartRequired: s.settings.Pending()})
}

// writeUpstreamError maps job service failures onto local status codes.
func writeUpstreamError(c *gin.Context, err error) {
	var apiErr *jss.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		writeError(c, apiErr.StatusCode, apiErr.Message)
	case errors.Is(err, retry.ErrServiceUnreachable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusBadGateway, err.Error())
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
