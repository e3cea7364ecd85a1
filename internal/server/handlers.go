package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agbru/policycalc/internal/calc"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/orchestration"
	"github.com/agbru/policycalc/internal/status"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// startRequest is the body of POST /v1/calculations. A fan-out start splits a
// society-wide calculation across units (the configured ones when Units is
// empty).
type startRequest struct {
	calc.Request
	FanOut bool     `json:"fanOut,omitempty"`
	Units  []string `json:"units,omitempty"`
}

type startResponse struct {
	CalcID  string      `json:"calcId"`
	Running bool        `json:"running"`
	Status  calc.Status `json:"status"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": len(s.orch.Running()),
	})
}

func keyFromPath(c *gin.Context) (status.Key, bool) {
	target := calc.TargetType(c.Param("target"))
	if target != calc.TargetSimulation && target != calc.TargetReport {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target must be simulation or report"})
		return status.Key{}, false
	}
	return status.KeyOf(target, c.Param("id")), true
}

func (s *Server) handleGet(c *gin.Context) {
	key, ok := keyFromPath(c)
	if !ok {
		return
	}
	st, found := s.orch.Store().Get(key)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no status for " + key.String()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleEvents streams the status of one key as Server-Sent Events. The
// subscription is primed with the current value, so it is sent first; the
// stream ends after a terminal status or when the client goes away.
func (s *Server) handleEvents(c *gin.Context) {
	key, ok := keyFromPath(c)
	if !ok {
		return
	}
	sub := s.orch.Store().Subscribe(key)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now().UTC()})
			return true
		case st, open := <-sub.C():
			if !open {
				return false
			}
			c.SSEvent("status", st)
			return !st.State.Terminal()
		}
	})
}

func (s *Server) handleStart(c *gin.Context) {
	var body startRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	req := body.Request
	if req.CalcID == "" {
		req.CalcID = uuid.NewString()
	}

	var (
		h   *orchestration.Handle
		err error
	)
	if body.FanOut {
		units := body.Units
		if len(units) == 0 {
			units = s.units
		}
		if len(units) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fan-out needs units", "field": "units"})
			return
		}
		h, err = s.orch.StartFanOut(c.Request.Context(), req, units, s.fanOut...)
	} else {
		h, err = s.orch.StartCalculation(c.Request.Context(), req)
	}
	if err != nil {
		s.startError(c, req, err)
		return
	}

	resp := startResponse{CalcID: h.CalcID(), Running: s.orch.IsRunning(h.CalcID())}
	resp.Status, _ = h.Status()
	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) startError(c *gin.Context, req calc.Request, err error) {
	var verr apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, orchestration.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("start failed", err, logging.String("calc_id", req.CalcID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// handleCleanup stops the run of an id. With purge=true the cached statuses of
// the id are dropped as well.
func (s *Server) handleCleanup(c *gin.Context) {
	id := c.Param("id")
	running := s.orch.IsRunning(id)
	s.orch.Cleanup(id)

	purged := c.Query("purge") == "true"
	if purged {
		s.orch.Store().Delete(status.KeyOf(calc.TargetSimulation, id))
		s.orch.Store().Delete(status.KeyOf(calc.TargetReport, id))
	}
	c.JSON(http.StatusOK, gin.H{"calcId": id, "stopped": running, "purged": purged})
}

func (s *Server) handleAggregate(c *gin.Context) {
	target := calc.TargetType(c.DefaultQuery("target", string(calc.TargetSimulation)))
	if target != calc.TargetSimulation && target != calc.TargetReport {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target must be simulation or report"})
		return
	}
	var keys []status.Key
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			keys = append(keys, status.KeyOf(target, id))
		}
	}
	if len(keys) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required", "field": "ids"})
		return
	}
	agg := s.agg.Snapshot(keys)
	c.JSON(http.StatusOK, gin.H{
		"aggregate": agg,
		"members":   agg.Statuses,
	})
}
