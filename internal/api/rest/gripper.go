package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
	"github.com/omron-sinicx/robotiq-cri/internal/storage"
	"github.com/omron-sinicx/robotiq-cri/internal/types"
)

// GET /api/v1/gripper/status
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.gripper.Snapshot())
}

// POST /api/v1/gripper/goal
func (s *Server) executeGoal(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.FromError(types.CodeBadRequest, "Failed to read request body", err))
		return
	}

	goal, err := s.validator.DecodeFull(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.FromError(types.CodeBadRequest, "Invalid goal", err))
		return
	}

	result, err := s.actions.ExecuteFull(c.Request.Context(), goal, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.FromError(types.CodeInternal, "Goal execution failed", err))
		return
	}

	c.JSON(outcomeCode(result.Status), result)
}

// POST /api/v1/gripper/command
func (s *Server) executeCommand(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.FromError(types.CodeBadRequest, "Failed to read request body", err))
		return
	}

	goal, err := s.validator.DecodeMinimal(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.FromError(types.CodeBadRequest, "Invalid command", err))
		return
	}

	result, err := s.actions.ExecuteMinimal(c.Request.Context(), goal, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.FromError(types.CodeInternal, "Command execution failed", err))
		return
	}

	c.JSON(outcomeCode(result.Status), result)
}

func outcomeCode(status gripper.OutcomeStatus) int {
	if status == gripper.OutcomeNotReady {
		return http.StatusConflict
	}
	return http.StatusOK
}

// POST /api/v1/gripper/cancel
func (s *Server) cancelGoal(c *gin.Context) {
	cancelled := s.gripper.Cancel()
	c.JSON(http.StatusOK, gin.H{
		"cancelled": cancelled,
	})
}

// POST /api/v1/gripper/activate
func (s *Server) activate(c *gin.Context) {
	var req struct {
		Silent    bool `json:"silent"`
		TimeoutMS int  `json:"timeout_ms" binding:"gte=0"`
	}

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.FromError(types.CodeBadRequest, "Invalid request body", err))
			return
		}
	}

	if req.Silent {
		if err := s.gripper.ActivateAsync(); err != nil {
			s.logger.Error("Activation command failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, types.FromError(types.CodeDeviceFailure, "Failed to send activation command", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"message": "Activation command sent",
		})
		return
	}

	timeout := s.activationTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	if !s.gripper.Activate(c.Request.Context(), timeout) {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeNotReady, "Gripper did not become ready",
			map[string]interface{}{"timeout_ms": timeout.Milliseconds()}))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"activation": gripper.ActivationReady,
	})
}

// GET /api/v1/gripper/goals
func (s *Server) listGoals(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "Goal history is disabled", nil))
		return
	}

	limit := storage.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid limit", raw))
			return
		}
		limit = n
	}

	goals, err := s.history.ListGoals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.FromError(types.CodeInternal, "Failed to list goals", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"goals": goals,
		"count": len(goals),
	})
}

// GET /api/v1/gripper/goals/:id
func (s *Server) getGoal(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "Goal history is disabled", nil))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.FromError(types.CodeBadRequest, "Invalid goal ID", err))
		return
	}

	goal, err := s.history.GetGoal(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrGoalNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, "Goal not found", id.String()))
			return
		}
		c.JSON(http.StatusInternalServerError, types.FromError(types.CodeInternal, "Failed to get goal", err))
		return
	}

	c.JSON(http.StatusOK, goal)
}
