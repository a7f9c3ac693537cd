package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/petmonitor/internal/camera"
)

// PTZMoveRequest는 상대 이동 요청. speed가 없으면 기본값을 사용합니다
type PTZMoveRequest struct {
	Pan   camera.PTZVector `json:"pan"`
	Tilt  camera.PTZVector `json:"tilt"`
	Zoom  camera.PTZVector `json:"zoom"`
	Speed *float32         `json:"speed"`
}

// SetPresetRequest는 프리셋 저장 요청
type SetPresetRequest struct {
	Name string `json:"name"`
}

func (s *Server) handlePTZMove(c *gin.Context) {
	var req PTZMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	speed := camera.DefaultSpeed
	if req.Speed != nil {
		speed = *req.Speed
	}

	ok, err := s.ptz.ExecuteCommand(c.Request.Context(), camera.PTZCommand{
		CameraID: c.Param("id"),
		Pan:      req.Pan,
		Tilt:     req.Tilt,
		Zoom:     req.Zoom,
		Speed:    speed,
	})
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	respondResult(c, ok)
}

func (s *Server) handlePTZPosition(c *gin.Context) {
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	pos, err := s.ptz.GetCurrentPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	if pos == nil {
		c.JSON(http.StatusConflict, SuccessResponse{Success: false})
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleListPresets(c *gin.Context) {
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	presets, err := s.ptz.GetPresets(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presets": presets})
}

func (s *Server) handleSetPreset(c *gin.Context) {
	var req SetPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	ok, err := s.ptz.SetPreset(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	respondResult(c, ok)
}

func (s *Server) handleGotoPreset(c *gin.Context) {
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	ok, err := s.ptz.MoveToPreset(c.Request.Context(), c.Param("id"), c.Param("presetId"))
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	respondResult(c, ok)
}
