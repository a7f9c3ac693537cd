package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/petmonitor/internal/camera"
	"github.com/yourusername/petmonitor/internal/database"
	"go.uber.org/zap"
)

// ErrorResponse는 에러 응답
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse는 성공 여부만 담은 응답
type SuccessResponse struct {
	Success bool `json:"success"`
}

// CameraListResponse는 카메라 목록 응답
type CameraListResponse struct {
	Cameras []*camera.Camera `json:"cameras"`
	Count   int              `json:"count"`
}

// StartStreamRequest는 스트림 시작 요청
type StartStreamRequest struct {
	ProfileID string `json:"profileId"`
}

// DiscoveryRequest는 탐색 요청
type DiscoveryRequest struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// storeFailure는 저장소 에러를 500으로 응답합니다. 내부 에러는 로그에만 남깁니다
func (s *Server) storeFailure(c *gin.Context, err error) {
	s.logger.Error("Storage operation failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal storage error"})
}

func cameraNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "camera not found"})
}

// respondResult는 성공이면 200, 거부면 409로 응답합니다
func respondResult(c *gin.Context, ok bool) {
	if !ok {
		c.JSON(http.StatusConflict, SuccessResponse{Success: false})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// requireCamera는 카메라가 존재하는지 확인합니다. 없거나 에러면 응답을 쓰고 false를 반환합니다
func (s *Server) requireCamera(c *gin.Context) (*camera.Camera, bool) {
	cam, err := s.cameras.GetCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeFailure(c, err)
		return nil, false
	}
	if cam == nil {
		cameraNotFound(c)
		return nil, false
	}
	return cam, true
}

// bindOptionalJSON은 본문이 있을 때만 JSON을 파싱합니다
func bindOptionalJSON(c *gin.Context, target interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	err := c.ShouldBindJSON(target)
	if err == io.EOF {
		return nil
	}
	return err
}

func (s *Server) handleListCameras(c *gin.Context) {
	cameras, err := s.cameras.GetCameras(c.Request.Context())
	if err != nil {
		s.storeFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, CameraListResponse{
		Cameras: cameras,
		Count:   len(cameras),
	})
}

func (s *Server) handleGetCamera(c *gin.Context) {
	cam, ok := s.requireCamera(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cam)
}

func (s *Server) handleLookupCamera(c *gin.Context) {
	address := c.Query("ip")
	if address == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ip query parameter is required"})
		return
	}

	cam, err := s.cameras.GetCameraByIP(c.Request.Context(), address)
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	if cam == nil {
		cameraNotFound(c)
		return
	}
	c.JSON(http.StatusOK, cam)
}

func (s *Server) handleCreateCamera(c *gin.Context) {
	var cam camera.Camera
	if err := c.ShouldBindJSON(&cam); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	added, err := s.cameras.AddCamera(c.Request.Context(), &cam)
	if errors.Is(err, database.ErrDuplicateID) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "camera id already exists"})
		return
	}
	if err != nil {
		s.storeFailure(c, err)
		return
	}

	c.JSON(http.StatusCreated, added)
}

// handleUpdateCamera는 경로의 ID로 레코드 전체를 교체합니다
// status와 currentStreamUrl은 스트림 시작/중지로만 바뀌며 본문의 값은 무시됩니다
func (s *Server) handleUpdateCamera(c *gin.Context) {
	var cam camera.Camera
	if err := c.ShouldBindJSON(&cam); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	cam.ID = c.Param("id")

	updated, matched, err := s.cameras.UpdateCamera(c.Request.Context(), &cam)
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	if !matched {
		cameraNotFound(c)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteCamera(c *gin.Context) {
	deleted, err := s.cameras.DeleteCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	if !deleted {
		cameraNotFound(c)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleTestConnection(c *gin.Context) {
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	ok, err := s.cameras.TestConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: ok})
}

func (s *Server) handleGetProfiles(c *gin.Context) {
	profiles, err := s.cameras.GetProfiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	if profiles == nil {
		cameraNotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (s *Server) handleStartStream(c *gin.Context) {
	var req StartStreamRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	ok, err := s.streams.Start(c.Request.Context(), c.Param("id"), req.ProfileID)
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	respondResult(c, ok)
}

func (s *Server) handleStopStream(c *gin.Context) {
	if _, ok := s.requireCamera(c); !ok {
		return
	}

	ok, err := s.streams.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	respondResult(c, ok)
}

func (s *Server) handleDiscovery(c *gin.Context) {
	var req DiscoveryRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.TimeoutSeconds < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "timeoutSeconds must not be negative"})
		return
	}

	found := s.cameras.DiscoverCameras(c.Request.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	c.JSON(http.StatusOK, CameraListResponse{
		Cameras: found,
		Count:   len(found),
	})
}
