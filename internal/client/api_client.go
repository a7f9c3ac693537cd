package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yourusername/petmonitor/internal/camera"
)

// StatusError is returned when the server answers with an unexpected status code
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	statusErr, ok := err.(*StatusError)
	return ok && statusErr.StatusCode == http.StatusNotFound
}

type cameraList struct {
	Cameras []*camera.Camera `json:"cameras"`
	Count   int              `json:"count"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIClient handles communication with the camera server's HTTP API
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health returns the server's health document
func (c *APIClient) Health(ctx context.Context) (map[string]interface{}, error) {
	var health map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return health, nil
}

// ListCameras retrieves every registered camera
func (c *APIClient) ListCameras(ctx context.Context) ([]*camera.Camera, error) {
	var list cameraList
	if err := c.do(ctx, http.MethodGet, "/api/v1/cameras", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list.Cameras, nil
}

// GetCamera retrieves one camera. A missing camera is reported as (nil, nil)
func (c *APIClient) GetCamera(ctx context.Context, id string) (*camera.Camera, error) {
	return c.getOptional(ctx, "/api/v1/cameras/"+url.PathEscape(id))
}

// GetCameraByIP retrieves the first camera registered at the address
func (c *APIClient) GetCameraByIP(ctx context.Context, address string) (*camera.Camera, error) {
	return c.getOptional(ctx, "/api/v1/cameras/lookup?ip="+url.QueryEscape(address))
}

func (c *APIClient) getOptional(ctx context.Context, path string) (*camera.Camera, error) {
	var cam camera.Camera
	err := c.do(ctx, http.MethodGet, path, nil, &cam, http.StatusOK)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cam, nil
}

// AddCamera registers a camera and returns the stored record
func (c *APIClient) AddCamera(ctx context.Context, cam *camera.Camera) (*camera.Camera, error) {
	var created camera.Camera
	if err := c.do(ctx, http.MethodPost, "/api/v1/cameras", cam, &created, http.StatusCreated); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateCamera replaces the stored record for cam.ID
func (c *APIClient) UpdateCamera(ctx context.Context, cam *camera.Camera) (*camera.Camera, error) {
	var updated camera.Camera
	path := "/api/v1/cameras/" + url.PathEscape(cam.ID)
	if err := c.do(ctx, http.MethodPut, path, cam, &updated, http.StatusOK); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteCamera removes a camera. It returns false when nothing was deleted
func (c *APIClient) DeleteCamera(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, "/api/v1/cameras/"+url.PathEscape(id), nil, nil, http.StatusNoContent)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// StartStream asks the server to start streaming a camera. An empty profileID picks the first profile
func (c *APIClient) StartStream(ctx context.Context, id, profileID string) (bool, error) {
	body := map[string]string{"profileId": profileID}
	return c.action(ctx, "/api/v1/cameras/"+url.PathEscape(id)+"/stream/start", body)
}

// StopStream asks the server to stop streaming a camera
func (c *APIClient) StopStream(ctx context.Context, id string) (bool, error) {
	return c.action(ctx, "/api/v1/cameras/"+url.PathEscape(id)+"/stream/stop", nil)
}

// Discover runs a discovery sweep. A zero timeout uses the server default
func (c *APIClient) Discover(ctx context.Context, timeout time.Duration) ([]*camera.Camera, error) {
	body := map[string]int{"timeoutSeconds": int(timeout / time.Second)}

	var list cameraList
	if err := c.do(ctx, http.MethodPost, "/api/v1/discovery", body, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list.Cameras, nil
}

// action calls an endpoint that answers 200 on success and 409 on rejection
func (c *APIClient) action(ctx context.Context, path string, body interface{}) (bool, error) {
	var result successResponse
	err := c.do(ctx, http.MethodPost, path, body, &result, http.StatusOK)
	if statusErr, ok := err.(*StatusError); ok && statusErr.StatusCode == http.StatusConflict {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.Success, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}, want int) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != want {
		message := string(respBody)
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
