// internal/api/client.go
package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/episodes/add"
)

// Client uploads exported episodes to the episode archive service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *resty.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.httpClient.Close()
}

// Healthcheck checks if the archive service is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.R().Get(healthPath)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode())
	}
	return nil
}

// Upload sends an exported episode file with its metadata as a multipart form.
func (c *Client) Upload(filePath string, meta core.ExportMetadata) error {
	resp, err := c.httpClient.R().
		SetFormData(map[string]string{
			"secret":     c.apiKey,
			"filename":   filepath.Base(filePath),
			"episodeId":  meta.EpisodeID,
			"instanceId": meta.InstanceID,
			"mode":       meta.Mode,
			"trackCode":  strconv.Itoa(meta.TrackCode),
			"trackName":  meta.TrackName,
			"steps":      strconv.FormatUint(uint64(meta.Steps), 10),
			"duration":   fmt.Sprintf("%f", meta.Duration.Seconds()),
			"outcome":    meta.Outcome,
		}).
		SetFile("file", filePath).
		Post(uploadPath)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode())
	}
	return nil
}
