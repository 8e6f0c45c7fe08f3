package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"facestream-go/config"
	"facestream-go/internal/core/recognition"
	"facestream-go/internal/core/tracking"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "detector",
}

// Observation is one face reported by the detection service: its bounding
// box, its 128-d embedding and the detector's own confidence in the
// detection itself (not an identity match).
type Observation struct {
	BBox       tracking.BBox
	Embedding  recognition.Embedding
	Confidence float64
}

// Client talks to the external detect-and-encode service. The service owns
// all pixel-level work; this backend only moves opaque image bytes to it.
type Client struct {
	cfg        config.DetectorConfig
	httpClient *http.Client
}

type apiInfoResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Backend string `json:"backend"`
}

type apiDetectResponse struct {
	Status     string `json:"status"`
	FacesCount int    `json:"faces_count"`
	Faces      []struct {
		// bbox is [top, right, bottom, left] in pixels.
		BoundingBox []int     `json:"bbox"`
		Confidence  float64   `json:"confidence"`
		Embedding   []float64 `json:"embedding"`
	} `json:"faces"`
	ProcessTime float64 `json:"process_time"`
}

// NewClient creates a detector client from configuration.
func NewClient(cfg config.DetectorConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Ping checks whether the detection service is reachable.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/info", c.cfg.URL), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to detector service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("detector service unavailable, status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	return info.Status == "ok", nil
}

// DetectAndEncode sends an encoded image to the detection service and
// returns one observation per detected face. Faces smaller than the
// configured minimum size are dropped; embeddings with the wrong
// dimensionality are rejected rather than silently truncated.
func (c *Client) DetectAndEncode(ctx context.Context, imageData []byte) ([]Observation, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form field: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("failed to copy image data: %w", err)
	}

	if err := writer.WriteField("threshold", fmt.Sprintf("%f", c.cfg.DetProbThreshold)); err != nil {
		return nil, fmt.Errorf("failed to write threshold field: %w", err)
	}
	if err := writer.WriteField("extract_embedding", "true"); err != nil {
		return nil, fmt.Errorf("failed to write extract_embedding field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/detect", c.cfg.URL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status: %d, response: %s", resp.StatusCode, string(respBody))
	}

	var apiResp apiDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("detector API error: %s", apiResp.Status)
	}

	observations := make([]Observation, 0, len(apiResp.Faces))
	for _, face := range apiResp.Faces {
		if len(face.BoundingBox) != 4 {
			log.WithFields(logFields).Warnf("Skipping face with malformed bbox (%d values)", len(face.BoundingBox))
			continue
		}
		bbox := tracking.BBox{
			Top:    face.BoundingBox[0],
			Right:  face.BoundingBox[1],
			Bottom: face.BoundingBox[2],
			Left:   face.BoundingBox[3],
		}
		if c.cfg.MinFaceSize > 0 && (bbox.Width() < c.cfg.MinFaceSize || bbox.Height() < c.cfg.MinFaceSize) {
			log.WithFields(logFields).Debugf("Skipping face below minimum size (%dx%d)", bbox.Width(), bbox.Height())
			continue
		}

		embedding := recognition.Embedding(face.Embedding)
		if err := embedding.Validate(); err != nil {
			log.WithFields(logFields).WithError(err).Warn("Skipping face with invalid embedding")
			continue
		}

		observations = append(observations, Observation{
			BBox:       bbox,
			Embedding:  embedding,
			Confidence: face.Confidence,
		})
	}

	log.WithFields(logFields).Debugf("Detector returned %d faces, %d usable", apiResp.FacesCount, len(observations))
	return observations, nil
}
