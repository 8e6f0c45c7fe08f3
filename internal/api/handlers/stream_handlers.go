package handlers

import (
	"context"
	"net/http"

	"facestream-go/config"
	"facestream-go/internal/core/session"
	"facestream-go/internal/core/tracking"
	"facestream-go/internal/integrations/detector"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 16,
	// Browser and mobile clients connect cross-origin; CORS policy for the
	// REST surface is enforced separately by middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// StreamHandler handles the websocket streaming endpoint.
type StreamHandler struct {
	cfg      *config.Config
	manager  *session.Manager
	detector *detector.Client
}

// NewStreamHandler creates the websocket stream handler.
func NewStreamHandler(cfg *config.Config, manager *session.Manager, detectorClient *detector.Client) *StreamHandler {
	return &StreamHandler{
		cfg:      cfg,
		manager:  manager,
		detector: detectorClient,
	}
}

// clientMessage is one JSON message received from a streaming client.
type clientMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"` // base64 image for "frame"
	FrameID   *int64 `json:"frame_id,omitempty"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// faceResult is one tracked face in a recognition_result message.
type faceResult struct {
	TrackID    int     `json:"track_id"`
	BBox       [4]int  `json:"bbox"` // [top, right, bottom, left]
	UserID     *uint   `json:"user_id,omitempty"`
	UserName   string  `json:"user_name,omitempty"`
	Confidence float64 `json:"confidence"`
	IsUnknown  bool    `json:"is_unknown"`
}

// Recognize is the websocket endpoint for real-time face recognition.
//
// The client sends "frame" messages carrying base64-encoded images; the
// server detects and identifies the faces, updates the session's tracks and
// answers with "recognition_result" messages. "ping" and "reset" messages
// are answered with "pong" and "reset_confirmed". Disconnecting discards
// the session and all of its tracking state.
func (h *StreamHandler) Recognize(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sess, err := h.manager.Create()
	if err != nil {
		_ = conn.WriteJSON(gin.H{"type": "error", "message": err.Error()})
		return
	}
	defer h.manager.Remove(sess.ID)

	err = conn.WriteJSON(gin.H{
		"type":       "connection_established",
		"message":    "WebSocket connected. Ready to receive frames.",
		"session_id": sess.ID,
		"settings": gin.H{
			"max_frame_rate":       h.cfg.Stream.MaxFrameRate,
			"match_threshold":      h.cfg.Recognition.MatchThreshold,
			"confidence_threshold": h.cfg.Recognition.ConfidenceThreshold,
			"min_face_size":        h.cfg.Detector.MinFaceSize,
		},
	})
	if err != nil {
		return
	}

	ctx := c.Request.Context()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warnf("Websocket read error (session %s)", sess.ID)
			} else {
				log.Infof("Client disconnected (session %s)", sess.ID)
			}
			return
		}

		switch msg.Type {
		case "frame":
			h.handleFrame(ctx, conn, sess, msg)

		case "ping":
			_ = conn.WriteJSON(gin.H{"type": "pong", "timestamp": msg.Timestamp})

		case "reset":
			sess.Reset()
			_ = conn.WriteJSON(gin.H{"type": "reset_confirmed", "message": "Tracking reset"})

		default:
			_ = conn.WriteJSON(gin.H{"type": "error", "message": "Unknown message type: " + msg.Type})
		}
	}
}

func (h *StreamHandler) handleFrame(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg clientMessage) {
	if msg.Data == "" {
		return
	}

	imageData, err := decodeBase64Image(msg.Data)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"type": "error", "message": "Invalid base64 image data", "frame_id": msg.FrameID})
		return
	}

	observations, err := h.detector.DetectAndEncode(ctx, imageData)
	if err != nil {
		// Detector failures abort the frame, never the session.
		log.WithError(err).Warnf("Frame detection failed (session %s)", sess.ID)
		_ = conn.WriteJSON(gin.H{"type": "error", "message": "Error processing frame: " + err.Error(), "frame_id": msg.FrameID})
		return
	}

	result, err := sess.ProcessFrame(ctx, observations)
	if err != nil {
		log.WithError(err).Warnf("Frame processing failed (session %s)", sess.ID)
		_ = conn.WriteJSON(gin.H{"type": "error", "message": "Error processing frame: " + err.Error(), "frame_id": msg.FrameID})
		return
	}
	if result.Skipped {
		return // rate limited, silently dropped like an unprocessed frame
	}

	faces := make([]faceResult, 0, len(result.Tracks))
	for _, track := range result.Tracks {
		faces = append(faces, trackToFaceResult(track))
	}

	_ = conn.WriteJSON(gin.H{
		"type":       "recognition_result",
		"frame_id":   msg.FrameID,
		"faces":      faces,
		"timestamp":  msg.Timestamp,
		"session_id": sess.ID,
	})
}

func trackToFaceResult(track tracking.Track) faceResult {
	face := faceResult{
		TrackID:   track.ID,
		BBox:      [4]int{track.BBox.Top, track.BBox.Right, track.BBox.Bottom, track.BBox.Left},
		IsUnknown: track.Identity == nil,
	}
	if track.Identity != nil {
		userID := track.Identity.UserID
		face.UserID = &userID
		face.UserName = track.Identity.Name
		face.Confidence = track.Identity.Confidence
	}
	return face
}
