package models

import (
	"encoding/json"
	"fmt"
	"time"

	"facestream-go/internal/core/recognition"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a registered person in the system.
type User struct {
	gorm.Model
	Name       string         `gorm:"index;not null" json:"name"`
	Email      string         `gorm:"index" json:"email,omitempty"`
	EmployeeID string         `gorm:"index;size:100" json:"employee_id,omitempty"`
	ExtraData  datatypes.JSON `gorm:"type:json;null" json:"extra_data,omitempty"`
	IsActive   bool           `gorm:"not null;default:true;index" json:"is_active"`

	FaceEmbeddings  []FaceEmbedding  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	RecognitionLogs []RecognitionLog `gorm:"foreignKey:UserID" json:"-"`
}

// FaceEmbedding stores one enrolled 128-dimensional face vector. A user can
// have multiple embeddings captured from different angles and lighting.
type FaceEmbedding struct {
	gorm.Model
	UserID       uint           `gorm:"index;not null" json:"user_id"`
	Embedding    datatypes.JSON `gorm:"type:json;not null" json:"-"` // JSON array of 128 floats
	CaptureAngle string         `gorm:"size:50" json:"capture_angle,omitempty"`
	QualityScore float64        `json:"quality_score"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// Vector decodes the stored embedding into a validated 128-d vector.
func (f *FaceEmbedding) Vector() (recognition.Embedding, error) {
	var embedding recognition.Embedding
	if err := json.Unmarshal(f.Embedding, &embedding); err != nil {
		return nil, fmt.Errorf("failed to decode embedding %d: %w", f.ID, err)
	}
	if err := embedding.Validate(); err != nil {
		return nil, fmt.Errorf("embedding %d: %w", f.ID, err)
	}
	return embedding, nil
}

// EmbeddingJSON encodes a validated vector for storage.
func EmbeddingJSON(embedding recognition.Embedding) (datatypes.JSON, error) {
	if err := embedding.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	return datatypes.JSON(data), nil
}

// RecognitionLog records one recognition event for auditing and analytics.
// UserID is nil for unknown faces.
type RecognitionLog struct {
	gorm.Model
	UserID        *uint   `gorm:"index" json:"user_id,omitempty"`
	TrackID       int     `gorm:"index" json:"track_id"`
	Confidence    float64 `gorm:"not null" json:"confidence"`
	IsUnknown     bool    `gorm:"not null;default:false;index" json:"is_unknown"`
	FramePosition string  `gorm:"size:100" json:"frame_position,omitempty"` // "x,y,width,height"
	SessionID     string  `gorm:"size:100;index" json:"session_id,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// Statistics summarizes the stored users, embeddings and recognition events.
type Statistics struct {
	TotalUsers       int64     `json:"total_users"`
	ActiveUsers      int64     `json:"active_users"`
	TotalEmbeddings  int64     `json:"total_embeddings"`
	TotalLogs        int64     `json:"total_logs"`
	UnknownLogs      int64     `json:"unknown_logs"`
	LatestLogAt      time.Time `json:"latest_log_at"`
	DistinctSessions int64     `json:"distinct_sessions"`
}
