package repository

import (
	"errors"
	"time"

	"facestream-go/internal/core/models"
	"facestream-go/internal/core/recognition"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LogFilter narrows recognition-log queries.
type LogFilter struct {
	UserID      *uint
	SessionID   string
	UnknownOnly bool
	Limit       int
	Offset      int
}

// Repository defines the database operations used by the rest of the system.
type Repository interface {
	// User methods
	GetUserByID(id uint) (*models.User, error)
	GetUsers(limit, offset int) ([]models.User, int64, error)
	SaveUser(user *models.User) error
	DeleteUser(id uint) error

	// Embedding methods
	GetEmbeddingByID(id uint) (*models.FaceEmbedding, error)
	GetEmbeddingsByUserID(userID uint) ([]models.FaceEmbedding, error)
	SaveEmbedding(embedding *models.FaceEmbedding) error
	DeleteEmbedding(id uint) error

	// GalleryEntries loads all embeddings of active users as the match-time
	// gallery snapshot. Rows with a corrupt embedding are skipped.
	GalleryEntries() ([]recognition.GalleryEntry, error)

	// Recognition-log methods
	SaveRecognitionLog(entry *models.RecognitionLog) error
	GetRecognitionLogs(filter LogFilter) ([]models.RecognitionLog, int64, error)
	DeleteLogsBefore(cutoff time.Time) (int64, error)

	// Statistics
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implements Repository over the GORM SQLite connection.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a new SQLite repository instance.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// User methods

// GetUserByID fetches a user by ID, or nil if not found.
func (r *SQLiteRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	result := r.db.Preload("FaceEmbeddings").First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUsers fetches users with pagination.
func (r *SQLiteRepository) GetUsers(limit, offset int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	r.db.Model(&models.User{}).Count(&total)
	result := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return users, total, nil
}

// SaveUser persists a user.
func (r *SQLiteRepository) SaveUser(user *models.User) error {
	return r.db.Save(user).Error
}

// DeleteUser deletes a user and, via cascade, their embeddings.
func (r *SQLiteRepository) DeleteUser(id uint) error {
	return r.db.Select("FaceEmbeddings").Delete(&models.User{Model: gorm.Model{ID: id}}).Error
}

// Embedding methods

// GetEmbeddingByID fetches an embedding by ID, or nil if not found.
func (r *SQLiteRepository) GetEmbeddingByID(id uint) (*models.FaceEmbedding, error) {
	var embedding models.FaceEmbedding
	result := r.db.First(&embedding, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &embedding, nil
}

// GetEmbeddingsByUserID fetches all embeddings enrolled for one user.
func (r *SQLiteRepository) GetEmbeddingsByUserID(userID uint) ([]models.FaceEmbedding, error) {
	var embeddings []models.FaceEmbedding
	result := r.db.Where("user_id = ?", userID).Find(&embeddings)
	if result.Error != nil {
		return nil, result.Error
	}
	return embeddings, nil
}

// SaveEmbedding persists an embedding.
func (r *SQLiteRepository) SaveEmbedding(embedding *models.FaceEmbedding) error {
	return r.db.Save(embedding).Error
}

// DeleteEmbedding deletes an embedding.
func (r *SQLiteRepository) DeleteEmbedding(id uint) error {
	return r.db.Delete(&models.FaceEmbedding{}, id).Error
}

// GalleryEntries loads the current gallery snapshot: every embedding owned
// by an active user, decoded and validated.
func (r *SQLiteRepository) GalleryEntries() ([]recognition.GalleryEntry, error) {
	var embeddings []models.FaceEmbedding
	result := r.db.Joins("JOIN users ON users.id = face_embeddings.user_id").
		Where("users.is_active = ? AND users.deleted_at IS NULL", true).
		Preload("User").
		Find(&embeddings)
	if result.Error != nil {
		return nil, result.Error
	}

	entries := make([]recognition.GalleryEntry, 0, len(embeddings))
	for i := range embeddings {
		vector, err := embeddings[i].Vector()
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable embedding %d", embeddings[i].ID)
			continue
		}
		entries = append(entries, recognition.GalleryEntry{
			EmbeddingID:  embeddings[i].ID,
			IdentityID:   embeddings[i].UserID,
			Name:         embeddings[i].User.Name,
			Embedding:    vector,
			CaptureAngle: embeddings[i].CaptureAngle,
			QualityScore: embeddings[i].QualityScore,
		})
	}
	return entries, nil
}

// Recognition-log methods

// SaveRecognitionLog persists a recognition event.
func (r *SQLiteRepository) SaveRecognitionLog(entry *models.RecognitionLog) error {
	return r.db.Save(entry).Error
}

// GetRecognitionLogs fetches logs matching the filter, newest first.
func (r *SQLiteRepository) GetRecognitionLogs(filter LogFilter) ([]models.RecognitionLog, int64, error) {
	query := r.db.Model(&models.RecognitionLog{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}
	if filter.UnknownOnly {
		query = query.Where("is_unknown = ?", true)
	}

	var total int64
	query.Count(&total)

	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	var logs []models.RecognitionLog
	result := query.Preload("User").
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&logs)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return logs, total, nil
}

// DeleteLogsBefore removes all recognition logs created before the cutoff
// and returns the number of deleted rows.
func (r *SQLiteRepository) DeleteLogsBefore(cutoff time.Time) (int64, error) {
	result := r.db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.RecognitionLog{})
	return result.RowsAffected, result.Error
}

// Statistics

// GetStatistics summarizes the stored data.
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return stats, err
	}
	r.db.Model(&models.User{}).Where("is_active = ?", true).Count(&stats.ActiveUsers)
	r.db.Model(&models.FaceEmbedding{}).Count(&stats.TotalEmbeddings)
	r.db.Model(&models.RecognitionLog{}).Count(&stats.TotalLogs)
	r.db.Model(&models.RecognitionLog{}).Where("is_unknown = ?", true).Count(&stats.UnknownLogs)
	r.db.Model(&models.RecognitionLog{}).Distinct("session_id").Count(&stats.DistinctSessions)

	var latest models.RecognitionLog
	if err := r.db.Order("created_at DESC").First(&latest).Error; err == nil {
		stats.LatestLogAt = latest.CreatedAt
	}

	return stats, nil
}
