package handlers

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"facestream-go/config"
	"facestream-go/internal/cache"
	"facestream-go/internal/core/models"
	"facestream-go/internal/core/recognition"
	"facestream-go/internal/core/session"
	"facestream-go/internal/db/repository"
	"facestream-go/internal/integrations/detector"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// APIHandler handles the REST API surface of the system.
type APIHandler struct {
	repo     repository.Repository
	cfg      *config.Config
	detector *detector.Client
	matcher  *recognition.Matcher
	cache    *cache.Service
	sessions *session.Manager
}

// NewAPIHandler creates a new API handler with its dependencies.
func NewAPIHandler(repo repository.Repository, cfg *config.Config, detectorClient *detector.Client, matcher *recognition.Matcher, cacheService *cache.Service, sessions *session.Manager) *APIHandler {
	return &APIHandler{
		repo:     repo,
		cfg:      cfg,
		detector: detectorClient,
		matcher:  matcher,
		cache:    cacheService,
		sessions: sessions,
	}
}

// RegisterRoutes registers all REST API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// User endpoints
	router.GET("/users", h.ListUsers)
	router.POST("/users", h.CreateUser)
	router.GET("/users/:id", h.GetUser)
	router.PUT("/users/:id", h.UpdateUser)
	router.DELETE("/users/:id", h.DeleteUser)

	// Enrollment endpoints
	router.POST("/users/:id/faces", h.EnrollFace)
	router.GET("/users/:id/faces", h.ListFaces)
	router.DELETE("/faces/:id", h.DeleteFace)

	// Recognition endpoints
	router.POST("/recognize", h.Recognize)
	router.POST("/search/similar", h.SearchSimilar)

	// Log endpoints
	router.GET("/logs", h.ListLogs)
	router.GET("/logs/stats", h.LogStats)

	// System endpoints
	router.GET("/status", h.GetStatus)
}

// userRequest is the JSON body for creating or updating a user.
type userRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	EmployeeID string `json:"employee_id"`
	IsActive   *bool  `json:"is_active"`
}

// ListUsers returns registered users with pagination.
func (h *APIHandler) ListUsers(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	users, total, err := h.repo.GetUsers(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list users: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateUser registers a new user.
func (h *APIHandler) CreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	user := &models.User{
		Name:       req.Name,
		Email:      req.Email,
		EmployeeID: req.EmployeeID,
		IsActive:   true,
	}
	if err := h.repo.SaveUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create user: %v", err)})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// GetUser returns one user with their enrolled faces.
func (h *APIHandler) GetUser(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser updates a user's fields. Deactivating a user removes them from
// the matching gallery on the next frame.
func (h *APIHandler) UpdateUser(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}

	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.EmployeeID != "" {
		user.EmployeeID = req.EmployeeID
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := h.repo.SaveUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to update user: %v", err)})
		return
	}

	h.cache.InvalidateRecognitions(c.Request.Context())
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes a user and all of their enrolled embeddings.
func (h *APIHandler) DeleteUser(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteUser(user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete user: %v", err)})
		return
	}

	h.cache.InvalidateRecognitions(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// EnrollFace extracts an embedding from an uploaded image and enrolls it
// for the user. When the image contains several faces the largest one is
// enrolled; an image without a usable face is rejected.
func (h *APIHandler) EnrollFace(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to read image data: %v", err)})
		return
	}

	observations, err := h.detector.DetectAndEncode(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Face detection failed: %v", err)})
		return
	}
	if len(observations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No usable face detected in image"})
		return
	}

	best := observations[0]
	for _, obs := range observations[1:] {
		if obs.BBox.Area() > best.BBox.Area() {
			best = obs
		}
	}

	embeddingJSON, err := models.EmbeddingJSON(best.Embedding)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid embedding: %v", err)})
		return
	}

	embedding := &models.FaceEmbedding{
		UserID:       user.ID,
		Embedding:    embeddingJSON,
		CaptureAngle: c.PostForm("capture_angle"),
		QualityScore: best.Confidence,
	}
	if err := h.repo.SaveEmbedding(embedding); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save embedding: %v", err)})
		return
	}

	h.cache.InvalidateRecognitions(c.Request.Context())
	log.Infof("Enrolled new face for user %q (embedding %d)", user.Name, embedding.ID)

	c.JSON(http.StatusCreated, embedding)
}

// ListFaces returns the embeddings enrolled for a user.
func (h *APIHandler) ListFaces(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}

	embeddings, err := h.repo.GetEmbeddingsByUserID(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list embeddings: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"faces": embeddings, "count": len(embeddings)})
}

// DeleteFace removes one enrolled embedding.
func (h *APIHandler) DeleteFace(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid face ID"})
		return
	}

	embedding, err := h.repo.GetEmbeddingByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load embedding: %v", err)})
		return
	}
	if embedding == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Face not found"})
		return
	}

	if err := h.repo.DeleteEmbedding(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete embedding: %v", err)})
		return
	}

	h.cache.InvalidateRecognitions(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Face deleted"})
}

// Recognize runs a one-shot identification over an uploaded image and
// returns the best gallery match per detected face.
func (h *APIHandler) Recognize(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to read image data: %v", err)})
		return
	}

	observations, err := h.detector.DetectAndEncode(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Face detection failed: %v", err)})
		return
	}

	gallery, err := h.repo.GalleryEntries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load gallery: %v", err)})
		return
	}

	results := make([]gin.H, 0, len(observations))
	for _, obs := range observations {
		result := gin.H{
			"bbox": []int{obs.BBox.Top, obs.BBox.Right, obs.BBox.Bottom, obs.BBox.Left},
		}
		if candidate, found := h.matcher.FindBestMatch(obs.Embedding, gallery, h.cfg.Recognition.ConfidenceThreshold); found {
			result["user_id"] = candidate.IdentityID
			result["user_name"] = candidate.Name
			result["confidence"] = candidate.Confidence
			result["is_unknown"] = false
		} else {
			result["is_unknown"] = true
		}
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{"faces": results, "count": len(results)})
}

// searchRequest is the JSON body for similarity search: either a raw
// embedding or a base64-encoded image.
type searchRequest struct {
	Embedding []float64 `json:"embedding"`
	Image     string    `json:"image"`
	Threshold float64   `json:"threshold"`
	Limit     int       `json:"limit"`
}

// SearchSimilar finds enrolled faces similar to the query, sorted by
// confidence descending. Unlike Recognize this does not deduplicate by
// identity; it answers "who looks like this".
func (h *APIHandler) SearchSimilar(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var query recognition.Embedding
	switch {
	case len(req.Embedding) > 0:
		query = recognition.Embedding(req.Embedding)
		if err := query.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	case req.Image != "":
		imageData, err := decodeBase64Image(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid base64 image data"})
			return
		}
		observations, err := h.detector.DetectAndEncode(c.Request.Context(), imageData)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Face detection failed: %v", err)})
			return
		}
		if len(observations) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No usable face detected in image"})
			return
		}
		query = observations[0].Embedding
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either embedding or image is required"})
		return
	}

	limit := req.Limit
	if limit <= 0 || limit > 50 {
		limit = h.cfg.Recognition.SearchTopK
	}

	gallery, err := h.repo.GalleryEntries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load gallery: %v", err)})
		return
	}

	matches := h.matcher.FindAllMatches(query, gallery, limit)
	if req.Threshold > 0 {
		filtered := matches[:0]
		for _, m := range matches {
			if m.Confidence >= req.Threshold {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

// ListLogs returns recognition events, newest first, with optional filters.
func (h *APIHandler) ListLogs(c *gin.Context) {
	filter := repository.LogFilter{
		SessionID:   c.Query("session_id"),
		UnknownOnly: c.Query("unknown_only") == "true",
		Limit:       queryInt(c, "limit", 50),
		Offset:      queryInt(c, "offset", 0),
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		userID := uint(id)
		filter.UserID = &userID
	}

	logs, total, err := h.repo.GetRecognitionLogs(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list logs: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// LogStats summarizes the stored recognition data.
func (h *APIHandler) LogStats(c *gin.Context) {
	stats, err := h.repo.GetStatistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load statistics: %v", err)})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// userFromPath resolves the :id path parameter to a user, writing the
// error response itself when resolution fails.
func (h *APIHandler) userFromPath(c *gin.Context) (*models.User, bool) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return nil, false
	}

	user, err := h.repo.GetUserByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load user: %v", err)})
		return nil, false
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil, false
	}
	return user, true
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// decodeBase64Image decodes base64 image data, tolerating a data-URL prefix.
func decodeBase64Image(data string) ([]byte, error) {
	if idx := strings.Index(data, ","); idx != -1 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}
