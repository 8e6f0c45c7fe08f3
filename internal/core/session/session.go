package session

import (
	"context"
	"fmt"
	"time"

	"facestream-go/internal/cache"
	"facestream-go/internal/core/models"
	"facestream-go/internal/core/recognition"
	"facestream-go/internal/core/tracking"
	"facestream-go/internal/db/repository"
	"facestream-go/internal/integrations/detector"
	"facestream-go/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
)

// Session is one streaming client connection. It owns a private FaceTracker
// with its own track-ID namespace and processes its frames strictly
// sequentially; sessions share no mutable state with each other.
type Session struct {
	ID        string
	CreatedAt time.Time

	tracker   *tracking.Tracker
	matcher   *recognition.Matcher
	repo      repository.Repository
	cache     *cache.Service
	publisher *mqtt.Publisher

	confidenceThreshold float64
	minFrameInterval    time.Duration
	lastFrame           time.Time
	frameCount          int64
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	Tracks  []tracking.Track
	Skipped bool // frame dropped by rate limiting
}

// ProcessFrame runs the per-frame pipeline over the detector's
// observations: resolve each face against the gallery, feed the detections
// to the tracker, persist a recognition log per live track and publish the
// corresponding events. The returned snapshots are this frame's active
// tracks.
func (s *Session) ProcessFrame(ctx context.Context, observations []detector.Observation) (FrameResult, error) {
	now := time.Now()
	if s.minFrameInterval > 0 && !s.lastFrame.IsZero() && now.Sub(s.lastFrame) < s.minFrameInterval {
		return FrameResult{Skipped: true}, nil
	}
	s.lastFrame = now
	s.frameCount++

	// Gallery is read as a whole snapshot per frame; enrollment changes
	// become visible on the next frame, never mid-frame.
	gallery, err := s.loadGallery(ctx)
	if err != nil {
		return FrameResult{}, fmt.Errorf("failed to load gallery: %w", err)
	}

	detections := make([]tracking.Detection, 0, len(observations))
	for _, obs := range observations {
		detections = append(detections, tracking.Detection{
			BBox:      obs.BBox,
			Embedding: obs.Embedding,
			Identity:  s.resolveIdentity(ctx, obs.Embedding, gallery),
		})
	}

	tracks := s.tracker.UpdateTracks(detections)

	for _, track := range tracks {
		s.logRecognition(track)
		s.publishRecognition(track)
	}

	return FrameResult{Tracks: tracks}, nil
}

// loadGallery returns the current gallery snapshot, consulting the cache
// first. Enrollment and user changes invalidate the cached snapshot, so a
// hit is never stale.
func (s *Session) loadGallery(ctx context.Context) ([]recognition.GalleryEntry, error) {
	if cached, ok := s.cache.GetGallery(ctx); ok {
		return cached, nil
	}

	gallery, err := s.repo.GalleryEntries()
	if err != nil {
		return nil, err
	}
	s.cache.CacheGallery(ctx, gallery)
	return gallery, nil
}

// resolveIdentity matches one face embedding against the gallery, consulting
// the recognition cache first. Returns nil for an unknown face.
func (s *Session) resolveIdentity(ctx context.Context, embedding recognition.Embedding, gallery []recognition.GalleryEntry) *tracking.Identity {
	hash := cache.EmbeddingHash(embedding)
	if cached, ok := s.cache.GetRecognitionResult(ctx, hash); ok {
		return &tracking.Identity{
			UserID:     cached.UserID,
			Name:       cached.UserName,
			Confidence: cached.Confidence,
		}
	}

	candidate, found := s.matcher.FindBestMatch(embedding, gallery, s.confidenceThreshold)
	if !found {
		return nil
	}

	s.cache.CacheRecognitionResult(ctx, hash, cache.RecognitionResult{
		UserID:     candidate.IdentityID,
		UserName:   candidate.Name,
		Confidence: candidate.Confidence,
	})

	return &tracking.Identity{
		UserID:     candidate.IdentityID,
		Name:       candidate.Name,
		Confidence: candidate.Confidence,
	}
}

func (s *Session) logRecognition(track tracking.Track) {
	entry := &models.RecognitionLog{
		TrackID:   track.ID,
		IsUnknown: track.Identity == nil,
		SessionID: s.ID,
		FramePosition: fmt.Sprintf("%d,%d,%d,%d",
			track.BBox.Left, track.BBox.Top, track.BBox.Width(), track.BBox.Height()),
	}
	if track.Identity != nil {
		userID := track.Identity.UserID
		entry.UserID = &userID
		entry.Confidence = track.Identity.Confidence
	}

	if err := s.repo.SaveRecognitionLog(entry); err != nil {
		log.WithError(err).Error("Failed to save recognition log")
	}
}

func (s *Session) publishRecognition(track tracking.Track) {
	event := mqtt.RecognitionEvent{
		SessionID: s.ID,
		TrackID:   track.ID,
		IsUnknown: track.Identity == nil,
		Timestamp: time.Now(),
	}
	if track.Identity != nil {
		userID := track.Identity.UserID
		event.UserID = &userID
		event.UserName = track.Identity.Name
		event.Confidence = track.Identity.Confidence
	}
	s.publisher.PublishRecognition(event)
}

// ActiveTracks returns the tracker's current live tracks.
func (s *Session) ActiveTracks() []tracking.Track {
	return s.tracker.ActiveTracks()
}

// Reset clears all tracking state; track IDs restart at 1. This is a hard
// session boundary requested by the client.
func (s *Session) Reset() {
	s.tracker.Reset()
	log.Infof("Session %s tracking reset", s.ID)
}

// FrameCount returns the number of frames processed so far.
func (s *Session) FrameCount() int64 {
	return s.frameCount
}
