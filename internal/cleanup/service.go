package cleanup

import (
	"time"

	"facestream-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service handles the automatic cleanup of old recognition logs.
type Service struct {
	repo          repository.Repository
	retentionDays int
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates a new cleanup service. Returns nil when cleanup is
// disabled (retention_days <= 0).
func NewService(repo repository.Repository, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the
// cleanup cycle. Runs once immediately on start.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		s.RunCleanupCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Background cleanup routine stopped.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	close(s.stopChan)
}

// RunCleanupCycle deletes recognition logs older than the retention window.
func (s *Service) RunCleanupCycle() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.DeleteLogsBefore(cutoff)
	if err != nil {
		log.WithError(err).Error("Cleanup cycle failed")
		return
	}
	if deleted > 0 {
		log.Infof("Cleanup removed %d recognition logs older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
