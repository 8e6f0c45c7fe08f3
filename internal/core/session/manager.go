package session

import (
	"fmt"
	"sync"
	"time"

	"facestream-go/config"
	"facestream-go/internal/cache"
	"facestream-go/internal/core/recognition"
	"facestream-go/internal/core/tracking"
	"facestream-go/internal/db/repository"
	"facestream-go/internal/integrations/mqtt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Manager creates and tracks the active streaming sessions. Session
// lifecycle is explicit: Create on connect, Remove on disconnect.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg       *config.Config
	matcher   *recognition.Matcher
	repo      repository.Repository
	cache     *cache.Service
	publisher *mqtt.Publisher
}

// NewManager creates a session manager wired to the shared collaborators.
func NewManager(cfg *config.Config, matcher *recognition.Matcher, repo repository.Repository, cacheService *cache.Service, publisher *mqtt.Publisher) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		cfg:       cfg,
		matcher:   matcher,
		repo:      repo,
		cache:     cacheService,
		publisher: publisher,
	}
}

// Create starts a new session with a fresh tracker and a unique ID.
// Fails when the configured connection cap is reached.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Stream.MaxConnections > 0 && len(m.sessions) >= m.cfg.Stream.MaxConnections {
		return nil, fmt.Errorf("maximum number of sessions reached (%d)", m.cfg.Stream.MaxConnections)
	}

	var minInterval time.Duration
	if m.cfg.Stream.MaxFrameRate > 0 {
		minInterval = time.Second / time.Duration(m.cfg.Stream.MaxFrameRate)
	}

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		tracker: tracking.NewTracker(tracking.Config{
			MaxTrackAge:    time.Duration(m.cfg.Tracking.MaxTrackAgeSeconds * float64(time.Second)),
			LostGrace:      time.Duration(m.cfg.Tracking.LostGraceSeconds * float64(time.Second)),
			ScoreThreshold: m.cfg.Tracking.ScoreThreshold,
		}),
		matcher:             m.matcher,
		repo:                m.repo,
		cache:               m.cache,
		publisher:           m.publisher,
		confidenceThreshold: m.cfg.Recognition.ConfidenceThreshold,
		minFrameInterval:    minInterval,
	}

	m.sessions[s.ID] = s
	log.Infof("Session %s created. Active sessions: %d", s.ID, len(m.sessions))
	return s, nil
}

// Get returns the session with the given ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Remove discards a session. In-flight computations of the session finish
// on their own goroutine and their results are simply dropped.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		log.Infof("Session %s removed. Active sessions: %d", id, len(m.sessions))
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
