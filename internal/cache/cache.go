package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"facestream-go/config"
	"facestream-go/internal/core/recognition"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	recognitionKeyPrefix = "recognition:"
	galleryKey           = "gallery:snapshot"
)

// RecognitionResult is the cached outcome of a gallery lookup for one
// query embedding.
type RecognitionResult struct {
	UserID     uint    `json:"user_id"`
	UserName   string  `json:"user_name"`
	Confidence float64 `json:"confidence"`
}

// Service wraps an optional Redis cache for recognition results. When
// disabled (by config or a failed connection) every operation is a cheap
// no-op; caching is an accelerator, never a dependency.
type Service struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewService connects to Redis if caching is enabled. A connection failure
// disables caching with a warning instead of failing startup.
func NewService(cfg config.RedisConfig) *Service {
	s := &Service{ttl: time.Duration(cfg.TTLSeconds) * time.Second}

	if !cfg.Enabled || cfg.URL == "" {
		log.Info("Redis caching disabled")
		return s
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Warnf("Invalid Redis URL: %v. Caching disabled.", err)
		return s
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis connection failed: %v. Caching disabled.", err)
		return s
	}

	s.client = client
	s.enabled = true
	log.Info("Redis cache connected successfully")
	return s
}

// Enabled reports whether the cache is active.
func (s *Service) Enabled() bool {
	return s.enabled
}

// EmbeddingHash derives a stable cache key from an embedding's bytes.
func EmbeddingHash(embedding recognition.Embedding) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, v := range embedding {
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetRecognitionResult returns a cached lookup result, if present.
func (s *Service) GetRecognitionResult(ctx context.Context, hash string) (*RecognitionResult, bool) {
	if !s.enabled {
		return nil, false
	}

	data, err := s.client.Get(ctx, recognitionKeyPrefix+hash).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).Debug("Failed to read cached recognition result")
		}
		return nil, false
	}

	var result RecognitionResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.WithError(err).Debug("Failed to decode cached recognition result")
		return nil, false
	}
	return &result, true
}

// CacheRecognitionResult stores a lookup result with the configured TTL.
func (s *Service) CacheRecognitionResult(ctx context.Context, hash string, result RecognitionResult) {
	if !s.enabled {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, recognitionKeyPrefix+hash, data, s.ttl).Err(); err != nil {
		log.WithError(err).Debug("Failed to cache recognition result")
	}
}

// GetGallery returns the cached gallery snapshot, if present.
func (s *Service) GetGallery(ctx context.Context) ([]recognition.GalleryEntry, bool) {
	if !s.enabled {
		return nil, false
	}

	data, err := s.client.Get(ctx, galleryKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).Debug("Failed to read cached gallery snapshot")
		}
		return nil, false
	}

	var entries []recognition.GalleryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.WithError(err).Debug("Failed to decode cached gallery snapshot")
		return nil, false
	}
	return entries, true
}

// CacheGallery stores the gallery snapshot with the configured TTL.
func (s *Service) CacheGallery(ctx context.Context, entries []recognition.GalleryEntry) {
	if !s.enabled {
		return
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, galleryKey, data, s.ttl).Err(); err != nil {
		log.WithError(err).Debug("Failed to cache gallery snapshot")
	}
}

// InvalidateRecognitions drops the gallery snapshot and all cached lookup
// results. Called when the gallery changes (enrollment, user
// deletion/deactivation) so matches never reflect stale enrollment state.
func (s *Service) InvalidateRecognitions(ctx context.Context) {
	if !s.enabled {
		return
	}

	if err := s.client.Del(ctx, galleryKey).Err(); err != nil {
		log.WithError(err).Warn("Failed to invalidate gallery snapshot")
	}

	iter := s.client.Scan(ctx, 0, recognitionKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.WithError(err).Warn("Failed to scan recognition cache keys")
		return
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			log.WithError(err).Warn("Failed to invalidate recognition cache")
			return
		}
		log.Debugf("Invalidated %d cached recognition results", len(keys))
	}
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
