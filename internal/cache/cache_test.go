package cache

import (
	"context"
	"testing"

	"facestream-go/config"
	"facestream-go/internal/core/recognition"
)

func TestEmbeddingHash(t *testing.T) {
	a := make(recognition.Embedding, recognition.EmbeddingDim)
	b := make(recognition.Embedding, recognition.EmbeddingDim)
	a[0], b[0] = 0.25, 0.25

	if EmbeddingHash(a) != EmbeddingHash(b) {
		t.Error("equal embeddings hash differently")
	}

	b[1] = 1e-9
	if EmbeddingHash(a) == EmbeddingHash(b) {
		t.Error("distinct embeddings collide")
	}

	if got := EmbeddingHash(a); len(got) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(got))
	}
}

func TestDisabledServiceIsNoOp(t *testing.T) {
	s := NewService(config.RedisConfig{Enabled: false})
	if s.Enabled() {
		t.Fatal("service enabled without configuration")
	}

	ctx := context.Background()
	s.CacheRecognitionResult(ctx, "abc", RecognitionResult{UserID: 1})
	if _, ok := s.GetRecognitionResult(ctx, "abc"); ok {
		t.Error("disabled cache returned a result")
	}
	s.CacheGallery(ctx, []recognition.GalleryEntry{{IdentityID: 1}})
	if _, ok := s.GetGallery(ctx); ok {
		t.Error("disabled cache returned a gallery snapshot")
	}
	s.InvalidateRecognitions(ctx)
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestInvalidRedisURLDisablesCache(t *testing.T) {
	s := NewService(config.RedisConfig{Enabled: true, URL: "://not-a-url"})
	if s.Enabled() {
		t.Error("service enabled despite invalid URL")
	}
}
