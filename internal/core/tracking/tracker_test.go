package tracking

import (
	"testing"
	"time"

	"facestream-go/internal/core/recognition"
)

func testEmbedding(values ...float64) recognition.Embedding {
	e := make(recognition.Embedding, recognition.EmbeddingDim)
	copy(e, values)
	return e
}

// newTestTracker returns a tracker with a controllable clock.
func newTestTracker() (*Tracker, *time.Time) {
	tr := NewTracker(Config{})
	now := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestUpdateTracksContinuity(t *testing.T) {
	tr, now := newTestTracker()
	embedding := testEmbedding(0.1, 0.2)

	tracks := tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 100, Right: 200, Bottom: 200, Left: 100},
		Embedding: embedding,
	}})
	if len(tracks) != 1 {
		t.Fatalf("frame 1: %d tracks, want 1", len(tracks))
	}
	if tracks[0].ID != 1 {
		t.Errorf("first track ID = %d, want 1", tracks[0].ID)
	}
	if tracks[0].FrameCount != 1 {
		t.Errorf("frame 1: FrameCount = %d, want 1", tracks[0].FrameCount)
	}

	// Small shift, same embedding: must re-associate to the same track.
	*now = now.Add(200 * time.Millisecond)
	tracks = tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 105, Right: 205, Bottom: 205, Left: 105},
		Embedding: embedding,
	}})
	if len(tracks) != 1 {
		t.Fatalf("frame 2: %d tracks, want 1", len(tracks))
	}
	if tracks[0].ID != 1 {
		t.Errorf("frame 2: track ID = %d, want 1 (continuity)", tracks[0].ID)
	}
	if tracks[0].FrameCount != 2 {
		t.Errorf("frame 2: FrameCount = %d, want 2", tracks[0].FrameCount)
	}
	if tracks[0].BBox.Top != 105 {
		t.Errorf("frame 2: bbox not updated, top = %d", tracks[0].BBox.Top)
	}
}

func TestUpdateTracksNewTrackForDistinctFace(t *testing.T) {
	tr, now := newTestTracker()

	tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 100, Right: 200, Bottom: 200, Left: 100},
		Embedding: testEmbedding(0.1),
	}})

	// A second, disjoint face in the next frame starts a new track; the
	// first face is still present and keeps its own track.
	*now = now.Add(200 * time.Millisecond)
	tracks := tr.UpdateTracks([]Detection{
		{BBox: BBox{Top: 100, Right: 200, Bottom: 200, Left: 100}, Embedding: testEmbedding(0.1)},
		{BBox: BBox{Top: 400, Right: 600, Bottom: 500, Left: 500}, Embedding: testEmbedding(3, 3, 3)},
	})
	if len(tracks) != 2 {
		t.Fatalf("%d tracks, want 2", len(tracks))
	}
	if tracks[0].ID != 1 || tracks[1].ID != 2 {
		t.Errorf("track IDs = %d, %d, want 1, 2", tracks[0].ID, tracks[1].ID)
	}
}

func TestUpdateTracksClaimedTrackNotReused(t *testing.T) {
	tr, now := newTestTracker()
	embedding := testEmbedding(0.1)
	bbox := BBox{Top: 100, Right: 200, Bottom: 200, Left: 100}

	tr.UpdateTracks([]Detection{{BBox: bbox, Embedding: embedding}})

	// Two nearly identical detections: only one may claim the existing
	// track, the other must get a fresh ID.
	*now = now.Add(200 * time.Millisecond)
	tracks := tr.UpdateTracks([]Detection{
		{BBox: bbox, Embedding: embedding},
		{BBox: bbox, Embedding: embedding},
	})
	if len(tracks) != 2 {
		t.Fatalf("%d tracks, want 2", len(tracks))
	}
	if tracks[0].ID == tracks[1].ID {
		t.Error("both detections claimed the same track")
	}
}

func TestLostTrackExpires(t *testing.T) {
	tr, now := newTestTracker()

	tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 100, Right: 200, Bottom: 200, Left: 100},
		Embedding: testEmbedding(0.1),
	}})

	// Within the grace period the track is lost but not yet evicted, so an
	// empty frame returns no active tracks while the track can still come
	// back.
	*now = now.Add(500 * time.Millisecond)
	if tracks := tr.UpdateTracks(nil); len(tracks) != 0 {
		t.Errorf("empty frame returned %d active tracks, want 0", len(tracks))
	}

	*now = now.Add(200 * time.Millisecond)
	tracks := tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 100, Right: 200, Bottom: 200, Left: 100},
		Embedding: testEmbedding(0.1),
	}})
	if len(tracks) != 1 || tracks[0].ID != 1 {
		t.Fatalf("track did not survive the grace period: %+v", tracks)
	}

	// Mark it lost again, then let the grace period run out.
	*now = now.Add(200 * time.Millisecond)
	tr.UpdateTracks(nil)

	*now = now.Add(1500 * time.Millisecond)
	if tracks := tr.ActiveTracks(); len(tracks) != 0 {
		t.Errorf("ActiveTracks after grace = %d tracks, want 0", len(tracks))
	}
	tracks = tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 100, Right: 200, Bottom: 200, Left: 100},
		Embedding: testEmbedding(0.1),
	}})
	if len(tracks) != 1 || tracks[0].ID != 2 {
		t.Errorf("expired face did not get a fresh track: %+v", tracks)
	}
}

func TestMaxAgeEvictsContinuouslyMatchedTrack(t *testing.T) {
	tr, now := newTestTracker()
	det := Detection{
		BBox:      BBox{Top: 100, Right: 200, Bottom: 200, Left: 100},
		Embedding: testEmbedding(0.1),
	}

	tr.UpdateTracks([]Detection{det})

	// Re-match every 500ms; the track survives up to the age ceiling and
	// is then evicted even though it matched every frame.
	for elapsed := 500 * time.Millisecond; elapsed <= 6*time.Second; elapsed += 500 * time.Millisecond {
		*now = now.Add(500 * time.Millisecond)
		tracks := tr.UpdateTracks([]Detection{det})
		if len(tracks) != 1 || tracks[0].ID != 1 {
			t.Fatalf("track lost before age ceiling at %s: %+v", elapsed, tracks)
		}
	}

	*now = now.Add(500 * time.Millisecond) // age now 6.5s
	if tracks := tr.UpdateTracks([]Detection{det}); len(tracks) != 0 {
		t.Fatalf("track not evicted past age ceiling: %+v", tracks)
	}

	*now = now.Add(500 * time.Millisecond)
	tracks := tr.UpdateTracks([]Detection{det})
	if len(tracks) != 1 || tracks[0].ID != 2 {
		t.Errorf("face did not re-acquire a fresh track after eviction: %+v", tracks)
	}
}

func TestIdentityOverwrittenUnconditionally(t *testing.T) {
	tr, now := newTestTracker()
	embedding := testEmbedding(0.1)
	bbox := BBox{Top: 100, Right: 200, Bottom: 200, Left: 100}

	tr.UpdateTracks([]Detection{{
		BBox:      bbox,
		Embedding: embedding,
		Identity:  &Identity{UserID: 7, Name: "alice", Confidence: 0.97},
	}})

	// A later guess replaces the binding even at lower confidence.
	*now = now.Add(200 * time.Millisecond)
	tracks := tr.UpdateTracks([]Detection{{
		BBox:      bbox,
		Embedding: embedding,
		Identity:  &Identity{UserID: 9, Name: "bob", Confidence: 0.86},
	}})
	if tracks[0].Identity == nil || tracks[0].Identity.UserID != 9 {
		t.Errorf("identity = %+v, want user 9", tracks[0].Identity)
	}

	// A detection without a guess keeps the previous binding.
	*now = now.Add(200 * time.Millisecond)
	tracks = tr.UpdateTracks([]Detection{{BBox: bbox, Embedding: embedding}})
	if tracks[0].Identity == nil || tracks[0].Identity.UserID != 9 {
		t.Errorf("identity after guess-less frame = %+v, want user 9", tracks[0].Identity)
	}
}

func TestTrackEmbeddingFixedAtCreation(t *testing.T) {
	tr, now := newTestTracker()
	original := testEmbedding(0.1, 0.5)
	bbox := BBox{Top: 100, Right: 200, Bottom: 200, Left: 100}

	tr.UpdateTracks([]Detection{{BBox: bbox, Embedding: original}})

	*now = now.Add(200 * time.Millisecond)
	tracks := tr.UpdateTracks([]Detection{{BBox: bbox, Embedding: testEmbedding(0.11, 0.52)}})
	if len(tracks) != 1 {
		t.Fatalf("%d tracks, want 1", len(tracks))
	}
	if tracks[0].Embedding[1] != 0.5 {
		t.Error("track reference embedding was overwritten by a later frame")
	}
}

func TestReset(t *testing.T) {
	tr, _ := newTestTracker()

	tr.UpdateTracks([]Detection{
		{BBox: BBox{Top: 0, Right: 10, Bottom: 10, Left: 0}, Embedding: testEmbedding(0.1)},
		{BBox: BBox{Top: 50, Right: 90, Bottom: 90, Left: 50}, Embedding: testEmbedding(2, 2)},
	})

	tr.Reset()
	if tracks := tr.ActiveTracks(); len(tracks) != 0 {
		t.Errorf("ActiveTracks after Reset = %d, want 0", len(tracks))
	}

	tracks := tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 0, Right: 10, Bottom: 10, Left: 0},
		Embedding: testEmbedding(0.1),
	}})
	if len(tracks) != 1 || tracks[0].ID != 1 {
		t.Errorf("first track after Reset = %+v, want ID 1", tracks)
	}
}

func TestEmbeddingSimilarityRescuesLowOverlap(t *testing.T) {
	tr, now := newTestTracker()
	embedding := testEmbedding(0.1, 0.2)

	tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 100, Right: 200, Bottom: 200, Left: 100},
		Embedding: embedding,
	}})

	// The box jumped with no overlap, but the embedding is identical:
	// similarity contributes 0.4 * 1.0 = 0.4 > 0.3, so the track holds.
	*now = now.Add(200 * time.Millisecond)
	tracks := tr.UpdateTracks([]Detection{{
		BBox:      BBox{Top: 300, Right: 400, Bottom: 400, Left: 300},
		Embedding: embedding,
	}})
	if len(tracks) != 1 || tracks[0].ID != 1 {
		t.Errorf("identical embedding did not rescue association: %+v", tracks)
	}
}
