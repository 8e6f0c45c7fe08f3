package tracking

import (
	"sort"
	"time"

	"facestream-go/internal/core/recognition"

	log "github.com/sirupsen/logrus"
)

// Association scoring weights and default lifecycle windows.
const (
	iouWeight        = 0.6
	similarityWeight = 0.4

	DefaultMaxTrackAge    = 6 * time.Second
	DefaultLostGrace      = 1 * time.Second
	DefaultScoreThreshold = 0.3
)

// Identity is the resolved person bound to a track. A nil *Identity on a
// detection or track means the face is unknown.
type Identity struct {
	UserID     uint    `json:"user_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Detection is one face observed in the current frame: where it is, what it
// looks like, and optionally who the gallery says it is.
type Detection struct {
	BBox      BBox
	Embedding recognition.Embedding
	Identity  *Identity
}

// Track is a read-only snapshot of one tracked face, as returned by
// UpdateTracks and ActiveTracks.
type Track struct {
	ID         int                   `json:"track_id"`
	BBox       BBox                  `json:"bbox"`
	Embedding  recognition.Embedding `json:"-"`
	Identity   *Identity             `json:"identity,omitempty"`
	FirstSeen  time.Time             `json:"first_seen"`
	LastSeen   time.Time             `json:"last_seen"`
	FrameCount int                   `json:"frame_count"`
}

// track is the mutable record behind a Track snapshot. It is owned
// exclusively by its Tracker and mutated only inside the update step.
type track struct {
	id         int
	bbox       BBox
	embedding  recognition.Embedding // fixed at creation; association uses this reference
	identity   *Identity
	firstSeen  time.Time
	lastSeen   time.Time
	frameCount int
	lost       bool
}

func (t *track) snapshot() Track {
	var identity *Identity
	if t.identity != nil {
		id := *t.identity
		identity = &id
	}
	return Track{
		ID:         t.id,
		BBox:       t.bbox,
		Embedding:  t.embedding,
		Identity:   identity,
		FirstSeen:  t.firstSeen,
		LastSeen:   t.lastSeen,
		FrameCount: t.frameCount,
	}
}

// Config holds the tracker's lifecycle and association parameters.
type Config struct {
	// MaxTrackAge is a hard ceiling on track lifetime. A track older than
	// this is evicted even while still matching every frame.
	MaxTrackAge time.Duration
	// LostGrace is how long an unmatched track survives before eviction.
	LostGrace time.Duration
	// ScoreThreshold is the minimum combined IoU+similarity score (strictly
	// exceeded) for a detection to associate with an existing track.
	ScoreThreshold float64
}

// Tracker stitches per-frame face detections into persistent tracks within
// one streaming session. It is not safe for concurrent use: each session
// owns exactly one Tracker and feeds it frames strictly sequentially.
type Tracker struct {
	cfg    Config
	tracks map[int]*track
	nextID int
	now    func() time.Time
}

// NewTracker creates a Tracker for a new session. Zero config fields fall
// back to the defaults (6s max age, 1s lost grace, 0.3 score threshold).
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxTrackAge <= 0 {
		cfg.MaxTrackAge = DefaultMaxTrackAge
	}
	if cfg.LostGrace <= 0 {
		cfg.LostGrace = DefaultLostGrace
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int]*track),
		nextID: 1,
		now:    time.Now,
	}
}

// UpdateTracks processes one frame's detections: each detection either
// re-activates the best-scoring unclaimed track or starts a new one, stale
// tracks are evicted, and the surviving active tracks are returned.
//
// Association is greedy per detection, not an optimal bipartite matching.
// Frame-to-frame motion is small and near-duplicate scores are rare, so
// greedy assignment with deterministic tie-breaking is sufficient.
func (t *Tracker) UpdateTracks(detections []Detection) []Track {
	now := t.now()

	// Tentatively mark every track lost; matching below re-activates.
	for _, tr := range t.tracks {
		tr.lost = true
	}

	// Iterate candidate tracks in ID order so ties break deterministically.
	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	claimed := make(map[int]bool)

	for _, d := range detections {
		var best *track
		bestScore := 0.0

		for _, id := range ids {
			if claimed[id] {
				continue
			}
			tr := t.tracks[id]

			iou := IoU(d.BBox, tr.bbox)
			similarity := 1.0 / (1.0 + recognition.EuclideanDistance(d.Embedding, tr.embedding))
			score := iouWeight*iou + similarityWeight*similarity

			if score > t.cfg.ScoreThreshold && score > bestScore {
				bestScore = score
				best = tr
			}
		}

		if best != nil {
			best.bbox = d.BBox
			best.lastSeen = now
			best.frameCount++
			best.lost = false
			if d.Identity != nil {
				id := *d.Identity
				best.identity = &id
			}
			claimed[best.id] = true
		} else {
			tr := &track{
				id:         t.nextID,
				bbox:       d.BBox,
				embedding:  d.Embedding,
				firstSeen:  now,
				lastSeen:   now,
				frameCount: 1,
			}
			if d.Identity != nil {
				id := *d.Identity
				tr.identity = &id
			}
			t.nextID++
			t.tracks[tr.id] = tr
			claimed[tr.id] = true
			log.Debugf("Created track %d at %+v", tr.id, tr.bbox)
		}
	}

	t.cleanup(now)
	return t.active()
}

// ActiveTracks evicts stale tracks and returns the current active set.
func (t *Tracker) ActiveTracks() []Track {
	t.cleanup(t.now())
	return t.active()
}

// Reset clears all tracks and restarts the ID counter at 1. Called at
// session start and on explicit client reset; track IDs are never stable
// across a reset.
func (t *Tracker) Reset() {
	t.tracks = make(map[int]*track)
	t.nextID = 1
	log.Debug("Face tracking reset")
}

func (t *Tracker) cleanup(now time.Time) {
	for id, tr := range t.tracks {
		age := now.Sub(tr.firstSeen)
		sinceSeen := now.Sub(tr.lastSeen)
		if age > t.cfg.MaxTrackAge || (tr.lost && sinceSeen > t.cfg.LostGrace) {
			delete(t.tracks, id)
			log.Debugf("Removed track %d (age %s, unseen %s)", id, age, sinceSeen)
		}
	}
}

func (t *Tracker) active() []Track {
	ids := make([]int, 0, len(t.tracks))
	for id, tr := range t.tracks {
		if !tr.lost {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	out := make([]Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.tracks[id].snapshot())
	}
	return out
}
