package recognition

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

// GalleryEntry is one enrolled (identity, embedding) pair. A single identity
// may own several entries captured from different angles.
type GalleryEntry struct {
	EmbeddingID  uint
	IdentityID   uint
	Name         string
	Embedding    Embedding
	CaptureAngle string
	QualityScore float64
}

// Candidate is a scored identity returned by the matcher.
type Candidate struct {
	IdentityID uint    `json:"identity_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Matcher searches a gallery of enrolled embeddings for the identity that
// best matches a query embedding. It holds no state beyond its comparator.
type Matcher struct {
	comparator *Comparator
}

// NewMatcher creates a Matcher on top of the given comparator.
func NewMatcher(comparator *Comparator) *Matcher {
	return &Matcher{comparator: comparator}
}

// Comparator exposes the underlying comparator, whose distance function is
// shared with the tracker.
func (m *Matcher) Comparator() *Comparator {
	return m.comparator
}

// FindBestMatch compares the query against every gallery entry and returns
// the best-matching identity, if its confidence reaches confidenceThreshold.
// For an identity enrolled from multiple angles only its highest-scoring
// entry counts: a live face should match whichever enrolled angle is
// closest, not be penalized by its worst one. An empty gallery yields no
// match, which is a normal outcome rather than an error.
func (m *Matcher) FindBestMatch(unknown Embedding, gallery []GalleryEntry, confidenceThreshold float64) (Candidate, bool) {
	if len(gallery) == 0 {
		return Candidate{}, false
	}

	// Best confidence per identity across all of its enrolled entries.
	bestPerIdentity := make(map[uint]Candidate)

	for _, entry := range gallery {
		isMatch, confidence := m.comparator.Compare(entry.Embedding, unknown)
		if !isMatch {
			continue
		}
		current, seen := bestPerIdentity[entry.IdentityID]
		if !seen || confidence > current.Confidence {
			bestPerIdentity[entry.IdentityID] = Candidate{
				IdentityID: entry.IdentityID,
				Name:       entry.Name,
				Confidence: confidence,
			}
		}
	}

	var best Candidate
	found := false
	for _, candidate := range bestPerIdentity {
		if !found || candidate.Confidence > best.Confidence {
			best = candidate
			found = true
		}
	}

	if !found || best.Confidence < confidenceThreshold {
		if found {
			log.Debugf("Best match %q below confidence threshold (%.4f < %.4f)", best.Name, best.Confidence, confidenceThreshold)
		}
		return Candidate{}, false
	}

	log.Debugf("Found match: %q (confidence: %.4f)", best.Name, best.Confidence)
	return best, true
}

// FindAllMatches returns every gallery entry that matches the query, sorted
// by confidence descending and truncated to topK. Entries are not
// deduplicated by identity; this is the similarity-search path, distinct
// from identity resolution.
func (m *Matcher) FindAllMatches(unknown Embedding, gallery []GalleryEntry, topK int) []Candidate {
	matches := make([]Candidate, 0, len(gallery))

	for _, entry := range gallery {
		isMatch, confidence := m.comparator.Compare(entry.Embedding, unknown)
		if !isMatch {
			continue
		}
		matches = append(matches, Candidate{
			IdentityID: entry.IdentityID,
			Name:       entry.Name,
			Confidence: confidence,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
