package recognition

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// DefaultMatchThreshold is the combined-distance cutoff below which two
// embeddings count as the same person. Lower is stricter.
const DefaultMatchThreshold = 0.6

// Comparator decides whether two face embeddings belong to the same person
// and maps the distance between them to a calibrated [0,1] confidence.
// It is stateless and safe for concurrent use.
type Comparator struct {
	matchThreshold float64
}

// NewComparator creates a Comparator with the given match threshold.
// A non-positive threshold falls back to DefaultMatchThreshold.
func NewComparator(matchThreshold float64) *Comparator {
	if matchThreshold <= 0 {
		matchThreshold = DefaultMatchThreshold
	}
	return &Comparator{matchThreshold: matchThreshold}
}

// MatchThreshold returns the configured combined-distance cutoff.
func (c *Comparator) MatchThreshold() float64 {
	return c.matchThreshold
}

// Distance computes the combined distance between two embeddings:
// 0.7 * euclidean + 0.3 * cosine distance. If either vector has zero norm
// the cosine term is undefined and the euclidean distance is used alone.
func (c *Comparator) Distance(known, unknown Embedding) float64 {
	euclidean := EuclideanDistance(known, unknown)

	knownNorm := norm(known)
	unknownNorm := norm(unknown)
	if knownNorm == 0 || unknownNorm == 0 {
		return euclidean
	}

	cosineSimilarity := dot(known, unknown) / (knownNorm * unknownNorm)
	cosineDistance := (1.0 - cosineSimilarity) / 2.0

	return 0.7*euclidean + 0.3*cosineDistance
}

// Compare reports whether the two embeddings match and how confident the
// match is. Euclidean distance alone is magnitude-sensitive; blending in a
// direction-only cosine term stabilizes matches under lighting and scale
// variation. The piecewise confidence curve gives a steep "obviously same
// person" zone below 0.3 and a soft decay past the decision boundary.
func (c *Comparator) Compare(known, unknown Embedding) (bool, float64) {
	distance := c.Distance(known, unknown)
	isMatch := distance <= c.matchThreshold

	var confidence float64
	switch {
	case distance < 0.3:
		confidence = 0.95 + 0.05*(0.3-distance)/0.3
	case distance < 0.5:
		confidence = 0.80 + 0.15*(0.5-distance)/0.2
	case distance < c.matchThreshold:
		confidence = 0.70 + 0.10*(c.matchThreshold-distance)/(c.matchThreshold-0.5)
	default:
		confidence = math.Max(0.0, 0.70-(distance-c.matchThreshold)/c.matchThreshold)
	}

	confidence = math.Max(0.0, math.Min(1.0, confidence))

	log.Debugf("Face comparison: distance=%.4f, match=%t, confidence=%.4f", distance, isMatch, confidence)

	return isMatch, confidence
}
