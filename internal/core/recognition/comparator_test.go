package recognition

import (
	"math"
	"testing"
)

// testEmbedding builds a 128-d vector that is zero everywhere except the
// given leading values.
func testEmbedding(values ...float64) Embedding {
	e := make(Embedding, EmbeddingDim)
	copy(e, values)
	return e
}

func TestEmbeddingValidate(t *testing.T) {
	if err := testEmbedding().Validate(); err != nil {
		t.Errorf("Validate() on 128-d embedding = %v, want nil", err)
	}
	if err := Embedding(make([]float64, 64)).Validate(); err == nil {
		t.Error("Validate() on 64-d embedding = nil, want ErrDimensionMismatch")
	}
}

func TestCompareIdentical(t *testing.T) {
	c := NewComparator(DefaultMatchThreshold)
	e := testEmbedding(0.1, -0.2, 0.3)

	isMatch, confidence := c.Compare(e, e)
	if !isMatch {
		t.Error("Compare(e, e) is_match = false, want true")
	}
	if confidence < 0.99 {
		t.Errorf("Compare(e, e) confidence = %v, want >= 0.99", confidence)
	}
}

func TestCompareSymmetric(t *testing.T) {
	c := NewComparator(DefaultMatchThreshold)
	a := testEmbedding(0.5, 0.1, -0.3)
	b := testEmbedding(0.2, -0.4, 0.6)

	_, confAB := c.Compare(a, b)
	_, confBA := c.Compare(b, a)
	if math.Abs(confAB-confBA) > 1e-12 {
		t.Errorf("Compare not symmetric: %v vs %v", confAB, confBA)
	}
}

func TestCompareConfidenceBands(t *testing.T) {
	// A zero-norm known vector skips the cosine term, so the combined
	// distance equals the euclidean distance and can be set exactly.
	tests := []struct {
		name           string
		distance       float64
		wantMatch      bool
		wantConfidence float64
	}{
		{"top band", 0.15, true, 0.95 + 0.05*(0.3-0.15)/0.3},
		{"second band", 0.4, true, 0.80 + 0.15*(0.5-0.4)/0.2},
		{"third band", 0.55, true, 0.70 + 0.10*(0.6-0.55)/0.1},
		{"at threshold", 0.6, true, 0.70},
		{"past threshold", 0.9, false, 0.70 - (0.9-0.6)/0.6},
		{"far past threshold", 3.0, false, 0.0},
	}

	c := NewComparator(0.6)
	zero := testEmbedding()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := testEmbedding(tt.distance)
			isMatch, confidence := c.Compare(zero, unknown)
			if isMatch != tt.wantMatch {
				t.Errorf("is_match = %v, want %v", isMatch, tt.wantMatch)
			}
			if math.Abs(confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("confidence = %v, want %v", confidence, tt.wantConfidence)
			}
		})
	}
}

func TestCompareConfidenceClamped(t *testing.T) {
	c := NewComparator(0.6)
	zero := testEmbedding()

	for _, distance := range []float64{0.0, 0.25, 0.45, 0.55, 0.7, 2.0, 10.0} {
		_, confidence := c.Compare(zero, testEmbedding(distance))
		if confidence < 0.0 || confidence > 1.0 {
			t.Errorf("confidence %v for distance %v outside [0,1]", confidence, distance)
		}
	}
}

func TestDistanceBlendsCosine(t *testing.T) {
	c := NewComparator(0.6)

	// Orthogonal unit vectors: euclidean sqrt(2), cosine similarity 0.
	a := testEmbedding(1)
	b := testEmbedding(0, 1)

	want := 0.7*math.Sqrt2 + 0.3*0.5
	if got := c.Distance(a, b); math.Abs(got-want) > 1e-12 {
		t.Errorf("Distance = %v, want %v", got, want)
	}
}

func TestDistanceZeroNormFallback(t *testing.T) {
	c := NewComparator(0.6)

	zero := testEmbedding()
	other := testEmbedding(0.42)

	if got := c.Distance(zero, other); math.Abs(got-0.42) > 1e-12 {
		t.Errorf("Distance with zero-norm vector = %v, want euclidean 0.42", got)
	}
}

func TestEuclideanDistance(t *testing.T) {
	a := testEmbedding(3)
	b := testEmbedding(0, 4)
	if got := EuclideanDistance(a, b); math.Abs(got-5.0) > 1e-12 {
		t.Errorf("EuclideanDistance = %v, want 5", got)
	}
}
